package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Compile-time interface verification.
var _ Notifier = (*KafkaNotifier)(nil)

// KafkaConfig holds Kafka publisher settings.
// This is defined in the notify package to avoid importing the config package.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the topic alert events are published to.
	Topic string
}

// kafkaWriter is the subset of kafka.Writer the notifier uses, injected for tests.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes the payload as a single JSON event per cycle.
// The message key is the cycle key so all runs for a cycle land on the same
// partition in order.
type KafkaNotifier struct {
	writer kafkaWriter
	topic  string
	logger zerolog.Logger
}

// NewKafkaNotifier creates a Kafka notifier with the given configuration.
func NewKafkaNotifier(cfg KafkaConfig, logger zerolog.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 100 * time.Millisecond,
	}

	return &KafkaNotifier{
		writer: writer,
		topic:  cfg.Topic,
		logger: logger.With().Str("component", "kafka_notifier").Logger(),
	}
}

// Name returns the sink name.
func (n *KafkaNotifier) Name() string {
	return "kafka"
}

// Deliver publishes the payload to the configured topic.
func (n *KafkaNotifier) Deliver(ctx context.Context, payload Payload) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(payload.CycleKey),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("citation_alerts.cycle_completed")},
			{Key: "run_id", Value: []byte(payload.RunID)},
		},
	}

	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish alert event: %w", err)
	}

	n.logger.Info().
		Str("topic", n.topic).
		Str("cycle_key", payload.CycleKey).
		Int("papers", len(payload.Papers)).
		Msg("alert event published")

	return nil
}

// Close closes the underlying Kafka writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
