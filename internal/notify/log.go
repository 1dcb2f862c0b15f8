package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Compile-time interface verification.
var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes the payload to the structured log. It is the default
// sink and the one dry runs use.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that logs payloads instead of sending them.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.With().Str("component", "log_notifier").Logger(),
	}
}

// Name returns the sink name.
func (n *LogNotifier) Name() string {
	return "log"
}

// Deliver logs the payload header and one line per paper.
func (n *LogNotifier) Deliver(ctx context.Context, payload Payload) error {
	n.logger.Info().
		Str("run_id", payload.RunID).
		Str("cycle_key", payload.CycleKey).
		Str("mode", string(payload.Mode)).
		Int("threshold", payload.Threshold).
		Int("papers", len(payload.Papers)).
		Msg("citation alert payload")

	for _, paper := range payload.Papers {
		n.logger.Info().
			Str("pmid", paper.Paper.PMID).
			Str("doi", paper.Paper.DOI).
			Str("journal", paper.Paper.Journal).
			Int("metric_value", paper.Measurement.Value()).
			Str("impact_factor", FormatImpactFactor(paper.ImpactFactor)).
			Bool("summary_degraded", paper.SummaryDegraded).
			Msg(paper.Paper.Title)
	}

	if len(payload.Papers) == 0 {
		n.logger.Info().
			Str("cycle_key", payload.CycleKey).
			Msg("no qualifying papers this cycle")
	}

	return nil
}
