// Package notify delivers assembled citation alerts to the configured sink.
//
// A Notifier receives the complete payload for a cycle, including an empty
// one: a run that found no qualifying papers still produces a delivery so
// subscribers can tell "nothing new" apart from "nothing ran".
package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/helixir/citation-alert-service/internal/domain"
)

// Payload is the notification content assembled at the end of a run.
type Payload struct {
	// RunID identifies the pipeline run that produced this payload.
	RunID string `json:"run_id"`

	// CycleKey is the reporting cycle in YYYY-MM form.
	CycleKey string `json:"cycle_key"`

	// Mode is the citation metric mode used for this run.
	Mode domain.MetricMode `json:"mode"`

	// Threshold is the citation count floor papers had to reach.
	Threshold int `json:"threshold"`

	// GeneratedAt is when the payload was assembled.
	GeneratedAt time.Time `json:"generated_at"`

	// Papers are the qualifying papers, enriched with summaries and impact
	// factors. Empty when nothing qualified.
	Papers []domain.EnrichedPaper `json:"papers"`
}

// Notifier delivers an assembled payload to a sink.
type Notifier interface {
	// Deliver sends the payload. A nil error means the payload reached the
	// sink; alerts are only recorded after successful delivery.
	Deliver(ctx context.Context, payload Payload) error

	// Name returns the sink name (e.g., "log", "email", "kafka").
	Name() string
}

// FormatImpactFactor renders an impact factor for display. A nil value means
// the journal is not in the table and renders as "N/A", never as zero.
func FormatImpactFactor(impactFactor *float64) string {
	if impactFactor == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*impactFactor, 'f', 1, 64)
}
