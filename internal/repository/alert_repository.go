package repository

import (
	"context"

	"github.com/helixir/citation-alert-service/internal/domain"
)

// AlertRepository handles alert persistence and idempotency tracking.
// An alert records that a paper was included in a delivered notification for
// a given cycle. The (pmid, cycle_key) pair is unique, which keeps repeated
// runs within the same cycle from re-alerting the same paper.
type AlertRepository interface {
	// HasAlerted reports whether an alert exists for the paper in the cycle.
	HasAlerted(ctx context.Context, pmid, cycleKey string) (bool, error)

	// RecordAlert inserts an alert record after a notification is delivered.
	// Returns domain.ErrAlreadyExists if the (pmid, cycle_key) pair is
	// already recorded.
	RecordAlert(ctx context.Context, record *domain.AlertRecord) error

	// ListByCycle retrieves all alert records for a cycle, most recent first.
	ListByCycle(ctx context.Context, cycleKey string) ([]*domain.AlertRecord, error)
}
