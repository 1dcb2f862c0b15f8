package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/citation-alert-service/internal/domain"
)

// pgUniqueViolation is the PostgreSQL unique_violation error code.
const pgUniqueViolation = "23505"

// Compile-time interface verification.
var _ AlertRepository = (*PgAlertRepository)(nil)

// PgAlertRepository is a PostgreSQL implementation of AlertRepository.
type PgAlertRepository struct {
	db DBTX
}

// NewPgAlertRepository creates a new PostgreSQL alert repository.
func NewPgAlertRepository(db DBTX) *PgAlertRepository {
	return &PgAlertRepository{db: db}
}

// HasAlerted reports whether an alert exists for the paper in the cycle.
func (r *PgAlertRepository) HasAlerted(ctx context.Context, pmid, cycleKey string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE pmid = $1 AND cycle_key = $2
		)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, pmid, cycleKey).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check alert existence: %w", err)
	}

	return exists, nil
}

// RecordAlert inserts an alert record after a notification is delivered.
func (r *PgAlertRepository) RecordAlert(ctx context.Context, record *domain.AlertRecord) error {
	query := `
		INSERT INTO alerts (id, pmid, cycle_key, doi, title, journal, published_date, metric_mode, metric_value, notified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.PMID,
		record.CycleKey,
		record.DOI,
		record.Title,
		record.Journal,
		record.PublishedDate,
		string(record.MetricMode),
		record.MetricValue,
		record.NotifiedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("alert", fmt.Sprintf("%s:%s", record.PMID, record.CycleKey))
		}
		return fmt.Errorf("failed to record alert: %w", err)
	}

	return nil
}

// ListByCycle retrieves all alert records for a cycle, most recent first.
func (r *PgAlertRepository) ListByCycle(ctx context.Context, cycleKey string) ([]*domain.AlertRecord, error) {
	query := `
		SELECT id, pmid, cycle_key, doi, title, journal, published_date, metric_mode, metric_value, notified_at
		FROM alerts
		WHERE cycle_key = $1
		ORDER BY notified_at DESC`

	rows, err := r.db.Query(ctx, query, cycleKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts for cycle: %w", err)
	}
	defer rows.Close()

	var records []*domain.AlertRecord
	for rows.Next() {
		var rec domain.AlertRecord
		var mode string
		if err := rows.Scan(
			&rec.ID,
			&rec.PMID,
			&rec.CycleKey,
			&rec.DOI,
			&rec.Title,
			&rec.Journal,
			&rec.PublishedDate,
			&mode,
			&rec.MetricValue,
			&rec.NotifiedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		rec.MetricMode = domain.MetricMode(mode)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert rows: %w", err)
	}

	return records, nil
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
