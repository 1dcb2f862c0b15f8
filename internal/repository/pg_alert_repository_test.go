package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-alert-service/internal/domain"
)

// newTestAlertRecord creates a valid alert record for testing.
func newTestAlertRecord() *domain.AlertRecord {
	published := time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC)
	return &domain.AlertRecord{
		ID:            uuid.New(),
		PMID:          "38000001",
		CycleKey:      "2025-08",
		DOI:           "10.1038/s41591-025-00001-1",
		Title:         "CRISPR base editing in vivo",
		Journal:       "Nature Medicine",
		PublishedDate: &published,
		MetricMode:    domain.MetricModeSpike,
		MetricValue:   7,
		NotifiedAt:    time.Now().UTC(),
	}
}

func TestPgAlertRepository_HasAlerted(t *testing.T) {
	t.Run("returns true when alert exists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("38000001", "2025-08").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		repo := NewPgAlertRepository(mock)
		alerted, err := repo.HasAlerted(context.Background(), "38000001", "2025-08")
		require.NoError(t, err)
		assert.True(t, alerted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns false when no alert exists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("38000001", "2025-09").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		repo := NewPgAlertRepository(mock)
		alerted, err := repo.HasAlerted(context.Background(), "38000001", "2025-09")
		require.NoError(t, err)
		assert.False(t, alerted)
	})

	t.Run("wraps query errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("38000001", "2025-08").
			WillReturnError(errors.New("connection refused"))

		repo := NewPgAlertRepository(mock)
		_, err = repo.HasAlerted(context.Background(), "38000001", "2025-08")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to check alert existence")
	})
}

func TestPgAlertRepository_RecordAlert(t *testing.T) {
	t.Run("inserts alert record", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rec := newTestAlertRecord()
		mock.ExpectExec("INSERT INTO alerts").
			WithArgs(rec.ID, rec.PMID, rec.CycleKey, rec.DOI, rec.Title, rec.Journal,
				rec.PublishedDate, string(rec.MetricMode), rec.MetricValue, rec.NotifiedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewPgAlertRepository(mock)
		require.NoError(t, repo.RecordAlert(context.Background(), rec))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate maps to ErrAlreadyExists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rec := newTestAlertRecord()
		pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "alerts_pmid_cycle_key"}
		mock.ExpectExec("INSERT INTO alerts").
			WithArgs(rec.ID, rec.PMID, rec.CycleKey, rec.DOI, rec.Title, rec.Journal,
				rec.PublishedDate, string(rec.MetricMode), rec.MetricValue, rec.NotifiedAt).
			WillReturnError(pgErr)

		repo := NewPgAlertRepository(mock)
		err = repo.RecordAlert(context.Background(), rec)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrAlreadyExists))
	})

	t.Run("other database errors are wrapped", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rec := newTestAlertRecord()
		mock.ExpectExec("INSERT INTO alerts").
			WithArgs(rec.ID, rec.PMID, rec.CycleKey, rec.DOI, rec.Title, rec.Journal,
				rec.PublishedDate, string(rec.MetricMode), rec.MetricValue, rec.NotifiedAt).
			WillReturnError(errors.New("disk full"))

		repo := NewPgAlertRepository(mock)
		err = repo.RecordAlert(context.Background(), rec)
		require.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrAlreadyExists))
		assert.Contains(t, err.Error(), "failed to record alert")
	})
}

func TestPgAlertRepository_ListByCycle(t *testing.T) {
	columns := []string{"id", "pmid", "cycle_key", "doi", "title", "journal", "published_date", "metric_mode", "metric_value", "notified_at"}

	t.Run("returns records for cycle", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		first := newTestAlertRecord()
		second := newTestAlertRecord()
		second.PMID = "38000002"
		second.PublishedDate = nil
		second.MetricMode = domain.MetricModeTotal

		mock.ExpectQuery("SELECT .* FROM alerts WHERE cycle_key = \\$1").
			WithArgs("2025-08").
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow(first.ID, first.PMID, first.CycleKey, first.DOI, first.Title, first.Journal,
					first.PublishedDate, string(first.MetricMode), first.MetricValue, first.NotifiedAt).
				AddRow(second.ID, second.PMID, second.CycleKey, second.DOI, second.Title, second.Journal,
					second.PublishedDate, string(second.MetricMode), second.MetricValue, second.NotifiedAt))

		repo := NewPgAlertRepository(mock)
		records, err := repo.ListByCycle(context.Background(), "2025-08")
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, "38000001", records[0].PMID)
		assert.Equal(t, domain.MetricModeSpike, records[0].MetricMode)
		assert.Equal(t, "38000002", records[1].PMID)
		assert.Nil(t, records[1].PublishedDate)
		assert.Equal(t, domain.MetricModeTotal, records[1].MetricMode)
	})

	t.Run("empty cycle returns no records", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT .* FROM alerts WHERE cycle_key = \\$1").
			WithArgs("2030-01").
			WillReturnRows(pgxmock.NewRows(columns))

		repo := NewPgAlertRepository(mock)
		records, err := repo.ListByCycle(context.Background(), "2030-01")
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}
