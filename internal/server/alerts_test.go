package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-alert-service/internal/database"
	"github.com/helixir/citation-alert-service/internal/domain"
)

// fakeAlertLister returns canned alert records.
type fakeAlertLister struct {
	records []*domain.AlertRecord
	err     error
	cycles  []string
}

func (l *fakeAlertLister) ListByCycle(ctx context.Context, cycleKey string) ([]*domain.AlertRecord, error) {
	l.cycles = append(l.cycles, cycleKey)
	if l.err != nil {
		return nil, l.err
	}
	return l.records, nil
}

func newAlertTestServer(lister *fakeAlertLister) *Server {
	runner := &fakeRunner{report: completedReport()}
	health := &fakeHealth{status: database.HealthStatus{Status: "healthy"}}
	return NewServer(Config{Address: "127.0.0.1:0"}, runner, health, lister, newFakeLocker(), zerolog.Nop())
}

func TestListAlerts(t *testing.T) {
	published := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	lister := &fakeAlertLister{
		records: []*domain.AlertRecord{
			{
				ID:            uuid.New(),
				PMID:          "40000001",
				CycleKey:      "2025-08",
				DOI:           "10.1038/s41591-025-00001-1",
				Title:         "In vivo base editing in murine hepatocytes",
				Journal:       "Nature Medicine",
				PublishedDate: &published,
				MetricMode:    domain.MetricModeSpike,
				MetricValue:   7,
				NotifiedAt:    time.Date(2025, 8, 24, 9, 2, 0, 0, time.UTC),
			},
			{
				ID:          uuid.New(),
				PMID:        "40000002",
				CycleKey:    "2025-08",
				Title:       "CRISPR off-target profiling at scale",
				MetricMode:  domain.MetricModeSpike,
				MetricValue: 11,
				NotifiedAt:  time.Date(2025, 8, 24, 9, 2, 1, 0, time.UTC),
			},
		},
	}
	srv := newAlertTestServer(lister)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts?cycle=2025-08", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		CycleKey string          `json:"cycle_key"`
		Alerts   []alertResponse `json:"alerts"`
		Total    int             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, "2025-08", listing.CycleKey)
	assert.Equal(t, 2, listing.Total)
	require.Len(t, listing.Alerts, 2)
	assert.Equal(t, "40000001", listing.Alerts[0].PMID)
	assert.Equal(t, "spike", listing.Alerts[0].MetricMode)
	assert.NotNil(t, listing.Alerts[0].PublishedDate)
	assert.Empty(t, listing.Alerts[1].DOI)

	assert.Equal(t, []string{"2025-08"}, lister.cycles)
}

func TestListAlertsEmptyCycle(t *testing.T) {
	srv := newAlertTestServer(&fakeAlertLister{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts?cycle=2025-07", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)
}

func TestListAlertsCycleValidation(t *testing.T) {
	lister := &fakeAlertLister{}
	srv := newAlertTestServer(lister)

	for _, cycle := range []string{"", "2025-13", "2025-8", "08-2025", "not-a-cycle"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts?cycle="+cycle, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "cycle %q", cycle)
	}
	assert.Empty(t, lister.cycles)
}

func TestListAlertsStoreError(t *testing.T) {
	srv := newAlertTestServer(&fakeAlertLister{err: assert.AnError})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts?cycle=2025-08", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
