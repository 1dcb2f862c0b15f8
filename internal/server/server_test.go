package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-alert-service/internal/database"
	"github.com/helixir/citation-alert-service/internal/domain"
	"github.com/helixir/citation-alert-service/internal/pipeline"
)

// fakeHealth reports a fixed database health status.
type fakeHealth struct {
	status database.HealthStatus
}

func (h *fakeHealth) Health(ctx context.Context) database.HealthStatus {
	return h.status
}

// fakeRunner returns a canned report and records the params it ran with.
type fakeRunner struct {
	mu     sync.Mutex
	report *domain.RunReport
	params []pipeline.RunParams
}

func (r *fakeRunner) Run(ctx context.Context, params pipeline.RunParams) *domain.RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params = append(r.params, params)
	report := *r.report
	report.DryRun = params.DryRun
	return &report
}

func (r *fakeRunner) lastParams() (pipeline.RunParams, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.params) == 0 {
		return pipeline.RunParams{}, false
	}
	return r.params[len(r.params)-1], true
}

// fakeLocker mimics the database advisory lock: one holder per key.
type fakeLocker struct {
	mu       sync.Mutex
	held     map[int64]bool
	err      error
	acquires int
	releases int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[int64]bool)}
}

func (l *fakeLocker) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	l.acquires++
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) ReleaseAdvisoryLock(ctx context.Context, key int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	delete(l.held, key)
	return nil
}

func (l *fakeLocker) holding(key int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}

func completedReport() *domain.RunReport {
	summary := "Edited hepatocytes kept the correction for a year."
	impact := 82.9
	return &domain.RunReport{
		Mode:            domain.MetricModeTotal,
		CycleKey:        "2025-08",
		Stage:           domain.StageDone,
		Status:          domain.RunStatusCompleted,
		StartedAt:       time.Date(2025, 8, 24, 9, 0, 0, 0, time.UTC),
		FinishedAt:      time.Date(2025, 8, 24, 9, 2, 0, 0, time.UTC),
		PapersFetched:   3,
		PapersMeasured:  3,
		PapersQualified: 1,
		PapersEnriched:  1,
		Papers: []domain.EnrichedPaper{
			{
				Paper: domain.Paper{
					PMID:    "40000001",
					DOI:     "10.1038/s41591-025-00001-1",
					Title:   "In vivo base editing in murine hepatocytes",
					Journal: "Nature Medicine",
				},
				Measurement: domain.CitationMeasurement{
					PMID:    "40000001",
					Mode:    domain.MetricModeTotal,
					Current: 12,
				},
				Summary:      summary,
				ImpactFactor: &impact,
			},
		},
	}
}

func newTestServer(t *testing.T, runner *fakeRunner, health *fakeHealth) *Server {
	t.Helper()
	if runner == nil {
		runner = &fakeRunner{report: completedReport()}
	}
	if health == nil {
		health = &fakeHealth{status: database.HealthStatus{Status: "healthy"}}
	}
	return NewServer(Config{Address: "127.0.0.1:0", MetricsPath: "/metrics"}, runner, health, &fakeAlertLister{}, newFakeLocker(), zerolog.Nop())
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHealthzUnhealthyDatabase(t *testing.T) {
	health := &fakeHealth{status: database.HealthStatus{Status: "unhealthy", Error: "connection refused"}}
	srv := newTestServer(t, nil, health)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestReadyzGatesOnDatabase(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	srv = newTestServer(t, nil, &fakeHealth{status: database.HealthStatus{Status: "unhealthy", Error: "pool exhausted"}})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_ready")
}

func TestMetricsEndpointMounted(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCorrelationIDEchoed(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))
}

func TestCorrelationIDGenerated(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}
