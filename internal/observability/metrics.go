package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the citation alert service.
// Metrics are organized by subsystem: runs, papers, sources, summarization,
// and notification. Everything registers via promauto against the default
// registry.
type Metrics struct {
	// RunsStarted counts pipeline runs initiated.
	RunsStarted prometheus.Counter

	// RunsCompleted counts pipeline runs that finished successfully.
	RunsCompleted prometheus.Counter

	// RunsFailed counts pipeline runs that ended in failure.
	RunsFailed prometheus.Counter

	// RunDuration observes end-to-end run duration in seconds.
	RunDuration prometheus.Histogram

	// PapersFetched counts papers returned by the paper source across runs.
	PapersFetched prometheus.Counter

	// PapersMeasured counts papers with a citation measurement.
	PapersMeasured prometheus.Counter

	// PapersUncovered counts papers excluded for missing citation coverage.
	PapersUncovered prometheus.Counter

	// PapersQualified counts papers that met the citation threshold.
	PapersQualified prometheus.Counter

	// PapersDeduplicated counts papers dropped as already-alerted duplicates.
	PapersDeduplicated prometheus.Counter

	// PapersEnriched counts papers that completed enrichment.
	PapersEnriched prometheus.Counter

	// SummariesDegraded counts placeholder summaries emitted after quota
	// exhaustion or a missing abstract.
	SummariesDegraded prometheus.Counter

	// AlertsRecorded counts alert rows written to the store.
	AlertsRecorded prometheus.Counter

	// NotificationsSent counts delivered notification payloads by sink.
	NotificationsSent *prometheus.CounterVec

	// NotificationsFailed counts failed deliveries by sink.
	NotificationsFailed *prometheus.CounterVec

	// SourceRequestsTotal counts provider HTTP requests by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed provider requests by source,
	// endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes provider request duration in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limit responses by source.
	SourceRateLimited *prometheus.CounterVec

	// SummarizerRequestsTotal counts summarizer calls by provider and model.
	SummarizerRequestsTotal *prometheus.CounterVec

	// SummarizerRequestsFailed counts failed summarizer calls by provider,
	// model, and error type.
	SummarizerRequestsFailed *prometheus.CounterVec

	// SummarizerRequestDuration observes summarizer call duration in seconds.
	SummarizerRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance with all metrics initialized under
// the given namespace prefix.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of pipeline runs started",
		}),
		RunsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of pipeline runs completed successfully",
		}),
		RunsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Total number of pipeline runs that failed",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
		}),

		PapersFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_fetched_total",
			Help:      "Total number of papers fetched from the paper source",
		}),
		PapersMeasured: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_measured_total",
			Help:      "Total number of papers with a citation measurement",
		}),
		PapersUncovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_uncovered_total",
			Help:      "Total number of papers without citation coverage",
		}),
		PapersQualified: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_qualified_total",
			Help:      "Total number of papers meeting the citation threshold",
		}),
		PapersDeduplicated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_deduplicated_total",
			Help:      "Total number of papers dropped as already alerted",
		}),
		PapersEnriched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_enriched_total",
			Help:      "Total number of papers that completed enrichment",
		}),
		SummariesDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_degraded_total",
			Help:      "Total number of placeholder summaries emitted",
		}),
		AlertsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_recorded_total",
			Help:      "Total number of alert records written",
		}),

		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Total number of notification payloads delivered by sink",
		}, []string{"sink"}),
		NotificationsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Total number of notification deliveries that failed by sink",
		}, []string{"sink"}),

		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to external sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to external sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to external sources in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from external sources",
		}, []string{"source"}),

		SummarizerRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarizer_requests_total",
			Help:      "Total number of summarizer requests by provider",
		}, []string{"provider", "model"}),
		SummarizerRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarizer_requests_failed_total",
			Help:      "Total number of failed summarizer requests by provider",
		}, []string{"provider", "model", "error_type"}),
		SummarizerRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summarizer_request_duration_seconds",
			Help:      "Duration of summarizer requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
	}
}

// RecordRunStarted records that a pipeline run has started.
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
}

// RecordRunCompleted records a successful run and its duration.
func (m *Metrics) RecordRunCompleted(durationSeconds float64) {
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunFailed records a failed run and its duration.
func (m *Metrics) RecordRunFailed(durationSeconds float64) {
	m.RunsFailed.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordStageCounts records the per-stage paper counts of a finished run.
func (m *Metrics) RecordStageCounts(fetched, measured, uncovered, qualified, deduplicated, enriched, degraded int) {
	m.PapersFetched.Add(float64(fetched))
	m.PapersMeasured.Add(float64(measured))
	m.PapersUncovered.Add(float64(uncovered))
	m.PapersQualified.Add(float64(qualified))
	m.PapersDeduplicated.Add(float64(deduplicated))
	m.PapersEnriched.Add(float64(enriched))
	m.SummariesDegraded.Add(float64(degraded))
}

// RecordAlertRecorded records an alert row written to the store.
func (m *Metrics) RecordAlertRecorded() {
	m.AlertsRecorded.Inc()
}

// RecordNotificationSent records a delivered payload for a sink.
func (m *Metrics) RecordNotificationSent(sink string) {
	m.NotificationsSent.WithLabelValues(sink).Inc()
}

// RecordNotificationFailed records a failed delivery for a sink.
func (m *Metrics) RecordNotificationFailed(sink string) {
	m.NotificationsFailed.WithLabelValues(sink).Inc()
}

// RecordSourceRequest records a request to an external source.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to an external source.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordSummarizerRequest records a summarizer call.
func (m *Metrics) RecordSummarizerRequest(provider, model string, durationSeconds float64) {
	m.SummarizerRequestsTotal.WithLabelValues(provider, model).Inc()
	m.SummarizerRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordSummarizerRequestFailed records a failed summarizer call.
func (m *Metrics) RecordSummarizerRequestFailed(provider, model, errorType string) {
	m.SummarizerRequestsFailed.WithLabelValues(provider, model, errorType).Inc()
}
