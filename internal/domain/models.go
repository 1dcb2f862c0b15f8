// Package domain provides domain models and business logic for the Citation Alert Service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MetricMode selects which citation metric the pipeline thresholds on.
type MetricMode string

const (
	// MetricModeSpike thresholds on the month-over-month citation delta.
	MetricModeSpike MetricMode = "spike"

	// MetricModeTotal thresholds on the cumulative citation count.
	MetricModeTotal MetricMode = "total"
)

// Valid returns true if the mode is one of the supported metric modes.
func (m MetricMode) Valid() bool {
	return m == MetricModeSpike || m == MetricModeTotal
}

// RunStage identifies a stage of the pipeline state machine. Stages advance
// strictly in declaration order; StageFailed is terminal and reachable from
// any stage.
type RunStage string

const (
	StageTranslate        RunStage = "translate"
	StageFetchPapers      RunStage = "fetch_papers"
	StageMeasureCitations RunStage = "measure_citations"
	StageFilterThreshold  RunStage = "filter_threshold"
	StageDedup            RunStage = "dedup"
	StageEnrich           RunStage = "enrich"
	StageAssemble         RunStage = "assemble"
	StageDone             RunStage = "done"
	StageFailed           RunStage = "failed"
)

// RunStatus is the terminal outcome of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal returns true if the status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Paper is an immutable publication record as fetched from the paper source.
// Abstract is a pointer because "no abstract available" must stay
// distinguishable from an empty abstract: downstream summarization treats nil
// as "nothing to summarize", not as a fetch failure.
type Paper struct {
	// PMID is the PubMed identifier, the primary external key.
	PMID string

	// DOI joins the paper to its citation measurements. Empty means the
	// paper has no DOI and citation lookup is disabled for it.
	DOI string

	Title   string
	Journal string

	// Abstract is nil when PubMed carries no abstract for the record.
	Abstract *string

	// PublishedDate is nil when no publication date could be parsed.
	PublishedDate *time.Time

	// ArticleTypes holds the PubMed publication types for the record.
	ArticleTypes []string
}

// HasDOI reports whether citation lookup is possible for the paper.
func (p *Paper) HasDOI() bool {
	return p.DOI != ""
}

// CitationMeasurement is one citation observation for a paper. A paper whose
// DOI has no citation-provider coverage gets no measurement at all: absence
// must never be conflated with a true zero-citation result.
type CitationMeasurement struct {
	PMID string
	DOI  string
	Mode MetricMode

	// Previous is the snapshot-before count for spike mode; nil in total mode.
	Previous *int

	// Current is the count after the reference month (spike) or the
	// cumulative count (total).
	Current int

	MeasuredAt time.Time
}

// Value returns the metric the threshold filter compares: the delta for spike
// mode, the cumulative count for total mode.
func (m *CitationMeasurement) Value() int {
	if m.Mode == MetricModeSpike && m.Previous != nil {
		return m.Current - *m.Previous
	}
	return m.Current
}

// AlertRecord is the durable mark that a paper was notified in a cycle.
// Records are insert-once: the store never mutates or deletes them, and the
// unique (PMID, CycleKey) pair is the cross-run de-duplication key.
type AlertRecord struct {
	ID            uuid.UUID
	PMID          string
	CycleKey      string
	DOI           string
	Title         string
	Journal       string
	PublishedDate *time.Time
	MetricMode    MetricMode
	MetricValue   int
	NotifiedAt    time.Time
}

// EnrichedPaper is the terminal artifact handed to the notifier. It is never
// persisted beyond the notification payload.
type EnrichedPaper struct {
	Paper       Paper
	Measurement CitationMeasurement

	// Summary is the condensed abstract, or a placeholder when the abstract
	// was missing or the summarizer quota was exhausted.
	Summary string

	// SummaryDegraded marks a placeholder summary so the notifier can render
	// it distinctly.
	SummaryDegraded bool

	// ImpactFactor is nil when the journal is not in the impact-factor table.
	// Unknown renders as "N/A", never as zero.
	ImpactFactor *float64
}

// RunReport is the outcome of one pipeline run.
type RunReport struct {
	RunID    uuid.UUID
	Mode     MetricMode
	CycleKey string
	DryRun   bool

	Stage  RunStage
	Status RunStatus

	// Err holds the terminal error of a failed run.
	Err error

	StartedAt  time.Time
	FinishedAt time.Time

	// Stage counters.
	PapersFetched      int
	PapersMeasured     int
	PapersUncovered    int
	PapersQualified    int
	PapersDeduplicated int
	PapersEnriched     int
	SummariesDegraded  int

	// Papers is the assembled notification payload, possibly empty.
	Papers []EnrichedPaper
}
