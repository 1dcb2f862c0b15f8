// Package pipeline orchestrates one citation alert run: keyword translation,
// paper discovery, citation measurement, threshold filtering, cross-run
// de-duplication, enrichment, and delivery.
//
// The pipeline is sequential and stage-ordered. A run either completes with a
// delivered payload (possibly empty) or fails at a stage; per-paper
// enrichment problems degrade that paper only and never abort the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-alert-service/internal/domain"
	"github.com/helixir/citation-alert-service/internal/llm"
	"github.com/helixir/citation-alert-service/internal/notify"
	"github.com/helixir/citation-alert-service/internal/observability"
	"github.com/helixir/citation-alert-service/internal/papersources"
)

// degradedSummaryQuota is the placeholder recorded when the summarizer quota
// is exhausted mid-run.
const degradedSummaryQuota = "Summary unavailable: summarizer quota exhausted."

// degradedSummaryNoAbstract is the placeholder for papers PubMed carries no
// abstract for.
const degradedSummaryNoAbstract = "Summary unavailable: no abstract published."

// KeywordTranslator turns configured keywords into a provider query string.
type KeywordTranslator interface {
	TranslateAll(keywords []string) (string, error)
}

// PaperSearcher discovers papers matching a query within a window.
type PaperSearcher interface {
	Search(ctx context.Context, params papersources.SearchParams) ([]domain.Paper, error)
	Name() string
}

// CitationSource measures citations for a DOI. Both methods return nil when
// the DOI has no index coverage.
type CitationSource interface {
	TotalCitations(ctx context.Context, doi string) (*int, error)
	SpikeDelta(ctx context.Context, doi string, refMonth time.Time) (*int, error)
}

// Summarizer produces a short digest of a paper's abstract.
type Summarizer interface {
	Summarize(ctx context.Context, req llm.SummaryRequest) (*llm.SummaryResult, error)
	Provider() string
	Model() string
}

// ImpactLookup resolves a journal name to its impact factor, nil when absent.
type ImpactLookup interface {
	Lookup(journal string) *float64
}

// AlertStore persists the cross-run de-duplication state.
type AlertStore interface {
	HasAlerted(ctx context.Context, pmid, cycleKey string) (bool, error)
	RecordAlert(ctx context.Context, record *domain.AlertRecord) error
}

// Config holds the run-shaping settings of the pipeline.
type Config struct {
	// Mode selects the citation metric (spike or total).
	Mode domain.MetricMode

	// Threshold is the inclusive citation floor a paper must reach.
	Threshold int

	// Keywords are the dictionary keys translated into the search query.
	Keywords []string

	// WindowStartMonths and WindowEndMonths bound the publication window
	// relative to now: papers published between now-start and now-end months.
	WindowStartMonths int
	WindowEndMonths   int

	// ArticleTypes filters PubMed publication types. Empty means no filter.
	ArticleTypes []string

	// MaxResults caps how many papers one run fetches.
	MaxResults int

	// CycleKey overrides the reporting cycle (YYYY-MM). Empty uses the run
	// month.
	CycleKey string

	// TargetLanguage is the language summaries are written in.
	TargetLanguage string
}

// RunParams are the per-invocation overrides for a run.
type RunParams struct {
	// Window overrides the relative publication window when non-nil.
	Window *papersources.SearchWindow

	// ArticleTypes overrides the configured type filter when ArticleTypesSet
	// is true. An explicit empty list disables the filter, which is distinct
	// from leaving the configured filter in place.
	ArticleTypes    []string
	ArticleTypesSet bool

	// DryRun runs every stage but writes no alert rows.
	DryRun bool
}

// Pipeline wires the stages together.
type Pipeline struct {
	config     Config
	translator KeywordTranslator
	source     PaperSearcher
	citations  CitationSource
	summarizer Summarizer
	impact     ImpactLookup
	store      AlertStore
	notifier   notify.Notifier
	preview    notify.Notifier
	logger     zerolog.Logger
	metrics    *observability.Metrics

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a pipeline from its stage dependencies. Dry runs deliver
// through preview instead of notifier so nothing reaches the real sink; a
// nil preview defaults to the log sink.
func New(
	cfg Config,
	translator KeywordTranslator,
	source PaperSearcher,
	citations CitationSource,
	summarizer Summarizer,
	impact ImpactLookup,
	store AlertStore,
	notifier notify.Notifier,
	preview notify.Notifier,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Pipeline {
	pipelineLogger := logger.With().Str("component", "pipeline").Logger()
	if preview == nil {
		preview = notify.NewLogNotifier(pipelineLogger)
	}
	return &Pipeline{
		config:     cfg,
		translator: translator,
		source:     source,
		citations:  citations,
		summarizer: summarizer,
		impact:     impact,
		store:      store,
		notifier:   notifier,
		preview:    preview,
		logger:     pipelineLogger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Run executes one full cycle and returns its report. The returned report is
// never nil; a failed run carries the terminal error in Err.
func (p *Pipeline) Run(ctx context.Context, params RunParams) *domain.RunReport {
	report := &domain.RunReport{
		RunID:     uuid.New(),
		Mode:      p.config.Mode,
		CycleKey:  p.cycleKey(),
		DryRun:    params.DryRun,
		Status:    domain.RunStatusRunning,
		StartedAt: p.now().UTC(),
	}

	logger := observability.WithRunContext(p.logger, report.RunID.String(), string(report.Mode), report.CycleKey)
	logger.Info().Bool("dry_run", params.DryRun).Msg("pipeline run started")
	if p.metrics != nil {
		p.metrics.RecordRunStarted()
	}

	err := p.run(ctx, params, report, logger)
	report.FinishedAt = p.now().UTC()
	duration := report.FinishedAt.Sub(report.StartedAt).Seconds()

	if p.metrics != nil {
		p.metrics.RecordStageCounts(
			report.PapersFetched,
			report.PapersMeasured,
			report.PapersUncovered,
			report.PapersQualified,
			report.PapersDeduplicated,
			report.PapersEnriched,
			report.SummariesDegraded,
		)
	}

	if err != nil {
		report.Err = err
		report.Stage = domain.StageFailed
		report.Status = domain.RunStatusFailed
		if p.metrics != nil {
			p.metrics.RecordRunFailed(duration)
		}
		logger.Error().Err(err).Msg("pipeline run failed")
		return report
	}

	report.Stage = domain.StageDone
	report.Status = domain.RunStatusCompleted
	if p.metrics != nil {
		p.metrics.RecordRunCompleted(duration)
	}
	logger.Info().
		Int("fetched", report.PapersFetched).
		Int("qualified", report.PapersQualified).
		Int("delivered", len(report.Papers)).
		Msg("pipeline run completed")
	return report
}

// run advances the report through the stages, returning the terminal error of
// a failed run.
func (p *Pipeline) run(ctx context.Context, params RunParams, report *domain.RunReport, logger zerolog.Logger) error {
	report.Stage = domain.StageTranslate
	query, err := p.translator.TranslateAll(p.config.Keywords)
	if err != nil {
		return fmt.Errorf("translate stage: %w", err)
	}

	report.Stage = domain.StageFetchPapers
	papers, err := p.fetchPapers(ctx, params, query)
	if err != nil {
		return domain.NewFetchFailure(string(domain.StageFetchPapers), err)
	}
	report.PapersFetched = len(papers)

	var enriched []domain.EnrichedPaper
	if len(papers) == 0 {
		logger.Info().Msg("no papers in window, delivering empty payload")
	} else {
		report.Stage = domain.StageMeasureCitations
		measured, err := p.measureCitations(ctx, papers, report, logger)
		if err != nil {
			return domain.NewFetchFailure(string(domain.StageMeasureCitations), err)
		}

		report.Stage = domain.StageFilterThreshold
		qualified := p.filterThreshold(measured)
		report.PapersQualified = len(qualified)

		report.Stage = domain.StageDedup
		fresh, err := p.dedup(ctx, qualified, report.CycleKey, report)
		if err != nil {
			return fmt.Errorf("dedup stage: %w", err)
		}

		report.Stage = domain.StageEnrich
		enriched = p.enrich(ctx, fresh, report, logger)
	}

	report.Stage = domain.StageAssemble
	report.Papers = enriched
	if err := p.assembleAndDeliver(ctx, params, report, enriched); err != nil {
		return err
	}

	return nil
}

// fetchPapers resolves the search window and queries the paper source.
func (p *Pipeline) fetchPapers(ctx context.Context, params RunParams, query string) ([]domain.Paper, error) {
	window := p.searchWindow(params)

	articleTypes := p.config.ArticleTypes
	if params.ArticleTypesSet {
		articleTypes = params.ArticleTypes
	}

	return p.source.Search(ctx, papersources.SearchParams{
		Query:        query,
		Window:       window,
		ArticleTypes: articleTypes,
		MaxResults:   p.config.MaxResults,
	})
}

// searchWindow returns the explicit override or the configured relative
// window ending WindowEndMonths before now.
func (p *Pipeline) searchWindow(params RunParams) papersources.SearchWindow {
	if params.Window != nil {
		return *params.Window
	}
	now := p.now().UTC()
	return papersources.SearchWindow{
		From: now.AddDate(0, -p.config.WindowStartMonths, 0),
		To:   now.AddDate(0, -p.config.WindowEndMonths, 0),
	}
}

// measured pairs a paper with its citation measurement.
type measured struct {
	paper       domain.Paper
	measurement domain.CitationMeasurement
}

// measureCitations looks up the configured metric for every paper with a DOI.
// Papers without a DOI or without index coverage are counted as uncovered and
// dropped; they are not zero-citation papers. A provider error aborts the run
// because the candidate set would be unknown.
func (p *Pipeline) measureCitations(ctx context.Context, papers []domain.Paper, report *domain.RunReport, logger zerolog.Logger) ([]measured, error) {
	refMonth := p.referenceMonth()

	var results []measured
	for _, paper := range papers {
		if !paper.HasDOI() {
			report.PapersUncovered++
			continue
		}

		var count *int
		var err error
		switch p.config.Mode {
		case domain.MetricModeSpike:
			count, err = p.citations.SpikeDelta(ctx, paper.DOI, refMonth)
		default:
			count, err = p.citations.TotalCitations(ctx, paper.DOI)
		}
		if err != nil {
			return nil, fmt.Errorf("citation lookup for %s: %w", paper.DOI, err)
		}
		if count == nil {
			report.PapersUncovered++
			paperLogger := observability.WithPaperContext(logger, paper.PMID, paper.DOI)
			paperLogger.Debug().Msg("no citation coverage, skipping")
			continue
		}

		report.PapersMeasured++
		results = append(results, measured{
			paper: paper,
			measurement: domain.CitationMeasurement{
				PMID:       paper.PMID,
				DOI:        paper.DOI,
				Mode:       p.config.Mode,
				Current:    *count,
				MeasuredAt: p.now().UTC(),
			},
		})
	}

	return results, nil
}

// referenceMonth is the last complete month before the run: spike deltas
// count citing records created inside it.
func (p *Pipeline) referenceMonth() time.Time {
	now := p.now().UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, -1, 0)
}

// filterThreshold keeps papers whose metric value reaches the threshold.
// The comparison is inclusive: value == threshold qualifies.
func (p *Pipeline) filterThreshold(candidates []measured) []measured {
	var qualified []measured
	for _, c := range candidates {
		if c.measurement.Value() >= p.config.Threshold {
			qualified = append(qualified, c)
		}
	}
	return qualified
}

// dedup drops papers already alerted in this cycle. The check happens before
// enrichment so repeated runs spend no summarizer quota on known papers.
func (p *Pipeline) dedup(ctx context.Context, candidates []measured, cycleKey string, report *domain.RunReport) ([]measured, error) {
	var fresh []measured
	for _, c := range candidates {
		alerted, err := p.store.HasAlerted(ctx, c.paper.PMID, cycleKey)
		if err != nil {
			return nil, fmt.Errorf("alert lookup for %s: %w", c.paper.PMID, err)
		}
		if alerted {
			report.PapersDeduplicated++
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, nil
}

// enrich attaches a summary and impact factor to each paper. Quota
// exhaustion and per-paper summarizer failures degrade that paper's summary
// and never abort the run.
func (p *Pipeline) enrich(ctx context.Context, candidates []measured, report *domain.RunReport, logger zerolog.Logger) []domain.EnrichedPaper {
	enriched := make([]domain.EnrichedPaper, 0, len(candidates))
	quotaExhausted := false

	for _, c := range candidates {
		ep := domain.EnrichedPaper{
			Paper:        c.paper,
			Measurement:  c.measurement,
			ImpactFactor: p.impact.Lookup(c.paper.Journal),
		}

		switch {
		case c.paper.Abstract == nil:
			ep.Summary = degradedSummaryNoAbstract
			ep.SummaryDegraded = true
			report.SummariesDegraded++
		case quotaExhausted:
			ep.Summary = degradedSummaryQuota
			ep.SummaryDegraded = true
			report.SummariesDegraded++
		default:
			start := time.Now()
			result, err := p.summarizer.Summarize(ctx, llm.SummaryRequest{
				Title:          c.paper.Title,
				Abstract:       *c.paper.Abstract,
				Journal:        c.paper.Journal,
				TargetLanguage: p.config.TargetLanguage,
			})
			if p.metrics != nil {
				p.metrics.RecordSummarizerRequest(p.summarizer.Provider(), p.summarizer.Model(), time.Since(start).Seconds())
			}
			if err != nil {
				errType := "error"
				if errors.Is(err, domain.ErrQuotaExhausted) {
					// Once quota is gone, further calls only waste retries.
					quotaExhausted = true
					errType = "quota"
				}
				if p.metrics != nil {
					p.metrics.RecordSummarizerRequestFailed(p.summarizer.Provider(), p.summarizer.Model(), errType)
				}
				paperLogger := observability.WithPaperContext(logger, c.paper.PMID, c.paper.DOI)
				paperLogger.Warn().Err(err).Msg("summarization failed, degrading summary")
				ep.Summary = degradedSummaryQuota
				ep.SummaryDegraded = true
				report.SummariesDegraded++
			} else {
				ep.Summary = result.Summary
			}
		}

		report.PapersEnriched++
		enriched = append(enriched, ep)
	}

	return enriched
}

// assembleAndDeliver builds the payload, delivers it, and records alerts.
// Alerts are written only after successful delivery so a delivery failure
// leaves nothing recorded and the re-run re-sends (at-least-once). Dry runs
// deliver through the preview sink and touch neither the real sink nor the
// store.
func (p *Pipeline) assembleAndDeliver(ctx context.Context, params RunParams, report *domain.RunReport, enriched []domain.EnrichedPaper) error {
	payload := notify.Payload{
		RunID:       report.RunID.String(),
		CycleKey:    report.CycleKey,
		Mode:        report.Mode,
		Threshold:   p.config.Threshold,
		GeneratedAt: p.now().UTC(),
		Papers:      enriched,
	}

	sink := p.notifier
	if params.DryRun {
		sink = p.preview
	}

	if err := sink.Deliver(ctx, payload); err != nil {
		if p.metrics != nil {
			p.metrics.RecordNotificationFailed(sink.Name())
		}
		return fmt.Errorf("delivery via %s: %w", sink.Name(), err)
	}
	if p.metrics != nil {
		p.metrics.RecordNotificationSent(sink.Name())
	}

	if params.DryRun {
		return nil
	}

	for _, ep := range enriched {
		record := &domain.AlertRecord{
			ID:            uuid.New(),
			PMID:          ep.Paper.PMID,
			CycleKey:      report.CycleKey,
			DOI:           ep.Paper.DOI,
			Title:         ep.Paper.Title,
			Journal:       ep.Paper.Journal,
			PublishedDate: ep.Paper.PublishedDate,
			MetricMode:    report.Mode,
			MetricValue:   ep.Measurement.Value(),
			NotifiedAt:    p.now().UTC(),
		}
		if err := p.store.RecordAlert(ctx, record); err != nil {
			// A concurrent run already recorded it; the delivery was not lost.
			if errors.Is(err, domain.ErrAlreadyExists) {
				continue
			}
			return fmt.Errorf("record alert for %s: %w", ep.Paper.PMID, err)
		}
		if p.metrics != nil {
			p.metrics.RecordAlertRecorded()
		}
	}

	return nil
}

// cycleKey returns the configured override or the run month in YYYY-MM form.
func (p *Pipeline) cycleKey() string {
	if p.config.CycleKey != "" {
		return p.config.CycleKey
	}
	return p.now().UTC().Format("2006-01")
}
