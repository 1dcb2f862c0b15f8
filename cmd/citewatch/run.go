package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/citation-alert-service/internal/database"
	"github.com/helixir/citation-alert-service/internal/domain"
	"github.com/helixir/citation-alert-service/internal/observability"
	"github.com/helixir/citation-alert-service/internal/papersources"
	"github.com/helixir/citation-alert-service/internal/pipeline"
)

var errRunFailed = errors.New("pipeline run failed")

func newRunCommand() *cobra.Command {
	var (
		startDate    string
		endDate      string
		articleTypes []string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one citation alert cycle",
		Long: `Execute one citation alert cycle: fetch papers from PubMed, measure
citations against OpenCitations, summarize qualifying papers, and deliver
the alert payload. With --dry-run every stage executes and the payload is
logged, but no alert rows are written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := pipeline.RunParams{DryRun: dryRun}

			if startDate != "" || endDate != "" {
				if startDate == "" || endDate == "" {
					return fmt.Errorf("--start-date and --end-date must be given together")
				}
				from, err := parseDateFlag("--start-date", startDate)
				if err != nil {
					return err
				}
				to, err := parseDateFlag("--end-date", endDate)
				if err != nil {
					return err
				}
				if to.Before(from) {
					return fmt.Errorf("--end-date must not precede --start-date")
				}
				params.Window = &papersources.SearchWindow{From: from, To: to}
			}

			// Changed distinguishes an explicit empty list, which disables
			// the type filter, from the flag being absent.
			if cmd.Flags().Changed("article-types") {
				params.ArticleTypes = articleTypes
				params.ArticleTypesSet = true
			}

			return runCycle(params)
		},
	}

	cmd.Flags().StringVar(&startDate, "start-date", "", "publication window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "publication window end (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&articleTypes, "article-types", nil, "publication type filter (empty disables filtering)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run every stage but write no alert records")

	return cmd
}

func runCycle(params pipeline.RunParams) error {
	cfg, logger, err := loadConfigAndLogger("run")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Database.MigrationAutoRun {
		if err := migrateUp(db, cfg.Database.MigrationPath, logger); err != nil {
			return err
		}
	}

	acquired, err := db.AcquireAdvisoryLock(ctx, database.CycleLockKey)
	if err != nil {
		return fmt.Errorf("acquire cycle lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("another cycle is already running")
	}
	defer func() {
		if err := db.ReleaseAdvisoryLock(context.Background(), database.CycleLockKey); err != nil {
			logger.Error().Err(err).Msg("failed to release cycle lock")
		}
	}()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(metricsNamespace)
	}

	p, cleanup, err := buildPipeline(cfg, db, logger, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	report := p.Run(ctx, params)
	logReport(logger, report)

	if report.Status == domain.RunStatusFailed {
		return fmt.Errorf("%w: %v", errRunFailed, report.Err)
	}
	return nil
}

func logReport(logger zerolog.Logger, report *domain.RunReport) {
	event := logger.Info()
	if report.Status == domain.RunStatusFailed {
		event = logger.Error().Err(report.Err)
	}
	event.
		Str("run_id", report.RunID.String()).
		Str("cycle_key", report.CycleKey).
		Str("status", string(report.Status)).
		Str("stage", string(report.Stage)).
		Bool("dry_run", report.DryRun).
		Int("papers_fetched", report.PapersFetched).
		Int("papers_qualified", report.PapersQualified).
		Int("papers_deduplicated", report.PapersDeduplicated).
		Int("papers_enriched", report.PapersEnriched).
		Int("summaries_degraded", report.SummariesDegraded).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("cycle finished")
}
