// Package main provides the citewatch command line interface: the citation
// alert pipeline runner, the admin HTTP server, and migration tooling.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/citation-alert-service/internal/citations"
	"github.com/helixir/citation-alert-service/internal/config"
	"github.com/helixir/citation-alert-service/internal/database"
	"github.com/helixir/citation-alert-service/internal/dictionary"
	"github.com/helixir/citation-alert-service/internal/domain"
	"github.com/helixir/citation-alert-service/internal/llm"
	"github.com/helixir/citation-alert-service/internal/notify"
	"github.com/helixir/citation-alert-service/internal/observability"
	"github.com/helixir/citation-alert-service/internal/papersources/pubmed"
	"github.com/helixir/citation-alert-service/internal/pipeline"
	"github.com/helixir/citation-alert-service/internal/repository"
)

const metricsNamespace = "citation_alert"

func main() {
	root := &cobra.Command{
		Use:           "citewatch",
		Short:         "Citation alert service: watches PubMed papers for citation spikes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newDistributionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfigAndLogger is the shared bootstrap for every subcommand.
func loadConfigAndLogger(component string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", component).Logger()

	return cfg, logger, nil
}

// buildPipeline wires the pipeline stages from configuration. Dry runs
// deliver through the log preview sink inside the pipeline, so the same
// instance serves both real and dry cycles.
func buildPipeline(cfg *config.Config, db *database.DB, logger zerolog.Logger, metrics *observability.Metrics) (*pipeline.Pipeline, func(), error) {
	translator, err := dictionary.LoadTranslator(cfg.Dictionaries.KeywordsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load keyword dictionary: %w", err)
	}

	impact, err := dictionary.LoadImpactTable(cfg.Dictionaries.ImpactFactorsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load impact factor table: %w", err)
	}

	source := pubmed.New(pubmed.Config{
		BaseURL:     cfg.PubMed.BaseURL,
		APIKey:      cfg.PubMed.APIKey,
		Timeout:     cfg.PubMed.Timeout,
		MinInterval: cfg.PubMed.MinInterval,
		MaxRetries:  cfg.PubMed.MaxRetries,
		RetryDelay:  cfg.PubMed.RetryDelay,
		MaxResults:  cfg.Pipeline.MaxResults,
		Metrics:     metrics,
	})

	citationSource := citations.New(citations.Config{
		BaseURL:     cfg.OpenCitations.BaseURL,
		APIKey:      cfg.OpenCitations.APIKey,
		Timeout:     cfg.OpenCitations.Timeout,
		MinInterval: cfg.OpenCitations.MinInterval,
		MaxRetries:  cfg.OpenCitations.MaxRetries,
		RetryDelay:  cfg.OpenCitations.RetryDelay,
		Metrics:     metrics,
	}, logger)

	summarizer, err := llm.NewSummarizer(llm.FactoryConfig{
		Provider:   strings.ToLower(cfg.Summarizer.Provider),
		Timeout:    cfg.Summarizer.Timeout,
		MaxRetries: cfg.Summarizer.MaxRetries,
		Gemini: llm.GeminiConfig{
			APIKey:      cfg.Summarizer.APIKey,
			Model:       cfg.Summarizer.Model,
			BaseURL:     cfg.Summarizer.BaseURL,
			MinInterval: cfg.Summarizer.MinInterval,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:      cfg.Summarizer.APIKey,
			Model:       cfg.Summarizer.Model,
			BaseURL:     cfg.Summarizer.BaseURL,
			MinInterval: cfg.Summarizer.MinInterval,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create summarizer: %w", err)
	}

	store := repository.NewPgAlertRepository(db)

	notifier, cleanup, err := buildNotifier(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	p := pipeline.New(
		pipeline.Config{
			Mode:              domain.MetricMode(cfg.Pipeline.Mode),
			Threshold:         cfg.Pipeline.Threshold,
			Keywords:          cfg.Pipeline.Keywords,
			WindowStartMonths: cfg.Pipeline.WindowStartMonths,
			WindowEndMonths:   cfg.Pipeline.WindowEndMonths,
			ArticleTypes:      cfg.Pipeline.ArticleTypes,
			MaxResults:        cfg.Pipeline.MaxResults,
			CycleKey:          cfg.Pipeline.CycleKey,
			TargetLanguage:    cfg.Pipeline.TargetLanguage,
		},
		translator,
		source,
		citationSource,
		summarizer,
		impact,
		store,
		notifier,
		notify.NewLogNotifier(logger),
		logger,
		metrics,
	)

	return p, cleanup, nil
}

// buildNotifier selects the delivery sink for real runs.
func buildNotifier(cfg *config.Config, logger zerolog.Logger) (notify.Notifier, func(), error) {
	noop := func() {}

	switch strings.ToLower(cfg.Notifier.Sink) {
	case "log":
		return notify.NewLogNotifier(logger), noop, nil
	case "email":
		return notify.NewEmailNotifier(notify.EmailConfig{
			Host:          cfg.Notifier.Email.Host,
			Port:          cfg.Notifier.Email.Port,
			Username:      cfg.Notifier.Email.Username,
			Password:      cfg.Notifier.Email.Password,
			From:          cfg.Notifier.Email.From,
			To:            cfg.Notifier.Email.To,
			SubjectPrefix: cfg.Notifier.Email.SubjectPrefix,
		}, logger), noop, nil
	case "kafka":
		notifier := notify.NewKafkaNotifier(notify.KafkaConfig{
			Brokers: cfg.Notifier.Kafka.Brokers,
			Topic:   cfg.Notifier.Kafka.Topic,
		}, logger)
		cleanup := func() {
			if err := notifier.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close kafka notifier")
			}
		}
		return notifier, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported notifier sink: %q", cfg.Notifier.Sink)
	}
}

// parseDateFlag parses a YYYY-MM-DD flag value.
func parseDateFlag(name, value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: want YYYY-MM-DD", name, value)
	}
	return t, nil
}
