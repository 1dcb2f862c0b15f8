package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixir/citation-alert-service/internal/citations"
	"github.com/helixir/citation-alert-service/internal/dictionary"
	"github.com/helixir/citation-alert-service/internal/domain"
	"github.com/helixir/citation-alert-service/internal/papersources"
	"github.com/helixir/citation-alert-service/internal/papersources/pubmed"
)

// distributionStats tallies the citation metric across a paper sample so an
// operator can calibrate pipeline.threshold before deploying it.
type distributionStats struct {
	mode      domain.MetricMode
	noDOI     int
	uncovered int
	values    []int
}

func (s *distributionStats) addMissingDOI() { s.noDOI++ }

func (s *distributionStats) addUncovered() { s.uncovered++ }

func (s *distributionStats) addValue(v int) { s.values = append(s.values, v) }

func (s *distributionStats) surveyed() int {
	return len(s.values) + s.noDOI + s.uncovered
}

// histogram returns the metric values and their counts, lowest value first.
func (s *distributionStats) histogram() ([]int, map[int]int) {
	counts := make(map[int]int, len(s.values))
	for _, v := range s.values {
		counts[v]++
	}
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys, counts
}

// thresholdSimulation returns, for each positive metric value present in the
// sample from highest to lowest, how many papers an inclusive threshold at
// that value would alert on.
func (s *distributionStats) thresholdSimulation() []thresholdCount {
	keys, counts := s.histogram()

	var sim []thresholdCount
	cumulative := 0
	for i := len(keys) - 1; i >= 0; i-- {
		if keys[i] <= 0 {
			break
		}
		cumulative += counts[keys[i]]
		sim = append(sim, thresholdCount{Threshold: keys[i], Alerted: cumulative})
	}
	return sim
}

type thresholdCount struct {
	Threshold int
	Alerted   int
}

// render writes the survey in a fixed-width report layout.
func (s *distributionStats) render(w io.Writer) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "citation %s distribution survey\n", s.mode)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "papers surveyed: %d\n", s.surveyed())
	fmt.Fprintf(w, "  without DOI:       %d\n", s.noDOI)
	fmt.Fprintf(w, "  without coverage:  %d\n", s.uncovered)
	fmt.Fprintf(w, "  measured:          %d\n", len(s.values))
	fmt.Fprintln(w, strings.Repeat("-", 60))

	if len(s.values) == 0 {
		fmt.Fprintln(w, "no measurable papers in the sample")
		return
	}

	keys, counts := s.histogram()
	fmt.Fprintln(w, "metric distribution:")
	for _, k := range keys {
		count := counts[k]
		width := count * 50 / len(s.values)
		bar := strings.Repeat("#", width)
		if width == 0 {
			bar = "."
		}
		fmt.Fprintf(w, "  %3d: %4d (%5.1f%%) %s\n", k, count, float64(count)/float64(len(s.values))*100, bar)
	}

	sim := s.thresholdSimulation()
	if len(sim) > 0 {
		fmt.Fprintln(w, strings.Repeat("-", 60))
		fmt.Fprintln(w, "papers alerted per inclusive threshold:")
		for _, tc := range sim {
			fmt.Fprintf(w, "  threshold >= %3d: %4d\n", tc.Threshold, tc.Alerted)
		}
	}
	fmt.Fprintln(w, rule)
}

func newDistributionCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "distribution",
		Short: "Survey the citation metric distribution for threshold calibration",
		Long: `Survey the citation metric over a sample of recent papers in the
configured field and print its distribution, together with how many papers
each candidate threshold would alert on. Nothing is summarized, recorded,
or delivered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return surveyDistribution(cmd.OutOrStdout(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of papers to survey")

	return cmd
}

func surveyDistribution(out io.Writer, limit int) error {
	cfg, logger, err := loadConfigAndLogger("distribution")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	translator, err := dictionary.LoadTranslator(cfg.Dictionaries.KeywordsPath)
	if err != nil {
		return fmt.Errorf("load keyword dictionary: %w", err)
	}
	query, err := translator.TranslateAll(cfg.Pipeline.Keywords)
	if err != nil {
		return fmt.Errorf("translate keywords: %w", err)
	}

	source := pubmed.New(pubmed.Config{
		BaseURL:     cfg.PubMed.BaseURL,
		APIKey:      cfg.PubMed.APIKey,
		Timeout:     cfg.PubMed.Timeout,
		MinInterval: cfg.PubMed.MinInterval,
		MaxRetries:  cfg.PubMed.MaxRetries,
		RetryDelay:  cfg.PubMed.RetryDelay,
		MaxResults:  limit,
	})
	citationSource := citations.New(citations.Config{
		BaseURL:     cfg.OpenCitations.BaseURL,
		APIKey:      cfg.OpenCitations.APIKey,
		Timeout:     cfg.OpenCitations.Timeout,
		MinInterval: cfg.OpenCitations.MinInterval,
		MaxRetries:  cfg.OpenCitations.MaxRetries,
		RetryDelay:  cfg.OpenCitations.RetryDelay,
	}, logger)

	now := time.Now().UTC()
	window := papersources.SearchWindow{
		From: now.AddDate(0, -cfg.Pipeline.WindowStartMonths, 0),
		To:   now.AddDate(0, -cfg.Pipeline.WindowEndMonths, 0),
	}

	logger.Info().
		Str("query", query).
		Int("limit", limit).
		Msg("surveying citation distribution")

	papers, err := source.Search(ctx, papersources.SearchParams{
		Query:        query,
		Window:       window,
		ArticleTypes: cfg.Pipeline.ArticleTypes,
		MaxResults:   limit,
	})
	if err != nil {
		return fmt.Errorf("search papers: %w", err)
	}
	if len(papers) > limit {
		papers = papers[:limit]
	}

	mode := domain.MetricMode(cfg.Pipeline.Mode)
	refMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	stats := &distributionStats{mode: mode}

	for i, paper := range papers {
		if ctx.Err() != nil {
			logger.Info().Msg("survey interrupted, reporting partial results")
			break
		}
		if paper.DOI == "" {
			stats.addMissingDOI()
			continue
		}

		var value *int
		switch mode {
		case domain.MetricModeSpike:
			value, err = citationSource.SpikeDelta(ctx, paper.DOI, refMonth)
		default:
			value, err = citationSource.TotalCitations(ctx, paper.DOI)
		}
		if err != nil {
			return fmt.Errorf("measure citations for %s: %w", paper.DOI, err)
		}
		if value == nil {
			stats.addUncovered()
			continue
		}

		stats.addValue(*value)
		if *value > 0 {
			logger.Info().
				Int("progress", i+1).
				Int("of", len(papers)).
				Str("pmid", paper.PMID).
				Int("value", *value).
				Msg("positive citation metric")
		}
	}

	stats.render(out)
	return nil
}
