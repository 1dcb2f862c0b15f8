// Package citations provides a client for the OpenCitations COCI index, the
// citation source backing the measurement stage.
package citations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-alert-service/internal/domain"
	"github.com/helixir/citation-alert-service/internal/observability"
	"github.com/helixir/citation-alert-service/internal/papersources"
)

const (
	// DefaultBaseURL is the base URL for the COCI REST API.
	DefaultBaseURL = "https://opencitations.net/index/coci/api/v1"

	// DefaultMinInterval is the request spacing for the COCI API.
	DefaultMinInterval = time.Second

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// sourceName is the human-readable name for this source.
	sourceName = "OpenCitations"
)

// Config holds the configuration for the OpenCitations client.
type Config struct {
	// BaseURL is the base URL for the COCI API.
	BaseURL string

	// APIKey is an optional OpenCitations access token.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// MinInterval is the rate-limit floor between requests.
	MinInterval time.Duration

	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int

	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration

	// Metrics receives per-request metrics when non-nil.
	Metrics *observability.Metrics
}

// applyDefaults applies default values to the config.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MinInterval == 0 {
		c.MinInterval = DefaultMinInterval
	}
}

// citationRecord is one citing entry returned by the /citations/{doi}
// endpoint. Creation is the publication date of the citing work in
// YYYY, YYYY-MM, or YYYY-MM-DD form.
type citationRecord struct {
	OCI      string `json:"oci"`
	Citing   string `json:"citing"`
	Cited    string `json:"cited"`
	Creation string `json:"creation"`
}

// Client queries the COCI index for citation counts. Coverage absence is a
// first-class outcome: a DOI the index does not know yields nil counts, never
// zero.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
}

// New creates a new OpenCitations client with the given configuration.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	httpCfg := papersources.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		MinInterval:  cfg.MinInterval,
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		UserAgent:    "Helixir-CitationAlert/1.0 (mailto:support@helixir.io)",
		APIKey:       cfg.APIKey,
		APIKeyHeader: "authorization",
		Source:       sourceName,
		Metrics:      cfg.Metrics,
	}

	return &Client{
		config:     cfg,
		httpClient: papersources.NewHTTPClient(httpCfg),
		logger:     logger.With().Str("component", "opencitations").Logger(),
	}
}

// NewWithHTTPClient creates a client with a custom HTTP client, for tests.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "opencitations").Logger(),
	}
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// TotalCitations returns the cumulative citation count for a DOI.
// A DOI without index coverage returns (nil, nil).
func (c *Client) TotalCitations(ctx context.Context, doi string) (*int, error) {
	records, covered, err := c.fetchCitations(ctx, doi)
	if err != nil {
		return nil, err
	}
	if !covered {
		return nil, nil
	}

	count := len(records)
	return &count, nil
}

// SpikeDelta returns the number of citing records whose creation date falls
// inside the reference month. A DOI without index coverage returns (nil, nil).
// Records with unparseable creation dates are skipped and counted in logs.
func (c *Client) SpikeDelta(ctx context.Context, doi string, refMonth time.Time) (*int, error) {
	records, covered, err := c.fetchCitations(ctx, doi)
	if err != nil {
		return nil, err
	}
	if !covered {
		return nil, nil
	}

	monthStart := time.Date(refMonth.Year(), refMonth.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	delta := 0
	skipped := 0
	for _, rec := range records {
		created, ok := parseCreation(rec.Creation)
		if !ok {
			skipped++
			continue
		}
		if !created.Before(monthStart) && created.Before(monthEnd) {
			delta++
		}
	}
	if skipped > 0 {
		c.logger.Warn().
			Str("doi", doi).
			Int("skipped", skipped).
			Msg("citing records with unparseable creation dates skipped")
	}

	return &delta, nil
}

// fetchCitations retrieves all citing records for a DOI. The second return
// value reports index coverage: HTTP 404 and empty bodies both mean the DOI
// is unknown to the index.
func (c *Client) fetchCitations(ctx context.Context, doi string) ([]citationRecord, bool, error) {
	normalized := domain.NormalizeDOI(doi)
	if normalized == "" {
		return nil, false, nil
	}

	u := fmt.Sprintf("%s/citations/%s", c.config.BaseURL, url.PathEscape(normalized))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("citations request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}
	if len(body) == 0 {
		return nil, false, nil
	}

	var records []citationRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, false, fmt.Errorf("failed to parse citations response: %w", err)
	}
	// The index answers unknown DOIs with an empty array on some mirrors
	// instead of 404. Treat both as coverage absence.
	if len(records) == 0 {
		return nil, false, nil
	}

	return records, true, nil
}

// parseCreation parses a COCI creation date in YYYY, YYYY-MM, or YYYY-MM-DD
// form. Missing parts resolve to the first of the period.
func parseCreation(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
