package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/citation-alert-service/internal/domain"
	"github.com/helixir/citation-alert-service/internal/observability"
	"github.com/helixir/citation-alert-service/internal/papersources"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultMinInterval is the request spacing without an API key. NCBI
	// allows 3 requests per second; with an API key the limit rises to 10.
	DefaultMinInterval = 334 * time.Millisecond

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default cap on papers fetched per search.
	DefaultMaxResults = 500

	// esearchPageSize is the number of PMIDs requested per esearch page.
	esearchPageSize = 200

	// efetchBatchSize is the maximum PMIDs per efetch request.
	efetchBatchSize = 100

	// sourceName is the human-readable name for this source.
	sourceName = "PubMed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// MinInterval is the rate-limit floor between requests.
	MinInterval time.Duration

	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int

	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration

	// MaxResults is the default cap on papers fetched per search.
	MaxResults int

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
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the papersources.PaperSource interface for PubMed.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Compile-time check that Client implements PaperSource.
var _ papersources.PaperSource = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := papersources.HTTPClientConfig{
		Timeout:     cfg.Timeout,
		MinInterval: cfg.MinInterval,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		UserAgent:   "Helixir-CitationAlert/1.0 (mailto:support@helixir.io)",
		Source:      sourceName,
		Metrics:     cfg.Metrics,
	}

	return &Client{
		config:     cfg,
		httpClient: papersources.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// Search queries PubMed for papers matching the given parameters.
// It pages through esearch.fcgi with retstart until the candidate PMID set is
// complete, then fetches metadata with efetch.fcgi in batches of at most 100
// PMIDs. Duplicate PMIDs are collapsed preserving first-seen order.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) ([]domain.Paper, error) {
	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}

	term := buildTerm(params.Query, params.ArticleTypes)

	pmids, err := c.collectPMIDs(ctx, term, params.Window, maxResults)
	if err != nil {
		return nil, fmt.Errorf("esearch failed: %w", err)
	}
	if len(pmids) == 0 {
		return []domain.Paper{}, nil
	}

	papers := make([]domain.Paper, 0, len(pmids))
	for start := 0; start < len(pmids); start += efetchBatchSize {
		end := start + efetchBatchSize
		if end > len(pmids) {
			end = len(pmids)
		}
		articles, err := c.efetch(ctx, pmids[start:end])
		if err != nil {
			return nil, fmt.Errorf("efetch failed: %w", err)
		}
		for _, article := range articles.Articles {
			papers = append(papers, articleToPaper(article))
		}
	}

	return papers, nil
}

// buildTerm appends the article-type filter to the translated query.
// An empty type list means no filter.
func buildTerm(query string, articleTypes []string) string {
	if len(articleTypes) == 0 {
		return query
	}

	filters := make([]string, 0, len(articleTypes))
	for _, t := range articleTypes {
		filters = append(filters, fmt.Sprintf("%q[pt]", t))
	}
	return fmt.Sprintf("(%s) AND (%s)", query, strings.Join(filters, " OR "))
}

// collectPMIDs pages through esearch until maxResults PMIDs are collected or
// the result set is exhausted. Duplicates are collapsed preserving
// first-seen order.
func (c *Client) collectPMIDs(ctx context.Context, term string, window papersources.SearchWindow, maxResults int) ([]string, error) {
	seen := make(map[string]struct{})
	pmids := make([]string, 0, maxResults)

	for offset := 0; len(pmids) < maxResults; {
		pageSize := esearchPageSize
		if remaining := maxResults - len(pmids); remaining < pageSize {
			pageSize = remaining
		}

		result, err := c.esearch(ctx, term, window, offset, pageSize)
		if err != nil {
			return nil, err
		}

		// A phrase-not-found warning means zero matches, not a failure.
		if result.ErrorList != nil && len(result.ErrorList.PhraseNotFound) > 0 {
			return pmids, nil
		}
		if len(result.IDList.IDs) == 0 {
			break
		}

		for _, id := range result.IDList.IDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			pmids = append(pmids, id)
			if len(pmids) >= maxResults {
				break
			}
		}

		offset += len(result.IDList.IDs)
		if offset >= result.Count {
			break
		}
	}

	return pmids, nil
}

// esearch performs one search page and returns matching PMIDs.
func (c *Client) esearch(ctx context.Context, term string, window papersources.SearchWindow, offset, retmax int) (*ESearchResult, error) {
	u, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("term", term)
	q.Set("retmode", "xml")
	q.Set("usehistory", "n")
	q.Set("retmax", strconv.Itoa(retmax))
	if offset > 0 {
		q.Set("retstart", strconv.Itoa(offset))
	}

	if !window.From.IsZero() || !window.To.IsZero() {
		q.Set("datetype", "pdat")
		if !window.From.IsZero() {
			q.Set("mindate", window.From.Format("2006/01/02"))
		}
		if !window.To.IsZero() {
			q.Set("maxdate", window.To.Format("2006/01/02"))
		}
	}

	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}

	u.RawQuery = q.Encode()

	var result ESearchResult
	if err := c.getXML(ctx, u.String(), "esearch", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// efetch retrieves article metadata for the given PMIDs.
func (c *Client) efetch(ctx context.Context, pmids []string) (*PubmedArticleSet, error) {
	if len(pmids) == 0 {
		return &PubmedArticleSet{}, nil
	}

	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")

	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}

	u.RawQuery = q.Encode()

	var result PubmedArticleSet
	if err := c.getXML(ctx, u.String(), "efetch", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// getXML executes a GET request and decodes the XML response into out.
func (c *Client) getXML(ctx context.Context, rawURL, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse XML response: %w", err)
	}
	return nil
}

// articleToPaper converts a PubmedArticle to a domain.Paper.
func articleToPaper(article PubmedArticle) domain.Paper {
	citation := article.MedlineCitation
	pubmedData := article.PubmedData

	journal := citation.Article.Journal.Title
	if journal == "" {
		journal = citation.Article.Journal.ISOAbbreviation
	}

	var articleTypes []string
	if citation.Article.PublicationTypeList != nil {
		for _, pt := range citation.Article.PublicationTypeList.PublicationTypes {
			articleTypes = append(articleTypes, pt.Value)
		}
	}

	return domain.Paper{
		PMID:          citation.PMID.Value,
		DOI:           domain.NormalizeDOI(extractDOI(citation.Article, pubmedData)),
		Title:         citation.Article.ArticleTitle,
		Journal:       journal,
		Abstract:      extractAbstract(citation.Article.Abstract),
		PublishedDate: extractPublicationDate(citation.Article),
		ArticleTypes:  articleTypes,
	}
}

// extractDOI extracts the DOI from article metadata.
// It checks ELocationID first (more reliable), then ArticleIdList.
func extractDOI(article Article, pubmedData PubmedData) string {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return eloc.Value
		}
	}

	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "doi" {
			return aid.Value
		}
	}

	return ""
}

// extractPublicationDate extracts the publication date from the article.
// Uses ArticleDate if available, otherwise PubDate from the journal issue.
func extractPublicationDate(article Article) *time.Time {
	for _, ad := range article.ArticleDate {
		if ad.DateType == "epublish" || ad.DateType == "Electronic" || ad.DateType == "" {
			if t := parseDate(ad.Year, ad.Month, ad.Day); t != nil {
				return t
			}
		}
	}

	pubDate := article.Journal.JournalIssue.PubDate

	// MedlineDate format, e.g. "2020 Jan-Feb" or "2020-2021"
	if pubDate.MedlineDate != "" {
		if year := extractYearFromMedlineDate(pubDate.MedlineDate); year > 0 {
			t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			return &t
		}
	}

	if pubDate.Year != "" {
		if t := parseDate(pubDate.Year, pubDate.Month, pubDate.Day); t != nil {
			return t
		}
		if year, err := strconv.Atoi(pubDate.Year); err == nil {
			t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			return &t
		}
	}

	return nil
}

// parseDate parses year, month, day strings into a time.Time.
func parseDate(year, month, day string) *time.Time {
	if year == "" {
		return nil
	}

	y, err := strconv.Atoi(year)
	if err != nil {
		return nil
	}

	m := parseMonth(month)
	d := 1
	if day != "" {
		if parsed, err := strconv.Atoi(day); err == nil {
			d = parsed
		}
	}

	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// monthNames maps lowercase month name strings (abbreviation and full) to
// time.Month.
var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// parseMonth parses a month string (numeric or name) into time.Month.
func parseMonth(month string) time.Month {
	if month == "" {
		return time.January
	}

	if m, err := strconv.Atoi(month); err == nil && m >= 1 && m <= 12 {
		return time.Month(m)
	}

	if m, ok := monthNames[strings.ToLower(month)]; ok {
		return m
	}

	return time.January
}

// extractYearFromMedlineDate extracts the year from a MedlineDate string.
func extractYearFromMedlineDate(medlineDate string) int {
	parts := strings.Fields(medlineDate)
	if len(parts) > 0 {
		yearStr := strings.Split(parts[0], "-")[0]
		if year, err := strconv.Atoi(yearStr); err == nil {
			return year
		}
	}
	return 0
}

// extractAbstract concatenates abstract sections into a single string.
// Returns nil when the article carries no abstract, which downstream stages
// must keep distinct from an empty one.
func extractAbstract(abstract *Abstract) *string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return nil
	}

	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		s := strings.TrimSpace(abstract.AbstractTexts[0].Value)
		if s == "" {
			return nil
		}
		return &s
	}

	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return nil
	}

	s := strings.Join(parts, " ")
	return &s
}
