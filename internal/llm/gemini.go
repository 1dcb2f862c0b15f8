package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/helixir/citation-alert-service/internal/papersources"
)

const (
	// DefaultGeminiBaseURL is the base URL for the Gemini REST API.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// defaultGeminiMaxTokens is the default output token cap for summaries.
	defaultGeminiMaxTokens = 1024
)

// geminiRequest is the request body for the Gemini generateContent endpoint.
type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

// geminiContent is a role-tagged list of content parts.
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiPart is a single text part.
type geminiPart struct {
	Text string `json:"text"`
}

// geminiGenerationConfig controls sampling for the request.
type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// geminiResponse is the response body from the generateContent endpoint.
type geminiResponse struct {
	Candidates    []geminiCandidate   `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
	ModelVersion  string              `json:"modelVersion"`
}

// geminiCandidate is one generated completion.
type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// geminiUsageMetadata contains token usage information.
type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// geminiErrorResponse wraps the error payload from the Gemini API.
type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GeminiProvider implements Summarizer using the Gemini generateContent API.
type GeminiProvider struct {
	httpClient  *http.Client
	rateLimiter *papersources.RateLimiter
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxRetries  int
	retryDelay  time.Duration
}

// GeminiConfig holds the parameters needed to create a Gemini provider.
// This is defined in the llm package to avoid importing the config package.
type GeminiConfig struct {
	// APIKey is the Gemini API key.
	APIKey string
	// Model is the model identifier (e.g., "gemini-2.0-flash").
	Model string
	// BaseURL is the API base URL.
	BaseURL string
	// MinInterval is the rate-limit floor between requests.
	MinInterval time.Duration
}

// NewGeminiProvider creates a new GeminiProvider with the given configuration.
// The timeout parameter controls the HTTP client timeout for API calls.
// The maxRetries parameter controls how many times transient errors are retried.
func NewGeminiProvider(cfg GeminiConfig, temperature float64, timeout time.Duration, maxRetries int) *GeminiProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}

	return &GeminiProvider{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: papersources.NewRateLimiter(cfg.MinInterval),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     baseURL,
		temperature: temperature,
		maxRetries:  maxRetries,
		retryDelay:  time.Second,
	}
}

// Summarize generates a summary of the paper's abstract using the Gemini
// generateContent API.
//
// Transient errors (network failures and 5xx) are retried up to maxRetries
// times with exponential backoff. Status 429 and RESOURCE_EXHAUSTED responses
// become domain.QuotaError without retrying.
func (p *GeminiProvider) Summarize(ctx context.Context, req SummaryRequest) (*SummaryResult, error) {
	systemPrompt, userPrompt := BuildSummaryPrompt(req)

	apiReq := geminiRequest{
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: systemPrompt}},
		},
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: userPrompt}},
			},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     p.temperature,
			MaxOutputTokens: defaultGeminiMaxTokens,
		},
	}

	var resp *geminiResponse
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.retryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("gemini: context cancelled during retry: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := p.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("gemini: rate limiter wait failed: %w", err)
		}

		resp, lastErr = p.sendRequest(ctx, apiReq)
		if lastErr == nil {
			break
		}

		apiErr, ok := lastErr.(*APIError)
		if !ok {
			return nil, lastErr
		}
		if !apiErr.IsTransient() {
			return nil, classifyAPIError(apiErr)
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("gemini: all %d retries exhausted: %w", p.maxRetries, lastErr)
	}

	return p.parseResponse(resp)
}

// Provider returns the provider name.
func (p *GeminiProvider) Provider() string {
	return "gemini"
}

// Model returns the model identifier being used.
func (p *GeminiProvider) Model() string {
	return p.model
}

// sendRequest sends a single request to the generateContent endpoint and
// returns the parsed response or an error.
func (p *GeminiProvider) sendRequest(ctx context.Context, apiReq geminiRequest) (*geminiResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are considered transient and eligible for retry.
		return nil, &APIError{
			Provider:   "gemini",
			StatusCode: 0,
			Message:    fmt.Sprintf("request failed: %v", err),
			Type:       "network_error",
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, &APIError{
			Provider:   "gemini",
			StatusCode: 0,
			Message:    fmt.Sprintf("failed to read response body: %v", err),
			Type:       "network_error",
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseGeminiAPIError(httpResp.StatusCode, respBody)
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("gemini: failed to unmarshal response: %w", err)
	}

	return &resp, nil
}

// parseResponse extracts the summary text from the first candidate's parts.
func (p *GeminiProvider) parseResponse(resp *geminiResponse) (*SummaryResult, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: response contains no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	summary := strings.TrimSpace(sb.String())
	if summary == "" {
		return nil, fmt.Errorf("gemini: response contains no text parts")
	}

	model := resp.ModelVersion
	if model == "" {
		model = p.model
	}

	return &SummaryResult{
		Summary:      summary,
		Model:        model,
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// parseGeminiAPIError parses a Gemini API error from the response status code and body.
func parseGeminiAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   "gemini",
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp geminiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Status
	}

	return apiErr
}
