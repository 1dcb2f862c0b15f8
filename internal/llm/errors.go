package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/helixir/citation-alert-service/internal/domain"
)

// APIError represents an error returned by an LLM provider API.
type APIError struct {
	// Provider is the name of the LLM provider (e.g., "gemini", "anthropic").
	Provider string
	// StatusCode is the HTTP status code returned by the API.
	StatusCode int
	// Message is the error message from the API.
	Message string
	// Type is the error type classification from the API.
	Type string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient returns true if the error may succeed on retry. This covers
// server errors (5xx) and network errors (StatusCode 0 indicates no HTTP
// response was received). Quota errors (429) are not transient here: they
// are surfaced as domain.QuotaError and handled by degrading the summary.
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// quotaErrorTypes are the provider error type strings that signal exhausted
// quota rather than a momentary burst.
var quotaErrorTypes = []string{
	"resource_exhausted",
	"rate_limit_error",
	"insufficient_quota",
}

// classifyAPIError converts a provider APIError into the domain error the
// pipeline acts on. Status 429 and quota-flavored error types become
// domain.QuotaError; everything else passes through unchanged.
func classifyAPIError(apiErr *APIError) error {
	if apiErr.StatusCode == http.StatusTooManyRequests {
		return domain.NewQuotaError(apiErr.Provider, apiErr.Message)
	}
	lowered := strings.ToLower(apiErr.Type)
	for _, t := range quotaErrorTypes {
		if lowered == t {
			return domain.NewQuotaError(apiErr.Provider, apiErr.Message)
		}
	}
	return apiErr
}
