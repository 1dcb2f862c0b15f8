package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration indicates an operator-facing configuration mistake.
	// Configuration errors are fatal and never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrRateLimited indicates that the request was rate limited upstream.
	ErrRateLimited = errors.New("rate limited")

	// ErrQuotaExhausted indicates that a provider quota was used up. Quota
	// exhaustion is an expected steady-state condition, not a corruption:
	// callers degrade the affected item and continue.
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrFetchFailed indicates that a required provider call failed after
	// all retry attempts were spent.
	ErrFetchFailed = errors.New("fetch failed")
)

// ConfigurationError names the offending configuration value. It is fatal:
// the pipeline fails fast instead of retrying or silently dropping the value.
type ConfigurationError struct {
	Field   string
	Value   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("configuration error: %s %q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyExistsError provides details about a duplicate entity.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// RateLimitError provides details about a rate limit rejection.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// QuotaError reports provider quota exhaustion.
type QuotaError struct {
	Source  string
	Message string
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exhausted: %s", e.Source, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *QuotaError) Unwrap() error {
	return ErrQuotaExhausted
}

// ExternalAPIError provides details about an external API failure.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// IsTransient returns true if the failure may succeed on retry: rate-limit
// rejections (429), server errors (5xx), and network failures (status 0, no
// HTTP response received). Everything else is permanent and must surface
// immediately.
func (e *ExternalAPIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == 429 ||
		e.StatusCode >= 500
}

// FetchFailure marks a pipeline stage whose required provider call failed
// after exhausting retries. A FetchFailure during paper fetch or citation
// measurement aborts the run.
type FetchFailure struct {
	Stage RunStage
	Cause error
}

// Error implements the error interface.
func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch failed in stage %s: %v", e.Stage, e.Cause)
}

// Unwrap returns the chain below the failure. Callers can reach both
// ErrFetchFailed (via Is) and the concrete cause (via As).
func (e *FetchFailure) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches the ErrFetchFailed sentinel.
func (e *FetchFailure) Is(target error) bool {
	return target == ErrFetchFailed
}

// NewFetchFailure creates a new FetchFailure for the named stage.
func NewFetchFailure(stage string, cause error) *FetchFailure {
	return &FetchFailure{Stage: RunStage(stage), Cause: cause}
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, value, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Value: value, Message: message}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{Entity: entity, ID: id}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Source: source, RetryAfter: retryAfter}
}

// NewQuotaError creates a new QuotaError.
func NewQuotaError(source, message string) *QuotaError {
	return &QuotaError{Source: source, Message: message}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}
