package llm

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/citation-alert-service/internal/domain"
)

func TestAPIErrorIsTransient(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       bool
	}{
		{"network error", 0, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"rate limited is not transient", http.StatusTooManyRequests, false},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{Provider: "gemini", StatusCode: tt.statusCode}
			assert.Equal(t, tt.want, err.IsTransient())
		})
	}
}

func TestClassifyAPIError(t *testing.T) {
	t.Run("429 becomes quota error", func(t *testing.T) {
		err := classifyAPIError(&APIError{Provider: "gemini", StatusCode: 429, Message: "quota"})
		assert.True(t, errors.Is(err, domain.ErrQuotaExhausted))
	})

	t.Run("RESOURCE_EXHAUSTED type becomes quota error", func(t *testing.T) {
		err := classifyAPIError(&APIError{Provider: "gemini", StatusCode: 403, Type: "RESOURCE_EXHAUSTED"})
		assert.True(t, errors.Is(err, domain.ErrQuotaExhausted))
	})

	t.Run("other errors pass through", func(t *testing.T) {
		apiErr := &APIError{Provider: "anthropic", StatusCode: 400, Type: "invalid_request_error"}
		err := classifyAPIError(apiErr)
		assert.Same(t, error(apiErr), err)
	})
}

func TestAPIErrorMessage(t *testing.T) {
	withType := &APIError{Provider: "gemini", StatusCode: 400, Type: "INVALID_ARGUMENT", Message: "bad model"}
	assert.Contains(t, withType.Error(), "INVALID_ARGUMENT")
	assert.Contains(t, withType.Error(), "bad model")

	withoutType := &APIError{Provider: "anthropic", StatusCode: 500, Message: "oops"}
	assert.Contains(t, withoutType.Error(), "status 500")
}
