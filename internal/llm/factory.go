package llm

import (
	"fmt"
	"time"
)

// FactoryConfig holds the parameters needed to create a Summarizer.
// This is defined in the llm package to avoid importing the config package,
// keeping the llm package free of infrastructure dependencies.
type FactoryConfig struct {
	// Provider is the summarization provider name ("gemini" or "anthropic").
	Provider string
	// Temperature is the LLM temperature setting.
	Temperature float64
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int
	// Gemini contains Gemini-specific settings.
	Gemini GeminiConfig
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig
}

// NewSummarizer creates a Summarizer based on the configuration.
// Supports "gemini" and "anthropic" providers. Returns an error for
// unsupported or empty provider values.
func NewSummarizer(cfg FactoryConfig) (Summarizer, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(cfg.Gemini, cfg.Temperature, cfg.Timeout, cfg.MaxRetries), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.Anthropic, cfg.Temperature, cfg.Timeout, cfg.MaxRetries), nil
	default:
		return nil, fmt.Errorf("unsupported summarizer provider: %q", cfg.Provider)
	}
}
