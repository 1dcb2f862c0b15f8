// Package llm provides LLM-backed abstract summarization for the citation
// alert pipeline.
//
// The package defines the Summarizer abstraction and the prompt construction
// shared by the provider implementations (Gemini, Anthropic). A summarizer
// turns a paper's abstract into a short plain-text digest in the configured
// target language. Quota exhaustion is reported as a domain.QuotaError so the
// pipeline can degrade a single paper instead of failing the run.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// SummaryRequest contains the paper fields a summarizer needs.
type SummaryRequest struct {
	// Title is the paper title.
	Title string

	// Abstract is the abstract text to summarize.
	Abstract string

	// Journal is the publishing journal name (optional, prompt context only).
	Journal string

	// TargetLanguage is the language the summary should be written in.
	TargetLanguage string
}

// SummaryResult contains the generated summary and usage metadata.
type SummaryResult struct {
	// Summary is the generated summary text.
	Summary string

	// Model is the model that produced the summary.
	Model string

	// InputTokens is the number of input tokens used.
	InputTokens int

	// OutputTokens is the number of output tokens used.
	OutputTokens int
}

// Summarizer defines the interface for LLM-based abstract summarization.
//
// Implementations handle provider-specific API calls, retries on transient
// failures, and quota classification while conforming to this interface.
type Summarizer interface {
	// Summarize generates a short summary of the paper's abstract.
	// The context should be used for cancellation and deadline propagation.
	Summarize(ctx context.Context, req SummaryRequest) (*SummaryResult, error)

	// Provider returns the name of the LLM provider (e.g., "gemini", "anthropic").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}

// BuildSummaryPrompt builds the system and user prompts for summarization.
// The system prompt fixes the role, length, and output language. The user
// prompt carries the paper fields.
func BuildSummaryPrompt(req SummaryRequest) (systemPrompt, userPrompt string) {
	language := req.TargetLanguage
	if language == "" {
		language = "English"
	}

	var sys strings.Builder
	sys.WriteString("You are a scientific literature assistant. You summarize ")
	sys.WriteString("biomedical paper abstracts for researchers monitoring recently ")
	sys.WriteString("cited work.\n\n")
	sys.WriteString("Requirements:\n")
	sys.WriteString("1. Write 3 to 5 sentences of plain prose, no bullet points.\n")
	sys.WriteString("2. Cover the research question, approach, and main finding.\n")
	sys.WriteString("3. Do not speculate beyond what the abstract states.\n")
	sys.WriteString("4. Do not repeat the title or cite the authors.\n")
	sys.WriteString(fmt.Sprintf("5. Write the summary in %s.\n", language))

	var usr strings.Builder
	usr.WriteString("Summarize the following paper abstract.\n\n")
	usr.WriteString(fmt.Sprintf("Title: %s\n", req.Title))
	if req.Journal != "" {
		usr.WriteString(fmt.Sprintf("Journal: %s\n", req.Journal))
	}
	usr.WriteString("\nAbstract:\n---\n")
	usr.WriteString(req.Abstract)
	usr.WriteString("\n---")

	return sys.String(), usr.String()
}
