package papersources

import (
	"context"
	"time"

	"github.com/helixir/citation-alert-service/internal/domain"
)

// SearchWindow is the publication date range a search covers. Both bounds are
// inclusive.
type SearchWindow struct {
	From time.Time
	To   time.Time
}

// SearchParams defines the parameters for fetching recently published papers.
type SearchParams struct {
	// Query is the translated search expression (required).
	Query string

	// Window bounds the publication dates of fetched papers.
	Window SearchWindow

	// ArticleTypes filters fetched papers by publication type. A nil slice
	// means no filter; an empty non-nil slice also means no filter, so the
	// caller decides the distinction before building params.
	ArticleTypes []string

	// MaxResults caps the total number of papers fetched across pages.
	// Zero uses the source default.
	MaxResults int
}

// PaperSource is the discovery-stage abstraction over an academic database.
// Implementations handle pagination internally and return the full candidate
// set with duplicates collapsed.
type PaperSource interface {
	// Search queries the source for papers matching the given parameters.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Apply rate limiting before every request
	//   - Transform source-specific responses to domain.Paper
	//   - Wrap failures with source context
	Search(ctx context.Context, params SearchParams) ([]domain.Paper, error)

	// Name returns a human-readable name for this source, used for logging
	// and metrics labels.
	Name() string
}
