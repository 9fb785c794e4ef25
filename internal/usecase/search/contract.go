package search

import (
	"context"

	openreg "github.com/jxucoder/openregulations.ai"
	"github.com/jxucoder/openregulations.ai/internal/domain"
)

// IndexLoader resolves dockets into vector indexes and plain comments.
type IndexLoader interface {
	Load(ctx context.Context, docketID string) (*openreg.Index, error)
	Comments(ctx context.Context, docketID string) ([]openreg.Comment, error)
	Hydrate(ctx context.Context, docketID string, hits []openreg.SearchResult) ([]domain.RetrievedComment, error)
}

// Embedder vectorizes text queries.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
