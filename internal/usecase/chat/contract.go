package chat

import (
	"context"

	"github.com/jxucoder/openregulations.ai/internal/domain"
)

// QuotaGate enforces and records the per-identity daily quota.
type QuotaGate interface {
	Check(ctx context.Context, identity string) (domain.QuotaStatus, error)
	Record(ctx context.Context, identity string) error
}

// Embedder vectorizes the user's question for retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Retriever returns the top-k comments most similar to the query vector.
type Retriever interface {
	Retrieve(ctx context.Context, docketID string, vector []float32, topK int) ([]domain.RetrievedComment, error)
}

// AnalysisReader fetches the precomputed docket analysis summary.
type AnalysisReader interface {
	Get(ctx context.Context, docketID string) (*domain.AnalysisSummary, error)
}

// Completer invokes the chat completion model. CompleteStream calls
// onDelta for each incremental chunk and returns the accumulated text.
type Completer interface {
	Complete(ctx context.Context, system string, turns []domain.ChatTurn) (string, error)
	CompleteStream(ctx context.Context, system string, turns []domain.ChatTurn, onDelta func(string) error) (string, error)
}
