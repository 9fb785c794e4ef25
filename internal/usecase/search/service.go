package search

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	openreg "github.com/jxucoder/openregulations.ai"
	"github.com/jxucoder/openregulations.ai/internal/domain"
)

const defaultTopK = 10

// Request describes one similarity search. Exactly one of QueryText or
// QueryVector must be set; a text query is embedded first.
type Request struct {
	DocketID    string
	QueryText   string
	QueryVector []float32
	TopK        int
	Sentiment   string
	ThemeID     string
}

// Service runs similarity and lexical searches over docket comments.
type Service struct {
	loader   IndexLoader
	embedder Embedder

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a search Service with a time-seeded cluster rand source.
func New(loader IndexLoader, embedder Embedder) *Service {
	seed := uint64(time.Now().UnixNano())
	return &Service{
		loader:   loader,
		embedder: embedder,
		rng:      rand.New(rand.NewPCG(seed, seed>>32)),
	}
}

// WithRand replaces the cluster rand source. Used by tests for
// deterministic centroid draws.
func (s *Service) WithRand(rng *rand.Rand) *Service {
	s.rng = rng
	return s
}

// Search embeds the query if needed, ranks one docket's comments and
// hydrates the hits into full comments.
func (s *Service) Search(ctx context.Context, req Request) ([]domain.RetrievedComment, error) {
	vector, err := s.queryVector(ctx, req)
	if err != nil {
		return nil, err
	}

	filter, err := buildFilter(req.Sentiment, req.ThemeID)
	if err != nil {
		return nil, err
	}

	idx, err := s.loader.Load(ctx, req.DocketID)
	if err != nil {
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	hits, err := idx.Search(vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("search docket %s: %w", req.DocketID, err)
	}
	return s.loader.Hydrate(ctx, req.DocketID, hits)
}

// SearchAcross fans one query out over several dockets. Dockets that fail
// to load or hydrate are absent from the result map.
func (s *Service) SearchAcross(ctx context.Context, req Request, docketIDs []string) (map[string][]domain.RetrievedComment, error) {
	vector, err := s.queryVector(ctx, req)
	if err != nil {
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	perDocket := openreg.SearchAcross(ctx, s.loader, vector, docketIDs, topK)

	out := make(map[string][]domain.RetrievedComment, len(perDocket))
	for id, hits := range perDocket {
		hydrated, err := s.loader.Hydrate(ctx, id, hits)
		if err != nil {
			continue
		}
		out[id] = hydrated
	}
	return out, nil
}

// Retrieve runs a plain top-k vector search over one docket. Thin
// wrapper used by the chat orchestrator.
func (s *Service) Retrieve(ctx context.Context, docketID string, vector []float32, topK int) ([]domain.RetrievedComment, error) {
	return s.Search(ctx, Request{DocketID: docketID, QueryVector: vector, TopK: topK})
}

// TextSearch is the lexical fallback for dockets without embeddings.
func (s *Service) TextSearch(ctx context.Context, docketID, query string, topK int) ([]openreg.TextResult, error) {
	comments, err := s.loader.Comments(ctx, docketID)
	if err != nil {
		return nil, err
	}

	if topK <= 0 {
		topK = defaultTopK
	}
	results := openreg.TextSearch(query, comments)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Cluster partitions a docket's comments into k approximate groups.
func (s *Service) Cluster(ctx context.Context, docketID string, k int) ([]openreg.Assignment, error) {
	idx, err := s.loader.Load(ctx, docketID)
	if err != nil {
		return nil, err
	}

	// rand.Rand is not safe for concurrent use.
	s.mu.Lock()
	defer s.mu.Unlock()
	return idx.Cluster(k, s.rng), nil
}

func (s *Service) queryVector(ctx context.Context, req Request) ([]float32, error) {
	if len(req.QueryVector) > 0 {
		return req.QueryVector, nil
	}
	if req.QueryText == "" {
		return nil, fmt.Errorf("query text or vector required: %w", domain.ErrInvalidRequest)
	}

	result, err := s.embedder.Embed(ctx, req.QueryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return result.Embedding, nil
}

func buildFilter(sentiment, themeID string) (*openreg.Filter, error) {
	if sentiment == "" && themeID == "" {
		return nil, nil
	}

	parsed, err := openreg.ParseSentiment(sentiment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, domain.ErrInvalidRequest)
	}
	return &openreg.Filter{Sentiment: parsed, ThemeID: themeID}, nil
}
