package openregulations

import (
	"context"
	"fmt"
	"sort"
)

// SearchResult is a single ranked hit from an index scan.
// Score is cosine similarity clipped to [0, 1]; higher is better.
type SearchResult struct {
	ID          string
	Score       float64
	Sentiment   Sentiment
	ThemeIDs    []string
	TextPreview string
}

// Filter restricts a search to records matching the given metadata before
// ranking. Zero values mean "no restriction".
type Filter struct {
	Sentiment Sentiment
	ThemeID   string
}

func (f *Filter) matches(r *VectorRecord) bool {
	if f == nil {
		return true
	}
	if f.Sentiment != "" && r.Sentiment != f.Sentiment {
		return false
	}
	if f.ThemeID != "" {
		found := false
		for _, id := range r.ThemeIDs {
			if id == f.ThemeID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Search ranks index records against the query vector and returns at most
// topK results sorted by descending score. Filters are applied before
// ranking, so a filtered search is equivalent to ranking the pre-filtered
// subset directly. Ties keep original index order (stable sort).
func (idx *Index) Search(query []float32, topK int, f *Filter) ([]SearchResult, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(query), idx.dim)
	}
	if topK <= 0 {
		return nil, nil
	}

	results := make([]SearchResult, 0, min(topK, len(idx.records)))
	for i := range idx.records {
		r := &idx.records[i]
		if !f.matches(r) {
			continue
		}
		score, err := CosineSimilarity(query, r.Vector)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			ID:          r.ID,
			Score:       clip01(score),
			Sentiment:   r.Sentiment,
			ThemeIDs:    r.ThemeIDs,
			TextPreview: r.TextPreview,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Loader resolves a docket id to its vector index. Implementations own
// caching; the engine never stores indexes itself.
type Loader interface {
	Load(ctx context.Context, docketID string) (*Index, error)
}

// SearchAcross fans a query out over several dockets independently and
// returns a map keyed by docket id. A docket whose index fails to load is
// simply absent from the map; other dockets are unaffected.
func SearchAcross(
	ctx context.Context, loader Loader, query []float32,
	docketIDs []string, topKPerDocket int,
) map[string][]SearchResult {
	out := make(map[string][]SearchResult, len(docketIDs))
	for _, id := range docketIDs {
		idx, err := loader.Load(ctx, id)
		if err != nil {
			continue
		}
		results, err := idx.Search(query, topKPerDocket, nil)
		if err != nil {
			continue
		}
		out[id] = results
	}
	return out
}
