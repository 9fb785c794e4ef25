package comments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	openreg "github.com/jxucoder/openregulations.ai"
	"github.com/jxucoder/openregulations.ai/internal/db"
	"github.com/jxucoder/openregulations.ai/internal/domain"
)

// store is the consumer interface for docket blobs (ISP).
type store interface {
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
}

// The composition root passes the db facade.
var _ store = db.Store(nil)

// docket bundles everything parsed from one docket blob. Read-only after
// construction, so cached copies are safe under concurrent readers.
type docket struct {
	index    *openreg.Index // nil when no comment carries an embedding
	comments []openreg.Comment
	authors  map[string]string
	texts    map[string]string
}

// Repo loads per-docket comment corpora from the JSON store and caches the
// built vector indexes for the process lifetime. Implements openreg.Loader.
type Repo struct {
	store  store
	prefix string

	mu    sync.RWMutex
	cache map[string]*docket
}

// New creates a comments repository.
func New(s store, keyPrefix string) *Repo {
	return &Repo{
		store:  s,
		prefix: keyPrefix,
		cache:  make(map[string]*docket),
	}
}

func (r *Repo) key(docketID string) string {
	return r.prefix + "docket:" + docketID + ":comments"
}

// Load returns the vector index for a docket, building and caching it on
// first use. Returns domain.ErrNotFound for a missing docket or one whose
// comments carry no embeddings.
func (r *Repo) Load(ctx context.Context, docketID string) (*openreg.Index, error) {
	d, err := r.load(ctx, docketID)
	if err != nil {
		return nil, err
	}
	if d.index == nil {
		return nil, fmt.Errorf("docket %s has no embeddings: %w", docketID, domain.ErrNotFound)
	}
	return d.index, nil
}

// Comments returns the plain-text comment list for a docket (for the
// lexical fallback). Returns domain.ErrNotFound for a missing docket.
func (r *Repo) Comments(ctx context.Context, docketID string) ([]openreg.Comment, error) {
	d, err := r.load(ctx, docketID)
	if err != nil {
		return nil, err
	}
	return d.comments, nil
}

// Hydrate resolves search hits into full comment text and author. Unknown
// ids keep the preview text they arrived with.
func (r *Repo) Hydrate(ctx context.Context, docketID string, hits []openreg.SearchResult) ([]domain.RetrievedComment, error) {
	d, err := r.load(ctx, docketID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedComment, len(hits))
	for i, h := range hits {
		text := h.TextPreview
		if full, ok := d.texts[h.ID]; ok {
			text = full
		}
		out[i] = domain.RetrievedComment{
			ID:         h.ID,
			Text:       text,
			Author:     d.authors[h.ID],
			Sentiment:  string(h.Sentiment),
			Similarity: h.Score,
		}
	}
	return out, nil
}

func (r *Repo) load(ctx context.Context, docketID string) (*docket, error) {
	r.mu.RLock()
	d, ok := r.cache[docketID]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}

	key := r.key(docketID)
	raw, err := r.store.JSONGet(ctx, key, "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("docket %s: %w", docketID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("json.get %s: %w", key, err)
	}

	dto, err := parseDocket(raw)
	if err != nil {
		return nil, fmt.Errorf("parse docket %s: %w", docketID, err)
	}

	d = &docket{
		comments: dto.plainComments(),
		authors:  dto.authors(),
		texts:    dto.texts(),
	}
	if records := dto.vectorRecords(); len(records) > 0 {
		idx, err := openreg.NewIndex(docketID, records)
		if err != nil {
			return nil, fmt.Errorf("build index %s: %w", docketID, err)
		}
		d.index = idx
	}

	// Two concurrent first loads may both build; last write wins and the
	// copies are equivalent, so no extra coordination is needed.
	r.mu.Lock()
	r.cache[docketID] = d
	r.mu.Unlock()

	return d, nil
}

// Evict drops a docket from the cache; the next request reloads it.
func (r *Repo) Evict(docketID string) {
	r.mu.Lock()
	delete(r.cache, docketID)
	r.mu.Unlock()
}
