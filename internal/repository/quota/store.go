package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jxucoder/openregulations.ai/internal/db"
	"github.com/jxucoder/openregulations.ai/internal/domain"
)

// kv is the consumer interface for quota counters (ISP).
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// The composition root passes the db facade.
var _ kv = db.Store(nil)

// counterDTO is the persisted per-identity usage record. There is no
// atomic increment in the KV contract, so callers read, bump and write
// back; concurrent requests may lose an update, which undercounts in
// the caller's favor.
type counterDTO struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

// Store persists daily usage counters keyed by caller identity.
type Store struct {
	kv     kv
	prefix string
}

// New creates a quota counter store.
func New(kv kv, keyPrefix string) *Store {
	return &Store{kv: kv, prefix: keyPrefix}
}

func (s *Store) key(identity string) string {
	return s.prefix + "quota:" + identity
}

// Get returns the counter for an identity. A missing key returns a
// zero counter and ok=false, not an error.
func (s *Store) Get(ctx context.Context, identity string) (domain.QuotaCounter, bool, error) {
	raw, err := s.kv.Get(ctx, s.key(identity))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.QuotaCounter{}, false, nil
		}
		return domain.QuotaCounter{}, false, fmt.Errorf("get quota %s: %w", identity, err)
	}

	var dto counterDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return domain.QuotaCounter{}, false, fmt.Errorf("unmarshal quota %s: %w", identity, err)
	}
	return domain.QuotaCounter{Count: dto.Count, ResetAt: dto.ResetAt}, true, nil
}

// Put writes the counter with a TTL that expires it at c.ResetAt, so
// stale windows clean themselves up even if never read again.
func (s *Store) Put(ctx context.Context, identity string, c domain.QuotaCounter, now time.Time) error {
	ttl := c.ResetAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Second
	}

	raw, err := json.Marshal(counterDTO{Count: c.Count, ResetAt: c.ResetAt})
	if err != nil {
		return fmt.Errorf("marshal quota %s: %w", identity, err)
	}
	if err := s.kv.SetWithTTL(ctx, s.key(identity), raw, ttl); err != nil {
		return fmt.Errorf("put quota %s: %w", identity, err)
	}
	return nil
}
