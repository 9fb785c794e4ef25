package quota

import (
	"context"
	"time"

	"github.com/jxucoder/openregulations.ai/internal/domain"
)

// CounterStore persists per-identity usage counters.
type CounterStore interface {
	Get(ctx context.Context, identity string) (domain.QuotaCounter, bool, error)
	Put(ctx context.Context, identity string, c domain.QuotaCounter, now time.Time) error
}
