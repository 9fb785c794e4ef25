package quota

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/jxucoder/openregulations.ai/internal/domain"
	"github.com/jxucoder/openregulations.ai/internal/metrics"
)

// Service enforces the per-identity daily chat quota.
//
// Check and Record are separate operations: a request that passes Check
// is only counted after it is served, so failed completions never burn
// quota. The counter is read-then-written without an atomic increment;
// concurrent requests from one identity may undercount, never overcount.
type Service struct {
	store  CounterStore
	limit  int
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// New creates a quota Service.
func New(store CounterStore, limit int, window time.Duration, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// Check returns the current quota status for an identity. When the
// quota is exhausted it returns a *domain.RateLimitError carrying the
// seconds until the window resets. Counter store failures fail open:
// the request is allowed rather than blocking chat on a cache outage.
func (s *Service) Check(ctx context.Context, identity string) (domain.QuotaStatus, error) {
	now := s.now()

	c, ok, err := s.store.Get(ctx, identity)
	if err != nil {
		s.logger.Warn("quota check failed open",
			zap.String("identity", identity),
			zap.Error(err),
		)
		metrics.QuotaDecisionsTotal.WithLabelValues("fail_open").Inc()
		return s.freshStatus(now), nil
	}
	if !ok || c.Expired(now) {
		metrics.QuotaDecisionsTotal.WithLabelValues("allowed").Inc()
		return s.freshStatus(now), nil
	}

	st := s.status(c)
	if c.Count >= s.limit {
		metrics.QuotaDecisionsTotal.WithLabelValues("denied").Inc()
		return st, domain.NewRateLimit(retryAfterSeconds(c.ResetAt, now))
	}

	metrics.QuotaDecisionsTotal.WithLabelValues("allowed").Inc()
	return st, nil
}

// Record counts one served request against the identity's window. A
// missing or expired counter starts a new window anchored at now.
func (s *Service) Record(ctx context.Context, identity string) error {
	now := s.now()

	c, ok, err := s.store.Get(ctx, identity)
	if err != nil || !ok || c.Expired(now) {
		c = domain.QuotaCounter{Count: 0, ResetAt: now.Add(s.window)}
	}
	c.Count++

	return s.store.Put(ctx, identity, c, now)
}

// Status reports usage without enforcing the limit. Exhausted quotas
// return Remaining=0, not an error. Counter store failures fail open
// the same way Check does.
func (s *Service) Status(ctx context.Context, identity string) (domain.QuotaStatus, error) {
	now := s.now()

	c, ok, err := s.store.Get(ctx, identity)
	if err != nil {
		s.logger.Warn("quota status failed open",
			zap.String("identity", identity),
			zap.Error(err),
		)
		return s.freshStatus(now), nil
	}
	if !ok || c.Expired(now) {
		return s.freshStatus(now), nil
	}
	return s.status(c), nil
}

func (s *Service) freshStatus(now time.Time) domain.QuotaStatus {
	return domain.QuotaStatus{
		Limit:     s.limit,
		Used:      0,
		Remaining: s.limit,
		ResetAt:   now.Add(s.window),
	}
}

func (s *Service) status(c domain.QuotaCounter) domain.QuotaStatus {
	remaining := s.limit - c.Count
	if remaining < 0 {
		remaining = 0
	}
	return domain.QuotaStatus{
		Limit:     s.limit,
		Used:      c.Count,
		Remaining: remaining,
		ResetAt:   c.ResetAt,
	}
}

func retryAfterSeconds(resetAt, now time.Time) int {
	return int(math.Ceil(resetAt.Sub(now).Seconds()))
}
