package domain

import "time"

// QuotaCounter is the per-identity usage count for the current window.
type QuotaCounter struct {
	Count   int
	ResetAt time.Time
}

// Expired reports whether the counter's window has passed.
func (c QuotaCounter) Expired(now time.Time) bool {
	return !c.ResetAt.After(now)
}

// QuotaStatus is the caller-visible view of the daily quota.
type QuotaStatus struct {
	Limit     int
	Used      int
	Remaining int
	ResetAt   time.Time
}
