package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing docket, index, or analysis.
	ErrNotFound = errors.New("not found")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrRateLimited signals an exhausted chat quota.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrCompletionProviderError signals a completion model failure.
	ErrCompletionProviderError = errors.New("completion provider error")
	// ErrStoreUnavailable signals a counter store failure.
	ErrStoreUnavailable = errors.New("counter store unavailable")
	// ErrInvalidRequest signals a malformed caller request.
	ErrInvalidRequest = errors.New("invalid request")
)

// RateLimitError wraps ErrRateLimited with the seconds until the caller's
// quota window resets.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %ds", ErrRateLimited.Error(), e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// NewRateLimit creates a rate limit error with a retry hint.
func NewRateLimit(retryAfterSeconds int) error {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	return &RateLimitError{RetryAfterSeconds: retryAfterSeconds}
}
