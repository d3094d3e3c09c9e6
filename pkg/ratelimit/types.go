package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of a single rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait. Zero when allowed.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// Store keeps per-key counters that expire after a window.
type Store interface {
	// Increment adds n to the counter for key, starting a new window of the
	// given length when none is active. It returns the new count and the
	// time left until the window closes.
	Increment(ctx context.Context, key string, n int, window time.Duration) (count int64, ttl time.Duration, err error)

	// Reset drops the counter for key.
	Reset(ctx context.Context, key string) error
}
