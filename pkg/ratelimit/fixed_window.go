package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// FixedWindow allows a fixed number of hits per key in each window.
type FixedWindow struct {
	store  Store
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// FixedWindowOption configures a FixedWindow.
type FixedWindowOption func(*FixedWindow)

// WithPrefix namespaces keys so several limiters can share one store.
func WithPrefix(prefix string) FixedWindowOption {
	return func(l *FixedWindow) {
		l.prefix = prefix
	}
}

// WithClock overrides time.Now for ResetAt calculation.
func WithClock(now func() time.Time) FixedWindowOption {
	return func(l *FixedWindow) {
		if now != nil {
			l.now = now
		}
	}
}

// NewFixedWindow validates the limit and the window.
func NewFixedWindow(store Store, limit int, window time.Duration, opts ...FixedWindowOption) (*FixedWindow, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: must be positive, got %d", ErrInvalidLimit, limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: must be positive, got %v", ErrInvalidWindow, window)
	}
	l := &FixedWindow{store: store, limit: limit, window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow counts one hit for key.
func (l *FixedWindow) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}
	count, ttl, err := l.store.Increment(ctx, l.prefix+key, 1, l.window)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: increment %q: %w", key, err)
	}
	return &Result{
		Allowed:   count <= int64(l.limit),
		Limit:     l.limit,
		Remaining: max(l.limit-int(count), 0),
		ResetAt:   l.now().Add(ttl),
	}, nil
}

// Reset clears the counter for key.
func (l *FixedWindow) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, l.prefix+key)
}
