// Package ratelimit throttles public endpoints with fixed-window counters.
//
// A FixedWindow limiter counts hits per key in a Store. MemoryStore serves a
// single instance; RedisStore shares the counters between replicas. The
// Middleware keys requests (by client IP unless told otherwise), sets the
// X-RateLimit-* headers and rejects requests over the limit with 429.
//
//	limiter, err := ratelimit.NewFixedWindow(ratelimit.NewMemoryStore(), 20, time.Minute)
//	if err != nil {
//		return err
//	}
//	r.With(ratelimit.Middleware(limiter, ratelimit.ByIP)).Post("/access/exchange", h)
//
// Storage failures fail open: the request is served and the error is logged.
package ratelimit
