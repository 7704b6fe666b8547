// Package ratelimit caps the rate of outbound requests the gateway issues
// against a single tenant cluster. Retry and circuit-breaking are separate
// concerns layered elsewhere; this package only paces.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Config sets the sustained request rate and burst allowance toward one
// cluster.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig paces a tenant cluster generously: lifecycle cycles are
// bursty (list, then a fan of per-index calls) but never latency-critical.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 50,
		Burst:             100,
	}
}

// RateLimiter wraps a token bucket for one cluster.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New builds a RateLimiter from cfg, applying defaults for zero values.
func New(cfg Config) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// Wait blocks until a request slot is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed right now without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// AllowN reports whether n requests may proceed at now without waiting.
func (r *RateLimiter) AllowN(now time.Time, n int) bool {
	return r.limiter.AllowN(now, n)
}
