// Package papersources provides the rate-limited HTTP plumbing and the paper
// source abstraction used by the discovery stage.
package papersources

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket limiter enforcing a minimum interval
// between requests to an external API. It is safe for concurrent use because
// the underlying rate.Limiter is goroutine-safe.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter that spaces successive requests at least
// minInterval apart. Burst is 1: the floor holds even for back-to-back calls.
//
// Example configurations:
//   - PubMed without API key: NewRateLimiter(334 * time.Millisecond)
//   - OpenCitations: NewRateLimiter(time.Second)
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	if minInterval <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Wait blocks until a request is allowed or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow returns true if a request is allowed without waiting, consuming one
// token when it is.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetInterval updates the minimum interval between requests. Useful when an
// API key raises the permitted rate.
func (r *RateLimiter) SetInterval(minInterval time.Duration) {
	if minInterval <= 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	r.limiter.SetLimit(rate.Every(minInterval))
}

// Tokens returns the current number of available tokens, for diagnostics.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
