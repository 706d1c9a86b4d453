// Package ratelimit bounds the request rate of the HTTP surface with a
// token bucket shared across all callers.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps a token bucket. Tokens refill at the sustained rate and
// burst is the bucket capacity. All methods are safe for concurrent use.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a Limiter allowing requestsPerSecond sustained requests with
// the given burst capacity. A burst below the sustained rate would starve
// the bucket, so it is raised to the rate. requestsPerSecond must be
// positive; callers disable limiting by not constructing a Limiter.
func New(requestsPerSecond, burst uint) *Limiter {
	if burst < requestsPerSecond {
		burst = requestsPerSecond
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst))}
}

// Allow reports whether one more request fits the budget, consuming a
// token when it does.
func (l *Limiter) Allow() bool {
	return l.bucket.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Tokens returns the tokens currently available. Diagnostic only; the
// value may be stale by the time it is read.
func (l *Limiter) Tokens() float64 {
	return l.bucket.Tokens()
}
