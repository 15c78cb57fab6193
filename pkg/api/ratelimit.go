package api

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter defines the interface for rate limiting implementations
type RateLimiter interface {
	// Wait blocks until it's safe to make another API call or ctx is done
	Wait(ctx context.Context) error
	// CanProceed returns true if a request can be made without waiting
	CanProceed() bool
}

// TokenBucketRateLimiter is a token bucket shared by every request of a client
type TokenBucketRateLimiter struct {
	limiter *rate.Limiter
}

// NewTokenBucketRateLimiter allows perSecond requests per second on average
// with bursts of up to burst requests.
func NewTokenBucketRateLimiter(perSecond float64, burst int) *TokenBucketRateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &TokenBucketRateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// NewSimpleRateLimiter enforces a minimum delay between calls
func NewSimpleRateLimiter(minDelay time.Duration) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{limiter: rate.NewLimiter(rate.Every(minDelay), 1)}
}

// Wait blocks until a token is available
func (rl *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// CanProceed returns true if a token is available
func (rl *TokenBucketRateLimiter) CanProceed() bool {
	if rl.limiter.Limit() == rate.Inf {
		return true
	}
	return rl.limiter.Tokens() >= 1
}

// NoOpRateLimiter implements the RateLimiter interface but performs no rate limiting
type NoOpRateLimiter struct{}

// NewNoOpRateLimiter creates a rate limiter that performs no limiting
func NewNoOpRateLimiter() *NoOpRateLimiter {
	return &NoOpRateLimiter{}
}

// Wait only reports a cancelled context
func (rl *NoOpRateLimiter) Wait(ctx context.Context) error {
	return ctx.Err()
}

// CanProceed always returns true (no rate limiting)
func (rl *NoOpRateLimiter) CanProceed() bool {
	return true
}
