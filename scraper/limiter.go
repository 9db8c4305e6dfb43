package scraper

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces consecutive requests by a fixed polite delay.
type RateLimiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewRateLimiter allows one request per interval. A non-positive interval disables waiting.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimiter{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Interval returns the configured delay.
func (l *RateLimiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the next request may be issued. It returns an error wrapping
// ErrCancelled as soon as ctx is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: polite delay: %w", ErrCancelled, err)
	}
	return nil
}
