package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nazmulh/jobdelta/internal/model"
)

// SourceRateLimiter enforces a minimum delay between requests to the same
// upstream source (search API, job board). All fetchers targeting the same
// source share one limiter instance.
type SourceRateLimiter struct {
	mu       sync.Mutex
	lastCall map[string]time.Time // key: source name
	minDelay time.Duration
}

// NewSourceRateLimiter creates a rate limiter that enforces minDelay between
// consecutive requests to the same source.
func NewSourceRateLimiter(minDelay time.Duration) *SourceRateLimiter {
	return &SourceRateLimiter{
		lastCall: make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until enough time has passed since the last request to the
// given source. Returns an error if the context is cancelled while waiting.
func (r *SourceRateLimiter) Wait(ctx context.Context, source string) error {
	r.mu.Lock()
	last, ok := r.lastCall[source]
	now := time.Now()

	if !ok {
		// First request for this source — no wait needed.
		r.lastCall[source] = now
		r.mu.Unlock()
		return nil
	}

	elapsed := now.Sub(last)
	if elapsed >= r.minDelay {
		// Enough time has passed — proceed immediately.
		r.lastCall[source] = now
		r.mu.Unlock()
		return nil
	}

	// Need to wait for the remainder.
	remaining := r.minDelay - elapsed
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", source, ctx.Err())
	case <-time.After(remaining):
	}

	// Record the actual time after waiting.
	r.mu.Lock()
	r.lastCall[source] = time.Now()
	r.mu.Unlock()

	return nil
}

// RateLimitedSource is a decorator that enforces source-level rate limiting
// before delegating to the wrapped DiscoverySource.
type RateLimitedSource struct {
	inner   model.DiscoverySource
	limiter *SourceRateLimiter
	source  string
}

// NewRateLimitedSource wraps a DiscoverySource with source-level rate
// limiting. All wrappers targeting the same source should share the limiter.
func NewRateLimitedSource(inner model.DiscoverySource, limiter *SourceRateLimiter, source string) *RateLimitedSource {
	return &RateLimitedSource{
		inner:   inner,
		limiter: limiter,
		source:  source,
	}
}

// Discover waits for the rate limiter to allow a request, then delegates to
// the wrapped source.
func (s *RateLimitedSource) Discover(ctx context.Context, batch model.Batch) ([]model.Candidate, error) {
	if err := s.limiter.Wait(ctx, s.source); err != nil {
		return nil, err
	}
	return s.inner.Discover(ctx, batch)
}
