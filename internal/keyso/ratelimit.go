// Package keyso provides a resilient client for the Keys.so phrase-analytics API.
package keyso

import (
	"context"
	"sync"
	"time"

	"github.com/helixir/keyword-hunter/internal/clock"
)

// RateLimiter enforces a sliding-window quota of at most max requests in any
// trailing window. It keeps the timestamp of every admitted request that is
// still inside the window. It is safe for concurrent use.
type RateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	clock  clock.Clock
	stamps []time.Time
}

// NewRateLimiter creates a sliding-window limiter admitting maxRequests per window.
// A nil clock uses the wall clock.
//
// The Keys.so API allows 10 requests per 10 seconds:
//
//	NewRateLimiter(10, 10*time.Second, nil)
func NewRateLimiter(maxRequests int, window time.Duration, clk clock.Clock) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &RateLimiter{
		max:    maxRequests,
		window: window,
		clock:  clk,
		stamps: make([]time.Time, 0, maxRequests),
	}
}

// Acquire blocks until one more request fits in the trailing window, then
// records it. It returns the total time spent waiting, or ctx.Err() if the
// context ends first.
func (r *RateLimiter) Acquire(ctx context.Context) (time.Duration, error) {
	var waited time.Duration
	for {
		r.mu.Lock()
		now := r.clock.Now()
		r.evict(now)

		if len(r.stamps) < r.max {
			r.stamps = append(r.stamps, now)
			r.mu.Unlock()
			return waited, nil
		}

		wait := r.stamps[0].Add(r.window).Sub(now)
		r.mu.Unlock()

		if err := r.clock.Sleep(ctx, wait); err != nil {
			return waited, err
		}
		waited += wait
	}
}

// evict drops timestamps that are no longer inside the window ending at now.
// Callers must hold r.mu.
func (r *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.stamps) && !r.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.stamps = append(r.stamps[:0], r.stamps[i:]...)
	}
}

// Reset forgets every recorded request.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stamps = r.stamps[:0]
}

// Len returns the number of requests currently counted against the window.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evict(r.clock.Now())
	return len(r.stamps)
}
