package utils

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket.
type RateLimiter struct {
	rate       float64 // tokens per second
	burst      int
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter that starts full.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
		now:        time.Now,
	}
}

// NewPerMinuteLimiter allows perMinute requests per minute with the whole
// minute available as burst.
func NewPerMinuteLimiter(perMinute int) *RateLimiter {
	return NewRateLimiter(float64(perMinute)/60, perMinute)
}

// Allow takes a token if one is available.
func (r *RateLimiter) Allow() bool {
	_, ok := r.reserve()
	return ok
}

// reserve takes a token, or reports how long until one is available.
func (r *RateLimiter) reserve() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.tokens += now.Sub(r.lastUpdate).Seconds() * r.rate
	r.lastUpdate = now
	if r.tokens > float64(r.burst) {
		r.tokens = float64(r.burst)
	}

	if r.tokens >= 1 {
		r.tokens--
		return 0, true
	}
	if r.rate <= 0 {
		return time.Second, false
	}
	return time.Duration((1 - r.tokens) / r.rate * float64(time.Second)), false
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait, ok := r.reserve()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
