package performance

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter is a token bucket: burst tokens, refilled at rate per second.
type RateLimiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a full bucket. A rate of zero or less never
// refills.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return newRateLimiter(rate, burst, time.Now)
}

func newRateLimiter(rate float64, burst int, now func() time.Time) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if rate < 0 {
		rate = 0
	}
	return &RateLimiter{
		rate:   rate,
		burst:  float64(burst),
		now:    now,
		tokens: float64(burst),
		last:   now(),
	}
}

// refill must be called with mu held.
func (r *RateLimiter) refill() {
	now := r.now()
	if elapsed := now.Sub(r.last).Seconds(); elapsed > 0 {
		r.tokens = math.Min(r.burst, r.tokens+elapsed*r.rate)
	}
	r.last = now
}

// Allow takes a token if one is available.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// delay returns how long until a token is available, taking it if one is
// available now. The second result is false when the bucket never refills.
func (r *RateLimiter) delay() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return 0, true
	}
	if r.rate == 0 {
		return 0, false
	}
	return time.Duration((1 - r.tokens) / r.rate * float64(time.Second)), true
}

// Wait blocks until a token is taken or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		d, ok := r.delay()
		if ok && d == 0 {
			return nil
		}
		if !ok {
			<-ctx.Done()
			return ctx.Err()
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
