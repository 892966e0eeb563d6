package performance

import (
	"context"
	"errors"
	"testing"
	"time"
)

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time { return c.t }

func BenchmarkRateLimiter(b *testing.B) {
	limiter := NewRateLimiter(10000, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow()
	}
}

func TestRateLimiterBurstAndRefill(t *testing.T) {
	clock := &manualClock{t: time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)}
	limiter := newRateLimiter(4, 2, clock.now)

	if !limiter.Allow() || !limiter.Allow() {
		t.Fatal("Expected the burst of 2 to be allowed")
	}
	if limiter.Allow() {
		t.Fatal("Expected the third call to be limited")
	}

	clock.t = clock.t.Add(250 * time.Millisecond)
	if !limiter.Allow() {
		t.Error("Expected one token after a quarter second at 4/s")
	}
	if limiter.Allow() {
		t.Error("Expected only one token to have refilled")
	}

	clock.t = clock.t.Add(time.Hour)
	allowed := 0
	for limiter.Allow() {
		allowed++
	}
	if allowed != 2 {
		t.Errorf("Expected the bucket to cap at the burst, got %d tokens", allowed)
	}
}

func TestRateLimiterDelay(t *testing.T) {
	clock := &manualClock{t: time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)}
	limiter := newRateLimiter(10, 1, clock.now)

	if d, ok := limiter.delay(); !ok || d != 0 {
		t.Fatalf("first delay = %v, %v; want 0, true", d, ok)
	}
	d, ok := limiter.delay()
	if !ok || d != 100*time.Millisecond {
		t.Errorf("delay on an empty bucket = %v, %v; want 100ms, true", d, ok)
	}

	frozen := newRateLimiter(0, 1, clock.now)
	frozen.Allow()
	if _, ok := frozen.delay(); ok {
		t.Error("Expected a zero-rate bucket never to refill")
	}
}

func TestRateLimiterWait(t *testing.T) {
	limiter := NewRateLimiter(200, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	if !limiter.Allow() {
		t.Fatal("Expected the first token to be available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
