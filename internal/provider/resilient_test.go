package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/resilience"
	"options-analytics/pkg/utils"
)

// flakyProvider fails a fixed number of times before succeeding.
type flakyProvider struct {
	stubProvider
	failures int32
}

func (f *flakyProvider) FetchLastPrice(ctx context.Context, symbol string) (float64, error) {
	if f.calls.Add(1) <= f.failures {
		return 0, errors.New("transient")
	}
	return f.price, nil
}

func testResilientConfig() ResilientConfig {
	return ResilientConfig{
		Retry: utils.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Millisecond,
			MaxDelay:      2 * time.Millisecond,
			BackoffFactor: 2,
		},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 1,
			Timeout:          time.Hour,
		},
		Timeout: time.Second,
	}
}

func TestResilientRetriesTransientFailures(t *testing.T) {
	inner := &flakyProvider{stubProvider: stubProvider{name: "kite", price: 150}, failures: 2}
	r := NewResilient(inner, testResilientConfig(), nil)

	got, err := r.FetchLastPrice(context.Background(), "INFY")
	if err != nil {
		t.Fatal(err)
	}
	if got != 150 || inner.calls.Load() != 3 {
		t.Errorf("got %v after %d calls", got, inner.calls.Load())
	}
	if r.Name() != "kite" {
		t.Errorf("Name() = %q", r.Name())
	}
}

func TestResilientDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &stubProvider{name: "polygon", err: apperrors.ErrUnsupported}
	r := NewResilient(inner, testResilientConfig(), nil)

	_, err := r.FetchOptionChain(context.Background(), "SPY", NextExpiry())
	if !errors.Is(err, apperrors.ErrUnsupported) || !errors.Is(err, apperrors.ErrProviderFailure) {
		t.Errorf("Expected unsupported provider failure, got %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("Expected a single attempt, got %d", inner.calls.Load())
	}
}

func TestResilientOpensCircuit(t *testing.T) {
	cfg := testResilientConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker.FailureThreshold = 2

	registry := resilience.NewRegistry(cfg.Breaker)
	inner := &stubProvider{name: "kite", err: errors.New("down")}
	r := NewResilient(inner, cfg, registry)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := r.FetchHistory(ctx, "INFY", time.Hour, 24*time.Hour); err == nil {
			t.Fatal("Expected failure")
		}
	}

	_, err := r.FetchHistory(ctx, "INFY", time.Hour, 24*time.Hour)
	if !errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Errorf("Expected open circuit, got %v", err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("Expected the open circuit to block the third call, got %d calls", inner.calls.Load())
	}
	if registry.For("kite").State() != resilience.CircuitOpen {
		t.Error("Expected the shared registry breaker to be open")
	}
}

// listingProvider knows the price of a single symbol.
type listingProvider struct {
	stubProvider
	symbol string
}

func (l *listingProvider) FetchLastPrice(ctx context.Context, symbol string) (float64, error) {
	l.calls.Add(1)
	if symbol != l.symbol {
		return 0, apperrors.ErrSymbolNotFound
	}
	return l.price, nil
}

func TestResilientUnknownSymbolsLeaveCircuitClosed(t *testing.T) {
	cfg := testResilientConfig()
	cfg.Breaker.FailureThreshold = 2
	inner := &listingProvider{stubProvider: stubProvider{name: "mem", price: 150}, symbol: "AAPL"}
	r := NewResilient(inner, cfg, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := r.FetchLastPrice(ctx, "NOPE"); !errors.Is(err, apperrors.ErrSymbolNotFound) {
			t.Fatalf("lookup %d: expected ErrSymbolNotFound, got %v", i, err)
		}
	}

	got, err := r.FetchLastPrice(ctx, "AAPL")
	if err != nil || got != 150 {
		t.Fatalf("got %v, %v after unknown symbols", got, err)
	}
	stats := r.Breaker().Stats()
	if stats.State != resilience.CircuitClosed || stats.TotalFailures != 0 || stats.TotalIgnored != 5 {
		t.Errorf("Unexpected breaker stats: %+v", stats)
	}
}

func TestResilientCountsRetriedCallOnce(t *testing.T) {
	cfg := testResilientConfig()
	cfg.Breaker.FailureThreshold = 2
	inner := &stubProvider{name: "kite", err: errors.New("down")}
	r := NewResilient(inner, cfg, nil)
	ctx := context.Background()

	if _, err := r.FetchLastPrice(ctx, "INFY"); err == nil {
		t.Fatal("Expected failure")
	}
	if inner.calls.Load() != 3 {
		t.Fatalf("Expected 3 attempts, got %d", inner.calls.Load())
	}
	stats := r.Breaker().Stats()
	if stats.State != resilience.CircuitClosed || stats.CurrentFailures != 1 {
		t.Errorf("Expected one recorded failure on a closed circuit, got %+v", stats)
	}

	if _, err := r.FetchLastPrice(ctx, "INFY"); err == nil {
		t.Fatal("Expected failure")
	}
	if r.Breaker().State() != resilience.CircuitOpen {
		t.Errorf("Expected OPEN after two failed calls, got %s", r.Breaker().State())
	}
}

func TestResilientCancelledCallsLeaveCircuitClosed(t *testing.T) {
	cfg := testResilientConfig()
	cfg.Breaker.FailureThreshold = 1
	r := NewResilient(&slowProvider{stubProvider: stubProvider{name: "slow"}}, cfg, nil)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := r.FetchLastPrice(ctx, "SPY"); !errors.Is(err, context.Canceled) {
			t.Fatalf("call %d: expected context.Canceled, got %v", i, err)
		}
	}
	if r.Breaker().State() != resilience.CircuitClosed {
		t.Errorf("Expected caller cancellation to leave the circuit CLOSED, got %s", r.Breaker().State())
	}
}

// slowProvider blocks until its context ends.
type slowProvider struct {
	stubProvider
	started atomic.Int32
}

func (s *slowProvider) FetchLastPrice(ctx context.Context, symbol string) (float64, error) {
	s.started.Add(1)
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestResilientTimeoutFallsThroughComposite(t *testing.T) {
	cfg := testResilientConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Timeout = 10 * time.Millisecond

	slow := NewResilient(&slowProvider{stubProvider: stubProvider{name: "slow"}}, cfg, nil)
	fast := &stubProvider{name: "fast", price: 42}

	got, err := Combine(slow, fast).FetchLastPrice(context.Background(), "SPY")
	if err != nil || got != 42 {
		t.Errorf("got %v, %v", got, err)
	}
}

var _ Provider = (*Resilient)(nil)
var _ Provider = (*Composite)(nil)
