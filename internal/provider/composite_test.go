package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

func TestCompositeFallsBackToNextProvider(t *testing.T) {
	a := &stubProvider{name: "a", err: errors.New("a is down")}
	b := &stubProvider{name: "b", price: 150.0}

	got, err := Combine(a, b).FetchLastPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if got != 150.0 {
		t.Errorf("Expected 150.0, got %v", got)
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Errorf("Expected one call each, got a=%d b=%d", a.calls.Load(), b.calls.Load())
	}
}

func TestCompositeStopsAtFirstSuccess(t *testing.T) {
	a := &stubProvider{name: "a", price: 101}
	b := &stubProvider{name: "b", price: 150}

	got, err := Combine(a, b).FetchLastPrice(context.Background(), "AAPL")
	if err != nil || got != 101 {
		t.Fatalf("got %v, %v", got, err)
	}
	if b.calls.Load() != 0 {
		t.Error("Lower priority provider must not be called after a success")
	}
}

func TestCompositeSurfacesLastFailure(t *testing.T) {
	errA := errors.New("a is down")
	errB := errors.New("b is down")
	a := &stubProvider{name: "a", err: errA}
	b := &stubProvider{name: "b", err: errB}

	_, err := Combine(a, b).FetchLastPrice(context.Background(), "AAPL")
	if !errors.Is(err, errB) {
		t.Fatalf("Expected B's error, got %v", err)
	}
	if errors.Is(err, errA) {
		t.Error("A's error must not be surfaced")
	}
	if !errors.Is(err, apperrors.ErrProviderFailure) {
		t.Error("Expected a provider failure")
	}

	var pe *apperrors.ProviderError
	if !errors.As(err, &pe) || pe.Provider != "b" || pe.Operation != OpLastPrice {
		t.Errorf("Unexpected provider error: %+v", pe)
	}
}

func TestCompositeTreatsEmptyResultsAsFailures(t *testing.T) {
	chain := models.NewOptionChain("AAPL", time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC),
		[]models.MarketSnapshot{mustSnapshot(t, models.OptionTypeCall, 100)}, nil)
	history := models.StockHistory{{Time: time.Now(), Symbol: "AAPL", Close: 100}}

	empty := &stubProvider{name: "empty"}
	full := &stubProvider{name: "full", price: 99, history: history, chain: chain}
	c := Combine(empty, full)
	ctx := context.Background()

	if p, err := c.FetchLastPrice(ctx, "AAPL"); err != nil || p != 99 {
		t.Errorf("price: got %v, %v", p, err)
	}
	if h, err := c.FetchHistory(ctx, "AAPL", 24*time.Hour, 5*24*time.Hour); err != nil || len(h) != 1 {
		t.Errorf("history: got %v, %v", h, err)
	}
	if ch, err := c.FetchOptionChain(ctx, "AAPL", NextExpiry()); err != nil || len(ch.Calls) != 1 {
		t.Errorf("chain: got %v, %v", ch, err)
	}

	_, err := Combine(empty).FetchHistory(ctx, "AAPL", time.Hour, time.Hour)
	if !errors.Is(err, apperrors.ErrEmptyResult) {
		t.Errorf("Expected ErrEmptyResult, got %v", err)
	}
}

func TestCompositeWithoutProviders(t *testing.T) {
	_, err := Combine().FetchLastPrice(context.Background(), "AAPL")
	if !errors.Is(err, apperrors.ErrNoProviders) || !errors.Is(err, apperrors.ErrProviderFailure) {
		t.Errorf("Expected ErrNoProviders as a provider failure, got %v", err)
	}
}

func TestCompositeHonoursCancelledContext(t *testing.T) {
	a := &stubProvider{name: "a", price: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Combine(a).FetchLastPrice(ctx, "AAPL")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if a.calls.Load() != 0 {
		t.Error("No provider may be called once the context is done")
	}
}

func TestCombineFlattens(t *testing.T) {
	a := &stubProvider{name: "a"}
	b := &stubProvider{name: "b"}
	c := &stubProvider{name: "c"}

	left := Combine(Combine(a, b), c)
	right := Combine(a, Combine(b, c))

	if left.Name() != "composite(a,b,c)" || right.Name() != left.Name() {
		t.Errorf("Expected equal flattened composites, got %s and %s", left.Name(), right.Name())
	}
	if len(Combine(nil, a).Providers()) != 1 {
		t.Error("nil providers must be skipped")
	}
}

// Property: combining [A,B] then C behaves exactly like A then [B,C].
func TestCompositeAssociativityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	outcome := func(fails bool, price float64) *stubProvider {
		if fails {
			return &stubProvider{name: "x", err: errors.New("down")}
		}
		return &stubProvider{name: "x", price: price}
	}

	properties.Property("grouping does not change the result", prop.ForAll(
		func(fa, fb, fc bool, pa, pb, pc float64) bool {
			a, b, c := outcome(fa, pa), outcome(fb, pb), outcome(fc, pc)
			ctx := context.Background()

			l, lerr := Combine(Combine(a, b), c).FetchLastPrice(ctx, "SPY")
			r, rerr := Combine(a, Combine(b, c)).FetchLastPrice(ctx, "SPY")

			if (lerr == nil) != (rerr == nil) {
				return false
			}
			if lerr != nil {
				return lerr.Error() == rerr.Error()
			}
			return l == r
		},
		gen.Bool(), gen.Bool(), gen.Bool(),
		gen.Float64Range(1, 1000), gen.Float64Range(1, 1000), gen.Float64Range(1, 1000),
	))

	properties.TestingRun(t)
}
