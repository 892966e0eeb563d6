package analytics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/greeks"
	"options-analytics/internal/models"
	"options-analytics/internal/performance"
)

var day0 = time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)

func historyOf(symbol string, closes ...float64) models.StockHistory {
	h := make(models.StockHistory, len(closes))
	for i, c := range closes {
		h[i] = models.StockHistoryDatum{Time: day0.AddDate(0, 0, i), Symbol: symbol, Close: c}
	}
	return h
}

func TestPeriodsPerYear(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     float64
	}{
		{0, 252},
		{24 * time.Hour, 252},
		{7 * 24 * time.Hour, 52},
		{time.Hour, 252 * 6.5},
		{30 * time.Minute, 252 * 13},
	}
	for _, tt := range tests {
		if got := PeriodsPerYear(tt.interval); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("PeriodsPerYear(%v) = %v, want %v", tt.interval, got, tt.want)
		}
	}
}

func TestHistoricalVolatility(t *testing.T) {
	h := historyOf("SPY", 100, 110, 99)
	got, err := HistoricalVolatility(h, TradingDaysPerYear)
	if err != nil {
		t.Fatal(err)
	}

	r1, r2 := math.Log(1.1), math.Log(0.9)
	want := math.Abs(r1-r2) / math.Sqrt2 * math.Sqrt(TradingDaysPerYear)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("HistoricalVolatility = %v, want %v", got, want)
	}

	steady := historyOf("SPY", 100, 101, 102.01, 103.0301)
	if v, err := HistoricalVolatility(steady, TradingDaysPerYear); err != nil || v > 1e-9 {
		t.Errorf("Constant growth should have ~zero volatility, got %v, %v", v, err)
	}

	if _, err := HistoricalVolatility(historyOf("SPY", 100, 101), TradingDaysPerYear); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("Expected ErrDataNotFound for two samples, got %v", err)
	}
}

func TestRollingCorrelation(t *testing.T) {
	closes := []float64{100, 102, 101, 105, 103, 108, 107, 111}
	a := historyOf("A", closes...)

	inverse := make([]float64, len(closes))
	for i, c := range closes {
		inverse[i] = 10000 / c
	}
	b := historyOf("B", inverse...)

	series, err := RollingCorrelation(a, a, 3)
	if err != nil {
		t.Fatal(err)
	}
	// 8 closes give 7 returns and 5 windows of 3.
	if len(series) != 5 {
		t.Fatalf("Expected 5 points, got %d", len(series))
	}
	if !series[0].Time.Equal(a[3].Time) || !series[4].Time.Equal(a[7].Time) {
		t.Errorf("Unexpected stamps %v .. %v", series[0].Time, series[4].Time)
	}
	for _, p := range series {
		if math.Abs(p.Value-1) > 1e-9 {
			t.Errorf("Self correlation should be 1, got %v", p.Value)
		}
	}

	series, err = RollingCorrelation(a, b, 4)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range series {
		if math.Abs(p.Value+1) > 1e-9 {
			t.Errorf("Inverse correlation should be -1, got %v", p.Value)
		}
	}

	whole, err := Correlation(a, b)
	if err != nil || math.Abs(whole+1) > 1e-9 {
		t.Errorf("Correlation = %v, %v", whole, err)
	}
}

func TestRollingCorrelationAlignsOnSharedInstants(t *testing.T) {
	a := historyOf("A", 100, 102, 101, 105, 103, 108)
	// Drop two of b's samples; only four instants overlap.
	b := append(models.StockHistory{}, a[0], a[2], a[3], a[5])

	series, err := RollingCorrelation(a, b, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 1 || !series[0].Time.Equal(a[5].Time) {
		t.Errorf("Unexpected series %+v", series)
	}

	if _, err := RollingCorrelation(a, b, 4); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("Expected ErrDataNotFound for an oversized window, got %v", err)
	}
	if _, err := RollingCorrelation(a, b, 1); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for window 1, got %v", err)
	}
}

func chainFixture(t *testing.T) models.OptionChain {
	t.Helper()
	expiry := day0.AddDate(0, 0, 30)
	mk := func(typ models.OptionType, strike float64) models.MarketSnapshot {
		s, err := models.NewMarketSnapshot(models.SnapshotParams{
			OptionType:        typ,
			Strike:            strike,
			CurrentStockPrice: 100,
			ImpliedVolatility: 0.2,
			LastPrice:         2,
			OptionExpiry:      expiry,
		})
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	var calls, puts []models.MarketSnapshot
	for k := 80.0; k <= 120; k += 5 {
		calls = append(calls, mk(models.OptionTypeCall, k))
		puts = append(puts, mk(models.OptionTypePut, k))
	}
	puts = append(puts, mk(models.OptionTypeUndefined, 125))
	return models.NewOptionChain("SPY", expiry, calls, puts)
}

func TestComputeChainGreeksMatchesSequential(t *testing.T) {
	chain := chainFixture(t)
	pool := performance.NewWorkerPool(4)
	pool.Start()
	defer pool.Stop()

	got, err := ComputeChainGreeks(context.Background(), pool, chain, day0, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Calls) != len(chain.Calls) || len(got.Puts) != len(chain.Puts) {
		t.Fatalf("Size mismatch: %d/%d", len(got.Calls), len(got.Puts))
	}

	for i, c := range got.Calls {
		want, err := greeks.Compute(chain.Calls[i], day0, 0.05)
		if err != nil {
			t.Fatal(err)
		}
		if c.Contract.Strike() != chain.Calls[i].Strike() || c.Greeks != want {
			t.Errorf("call %d: got %+v, want %+v", i, c.Greeks, want)
		}
		if c.Err != nil || !(c.Price > 0) {
			t.Errorf("call %d: unexpected price %v or error %v", i, c.Price, c.Err)
		}
	}

	undefined := got.Puts[len(got.Puts)-1]
	if !errors.Is(undefined.Err, apperrors.ErrUndefinedOptionType) {
		t.Errorf("Expected the undefined contract to carry ErrUndefinedOptionType, got %v", undefined.Err)
	}

	sequential, err := ComputeChainGreeks(context.Background(), nil, chain, day0, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	for i := range sequential.Puts {
		if sequential.Puts[i].Greeks != got.Puts[i].Greeks {
			t.Errorf("put %d differs between pooled and sequential evaluation", i)
		}
	}
}

func TestComputeChainGreeksStoppedPool(t *testing.T) {
	pool := performance.NewWorkerPool(2)

	if _, err := ComputeChainGreeks(context.Background(), pool, chainFixture(t), day0, 0); err == nil {
		t.Error("Expected an error from a pool that is not running")
	}
	if _, err := ComputeChainGreeks(context.Background(), nil, chainFixture(t), time.Time{}, 0); !errors.Is(err, apperrors.ErrInvalidSnapshot) {
		t.Errorf("Expected a zero instant to be rejected, got %v", err)
	}
}

func TestEngineUsesClockAndRate(t *testing.T) {
	e := Engine{Greeks: &greeks.Engine{Clock: func() time.Time { return day0 }, Rate: 0.03}}
	got, err := e.ChainGreeks(context.Background(), chainFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Now.Equal(day0) || got.Rate != 0.03 {
		t.Errorf("Expected clock and rate from the engine, got %v and %v", got.Now, got.Rate)
	}
}
