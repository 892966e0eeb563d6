package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
	"options-analytics/internal/provider"
)

var now = time.Date(2024, 6, 19, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func snapshot(t *testing.T, typ models.OptionType, strike float64, expiry time.Time) models.MarketSnapshot {
	t.Helper()
	s, err := models.NewMarketSnapshot(models.SnapshotParams{
		Symbol:            "SPY",
		OptionType:        typ,
		Strike:            strike,
		CurrentStockPrice: 540,
		ImpliedVolatility: 0.15,
		LastPrice:         3,
		OptionExpiry:      expiry,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMemoryLastPrice(t *testing.T) {
	p := New(Config{Clock: fixedClock})
	p.SetLastPrice("spy", 541.25)

	got, err := p.FetchLastPrice(context.Background(), "SPY")
	if err != nil || got != 541.25 {
		t.Fatalf("got %v, %v", got, err)
	}

	_, err = p.FetchLastPrice(context.Background(), "QQQ")
	if !errors.Is(err, apperrors.ErrSymbolNotFound) || !errors.Is(err, apperrors.ErrProviderFailure) {
		t.Errorf("Expected symbol-not-found provider failure, got %v", err)
	}
}

func TestMemoryHistoryWindow(t *testing.T) {
	p := New(Config{Clock: fixedClock})

	var data []models.StockHistoryDatum
	for i := 9; i >= 0; i-- {
		data = append(data, models.StockHistoryDatum{
			Time:   now.AddDate(0, 0, -i),
			Symbol: "SPY",
			Close:  float64(500 + i),
		})
	}
	p.SetHistory("SPY", data)

	h, err := p.FetchHistory(context.Background(), "SPY", 24*time.Hour, 5*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 5 {
		t.Fatalf("Expected 5 daily samples, got %d", len(h))
	}
	for i := 1; i < len(h); i++ {
		if !h[i-1].Time.Before(h[i].Time) {
			t.Fatal("History must be ordered by time ascending")
		}
	}

	// Last close becomes the last price.
	if price, _ := p.FetchLastPrice(context.Background(), "SPY"); price != 500 {
		t.Errorf("Expected last close 500 as last price, got %v", price)
	}
}

func TestMemoryOptionChainSelection(t *testing.T) {
	p := New(Config{Name: "fixture", Clock: fixedClock})

	friday := time.Date(2024, 6, 21, 20, 0, 0, 0, time.UTC)
	monthly := time.Date(2024, 7, 19, 20, 0, 0, 0, time.UTC)
	for _, exp := range []time.Time{monthly, friday} {
		p.AddOptionChain(models.NewOptionChain("SPY", exp,
			[]models.MarketSnapshot{snapshot(t, models.OptionTypeCall, 545, exp), snapshot(t, models.OptionTypeCall, 535, exp)},
			[]models.MarketSnapshot{snapshot(t, models.OptionTypePut, 535, exp)},
		))
	}

	ctx := context.Background()
	chain, err := p.FetchOptionChain(ctx, "SPY", provider.NextFriday())
	if err != nil {
		t.Fatal(err)
	}
	if !chain.Expiry.Equal(friday) || chain.Calls[0].Strike() != 535 {
		t.Errorf("Unexpected chain %v with first call strike %v", chain.Expiry, chain.Calls[0].Strike())
	}

	chain, err = p.FetchOptionChain(ctx, "SPY", provider.OnDate(monthly))
	if err != nil || !chain.Expiry.Equal(monthly) {
		t.Errorf("on date: got %v, %v", chain.Expiry, err)
	}

	_, err = p.FetchOptionChain(ctx, "SPY", provider.OnDate(now))
	if !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("Expected ErrDataNotFound for an unlisted date, got %v", err)
	}

	var pe *apperrors.ProviderError
	if !errors.As(err, &pe) || pe.Provider != "fixture" {
		t.Errorf("Expected the configured name in the error, got %+v", pe)
	}
}

func TestMemoryInsideComposite(t *testing.T) {
	empty := New(Config{Name: "primary", Clock: fixedClock})
	backup := New(Config{Name: "backup", Clock: fixedClock})
	backup.SetLastPrice("AAPL", 150.0)

	got, err := provider.Combine(empty, backup).FetchLastPrice(context.Background(), "AAPL")
	if err != nil || got != 150.0 {
		t.Errorf("got %v, %v", got, err)
	}

	backup.Reset()
	_, err = provider.Combine(empty, backup).FetchLastPrice(context.Background(), "AAPL")
	var pe *apperrors.ProviderError
	if !errors.As(err, &pe) || pe.Provider != "backup" {
		t.Errorf("Expected the backup's failure, got %v", err)
	}
}
