// Package polygon provides a data provider backed by the Polygon.io REST API.
package polygon

import (
	"context"
	"sort"
	"strings"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/greeks"
	"options-analytics/internal/logging"
	"options-analytics/internal/models"
	"options-analytics/internal/performance"
	"options-analytics/internal/provider"
	"options-analytics/pkg/utils"
)

// Name is the provider name used in errors and logs.
const Name = "polygon"

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Config holds configuration for the Polygon provider.
type Config struct {
	APIKey string

	// API replaces the Polygon REST client.
	API API
	// Clock supplies "now". Defaults to time.Now.
	Clock func() time.Time
	// Currency reported on histories and contracts. Defaults to USD.
	Currency string
	// Rate is the risk-free rate used to solve implied volatility for
	// contracts that arrive without one.
	Rate float64
	// RateLimit is the sustained request rate per second, 0 for none.
	RateLimit float64
	Burst     int
}

// Provider implements provider.Provider over Polygon.io.
type Provider struct {
	api           API
	authenticated bool
	clock         func() time.Time
	currency      string
	rate          float64
	limiter       *performance.RateLimiter
	market        utils.Market
}

// New creates a Polygon provider. Without an API key every call fails
// with ErrNotAuthenticated.
func New(cfg Config) *Provider {
	api := cfg.API
	authenticated := api != nil
	if api == nil {
		api = NewClient(cfg.APIKey)
		authenticated = cfg.APIKey != ""
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "USD"
	}

	p := &Provider{
		api:           api,
		authenticated: authenticated,
		clock:         clock,
		currency:      currency,
		rate:          cfg.Rate,
		market:        utils.US,
	}
	if cfg.RateLimit > 0 {
		p.limiter = performance.NewRateLimiter(cfg.RateLimit, cfg.Burst)
	}
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string { return Name }

func (p *Provider) fail(op, symbol string, err error) error {
	return apperrors.NewProviderError(Name, op, symbol, err)
}

func (p *Provider) ready(ctx context.Context) error {
	if !p.authenticated {
		return apperrors.ErrNotAuthenticated
	}
	if p.limiter != nil {
		return p.limiter.Wait(ctx)
	}
	return ctx.Err()
}

func ticker(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// FetchLastPrice returns the price of the last trade of symbol.
func (p *Provider) FetchLastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := p.ready(ctx); err != nil {
		return 0, p.fail(provider.OpLastPrice, symbol, err)
	}
	price, err := p.api.LastTrade(ctx, ticker(symbol))
	if err != nil {
		return 0, p.fail(provider.OpLastPrice, symbol, err)
	}
	return price, nil
}

// timespanFor expresses interval as a Polygon multiplier and timespan,
// using the largest unit that divides it.
func timespanFor(interval time.Duration) (int, string) {
	switch {
	case interval <= 0:
		return 1, "day"
	case interval%week == 0:
		return int(interval / week), "week"
	case interval%day == 0:
		return int(interval / day), "day"
	case interval%time.Hour == 0:
		return int(interval / time.Hour), "hour"
	case interval%time.Minute == 0:
		return int(interval / time.Minute), "minute"
	case interval < time.Second:
		return 1, "second"
	default:
		return int(interval / time.Second), "second"
	}
}

// FetchHistory returns split-adjusted aggregates covering period up to now.
func (p *Provider) FetchHistory(ctx context.Context, symbol string, interval, period time.Duration) (models.StockHistory, error) {
	if err := p.ready(ctx); err != nil {
		return nil, p.fail(provider.OpHistory, symbol, err)
	}

	mult, span := timespanFor(interval)
	now := p.clock()
	bars, err := p.api.Aggregates(ctx, ticker(symbol), mult, span, now.Add(-period), now)
	if err != nil {
		return nil, p.fail(provider.OpHistory, symbol, err)
	}

	history := make([]models.StockHistoryDatum, len(bars))
	for i, b := range bars {
		history[i] = models.StockHistoryDatum{
			Time:     b.Time,
			Symbol:   ticker(symbol),
			Currency: p.currency,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			Volume:   b.Volume,
		}
	}

	logger := logging.FromContext(ctx)
	logger.Debug().
		Str("provider", Name).
		Str("symbol", symbol).
		Int("multiplier", mult).
		Str("timespan", span).
		Int("bars", len(history)).
		Msg("Fetched aggregates")

	return models.SortHistory(history), nil
}

func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FetchOptionChain returns the chain snapshot of an underlying for the
// selected expiry.
func (p *Provider) FetchOptionChain(ctx context.Context, symbol string, expiry provider.ExpirySelector) (models.OptionChain, error) {
	if err := p.ready(ctx); err != nil {
		return models.OptionChain{}, p.fail(provider.OpOptionChain, symbol, err)
	}

	now := p.clock()
	underlying := ticker(symbol)

	date, exact := expiry.Target(now)
	if !exact {
		date = now.In(p.market.Location)
	}
	contracts, err := p.api.OptionContracts(ctx, underlying, calendarDate(date), !exact)
	if err != nil {
		return models.OptionChain{}, p.fail(provider.OpOptionChain, symbol, err)
	}
	if len(contracts) == 0 {
		return models.OptionChain{}, p.fail(provider.OpOptionChain, symbol, apperrors.ErrDataNotFound)
	}

	seen := make(map[int64]bool)
	var listed []time.Time
	for _, c := range contracts {
		exp := p.market.SessionClose(c.Expiration)
		if !seen[exp.Unix()] {
			seen[exp.Unix()] = true
			listed = append(listed, exp)
		}
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].Before(listed[j]) })

	exp, err := expiry.Resolve(now, listed)
	if err != nil {
		return models.OptionChain{}, p.fail(provider.OpOptionChain, symbol, err)
	}

	spot := 0.0
	for _, c := range contracts {
		if c.UnderlyingPrice > 0 {
			spot = c.UnderlyingPrice
			break
		}
	}
	if spot == 0 {
		// Underlying prices are missing from some plans.
		if spot, err = p.FetchLastPrice(ctx, underlying); err != nil {
			return models.OptionChain{}, err
		}
	}

	logger := logging.WithProvider(logging.FromContext(ctx), Name)
	var calls, puts []models.MarketSnapshot
	for _, c := range contracts {
		if !p.market.SessionClose(c.Expiration).Equal(exp) {
			continue
		}
		typ, err := models.ParseOptionType(c.Type)
		if err != nil || typ == models.OptionTypeUndefined {
			logger.Debug().Str("contract", c.Ticker).Str("type", c.Type).Msg("Skipping contract of unknown type")
			continue
		}

		snap, err := models.NewMarketSnapshot(models.SnapshotParams{
			Symbol:            c.Ticker,
			OptionType:        typ,
			Strike:            c.Strike,
			CurrentStockPrice: spot,
			ImpliedVolatility: c.ImpliedVolatility,
			LastPrice:         c.LastPrice,
			Bid:               c.Bid,
			OpenInterest:      c.OpenInterest,
			Volume:            c.Volume,
			Currency:          p.currency,
			OptionExpiry:      exp,
			LastTrade:         c.LastTrade,
		})
		if err != nil {
			logger.Debug().Err(err).Str("contract", c.Ticker).Msg("Skipping contract")
			continue
		}
		if c.ImpliedVolatility == 0 && c.LastPrice > 0 {
			if iv, err := greeks.ImpliedVolatility(snap, now, p.rate); err == nil {
				if withIV, err := snap.WithImpliedVolatility(iv); err == nil {
					snap = withIV
				}
			}
		}

		if typ == models.OptionTypeCall {
			calls = append(calls, snap)
		} else {
			puts = append(puts, snap)
		}
	}

	return models.NewOptionChain(underlying, exp, calls, puts), nil
}

var _ provider.Provider = (*Provider)(nil)
