// Package kite provides a data provider backed by Zerodha Kite Connect.
package kite

import (
	"context"
	"sort"
	"strings"
	"sync"
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
const Name = "kite"

// Currency of every price Kite reports.
const Currency = "INR"

// maxQuoteBatch is the most instruments Kite accepts in one quote call.
const maxQuoteBatch = 500

// indexSymbols maps index underlyings to their NSE trading symbols.
var indexSymbols = map[string]string{
	"NIFTY":      "NIFTY 50",
	"BANKNIFTY":  "NIFTY BANK",
	"FINNIFTY":   "NIFTY FIN SERVICE",
	"MIDCPNIFTY": "NIFTY MID SELECT",
}

// Config holds configuration for the Kite provider.
type Config struct {
	APIKey      string
	AccessToken string

	// API replaces the Kite Connect client.
	API API
	// Clock supplies "now". Defaults to time.Now.
	Clock func() time.Time
	// Rate is the risk-free rate used to back out implied volatility,
	// which Kite does not publish.
	Rate float64
	// RateLimit is the sustained request rate per second, 0 for none.
	RateLimit float64
	Burst     int
}

// Provider implements provider.Provider over Kite Connect.
type Provider struct {
	api           API
	authenticated bool
	clock         func() time.Time
	rate          float64
	limiter       *performance.RateLimiter
	market        utils.Market

	instruments map[models.Exchange][]models.Instrument
	loadedOn    string
	mu          sync.Mutex
}

// New creates a Kite provider. Without an access token every call fails
// with ErrNotAuthenticated.
func New(cfg Config) *Provider {
	api := cfg.API
	authenticated := api != nil
	if api == nil {
		api = NewClient(cfg.APIKey, cfg.AccessToken)
		authenticated = cfg.APIKey != "" && cfg.AccessToken != ""
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	p := &Provider{
		api:           api,
		authenticated: authenticated,
		clock:         clock,
		rate:          cfg.Rate,
		market:        utils.NSE,
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

// ready checks the session and waits for the rate limiter.
func (p *Provider) ready(ctx context.Context) error {
	if !p.authenticated {
		return apperrors.ErrNotAuthenticated
	}
	if p.limiter != nil {
		return p.limiter.Wait(ctx)
	}
	return ctx.Err()
}

// splitSymbol splits "EXCHANGE:SYMBOL", defaulting to NSE.
func splitSymbol(symbol string) (models.Exchange, string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexByte(symbol, ':'); i >= 0 {
		return models.Exchange(symbol[:i]), symbol[i+1:]
	}
	return models.NSE, symbol
}

// tradingSymbol returns the exchange and trading symbol for an underlying.
func tradingSymbol(symbol string) (models.Exchange, string) {
	exchange, sym := splitSymbol(symbol)
	if idx, ok := indexSymbols[sym]; ok && exchange == models.NSE {
		return exchange, idx
	}
	return exchange, sym
}

func quoteKey(symbol string) string {
	exchange, sym := tradingSymbol(symbol)
	return string(exchange) + ":" + sym
}

// FetchLastPrice returns the last traded price of symbol.
func (p *Provider) FetchLastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := p.ready(ctx); err != nil {
		return 0, p.fail(provider.OpLastPrice, symbol, err)
	}

	q, err := p.quote(symbol)
	if err != nil {
		return 0, p.fail(provider.OpLastPrice, symbol, err)
	}
	return q.LastPrice, nil
}

func (p *Provider) quote(symbol string) (Quote, error) {
	key := quoteKey(symbol)
	quotes, err := p.api.Quotes(key)
	if err != nil {
		return Quote{}, err
	}
	q, ok := quotes[key]
	if !ok {
		return Quote{}, apperrors.ErrSymbolNotFound
	}
	return q, nil
}

// kiteInterval is a candle interval Kite serves and the longest range one
// historical request may span at that interval.
type kiteInterval struct {
	step    time.Duration
	name    string
	maxSpan time.Duration
}

const day = 24 * time.Hour

var kiteIntervals = []kiteInterval{
	{time.Minute, "minute", 60 * day},
	{3 * time.Minute, "3minute", 100 * day},
	{5 * time.Minute, "5minute", 100 * day},
	{10 * time.Minute, "10minute", 100 * day},
	{15 * time.Minute, "15minute", 200 * day},
	{30 * time.Minute, "30minute", 200 * day},
	{time.Hour, "60minute", 400 * day},
	{day, "day", 2000 * day},
}

// intervalFor picks the coarsest Kite interval that divides interval.
// Intervals of a day or more, and zero, use daily candles.
func intervalFor(interval time.Duration) kiteInterval {
	if interval <= 0 || interval >= day {
		return kiteIntervals[len(kiteIntervals)-1]
	}
	best := kiteIntervals[0]
	for _, k := range kiteIntervals {
		if k.step <= interval && interval%k.step == 0 {
			best = k
		}
	}
	return best
}

// FetchHistory returns candles covering period up to now, resampled to interval.
func (p *Provider) FetchHistory(ctx context.Context, symbol string, interval, period time.Duration) (models.StockHistory, error) {
	if err := p.ready(ctx); err != nil {
		return nil, p.fail(provider.OpHistory, symbol, err)
	}

	exchange, sym := tradingSymbol(symbol)
	token, err := p.instrumentToken(exchange, sym)
	if err != nil {
		return nil, p.fail(provider.OpHistory, symbol, err)
	}

	ki := intervalFor(interval)
	now := p.clock()
	from := now.Add(-period)
	name := strings.ToUpper(strings.TrimSpace(symbol))

	var history models.StockHistory
	for start, chunk := from, 0; start.Before(now); chunk++ {
		end := start.Add(ki.maxSpan)
		if end.After(now) {
			end = now
		}
		if chunk > 0 {
			if err := p.ready(ctx); err != nil {
				return nil, p.fail(provider.OpHistory, symbol, err)
			}
		}

		candles, err := p.api.Historical(token, ki.name, start, end)
		if err != nil {
			return nil, p.fail(provider.OpHistory, symbol, err)
		}
		for _, c := range candles {
			// Range bounds are inclusive, so chunk edges can repeat a candle.
			if n := len(history); n > 0 && !c.Time.After(history[n-1].Time) {
				continue
			}
			history = append(history, models.StockHistoryDatum{
				Time:     c.Time,
				Symbol:   name,
				Currency: Currency,
				Open:     c.Open,
				High:     c.High,
				Low:      c.Low,
				Close:    c.Close,
				Volume:   c.Volume,
			})
		}
		start = end
	}

	logger := logging.FromContext(ctx)
	logger.Debug().
		Str("provider", Name).
		Str("symbol", symbol).
		Str("interval", ki.name).
		Int("candles", len(history)).
		Msg("Fetched historical data")

	if interval > ki.step && interval < day {
		session := time.Duration(p.market.Open) * time.Minute
		history = history.ResampleFrom(interval, p.market.Location, session)
	}
	return history, nil
}

// loadInstruments returns the instrument list of exchange, downloading the
// full list once per market day.
func (p *Provider) loadInstruments(exchange models.Exchange) ([]models.Instrument, error) {
	today := p.clock().In(p.market.Location).Format("2006-01-02")

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.instruments == nil || p.loadedOn != today {
		all, err := p.api.Instruments()
		if err != nil {
			return nil, err
		}
		byExchange := make(map[models.Exchange][]models.Instrument)
		for _, inst := range all {
			byExchange[inst.Exchange] = append(byExchange[inst.Exchange], inst)
		}
		p.instruments = byExchange
		p.loadedOn = today
	}
	return p.instruments[exchange], nil
}

func (p *Provider) instrumentToken(exchange models.Exchange, symbol string) (uint32, error) {
	instruments, err := p.loadInstruments(exchange)
	if err != nil {
		return 0, err
	}
	for _, inst := range instruments {
		if inst.Symbol == symbol {
			return inst.Token, nil
		}
	}
	return 0, apperrors.ErrSymbolNotFound
}

// FetchOptionChain returns the NFO option chain of an underlying for the
// selected expiry. Implied volatility is solved from each contract's last
// price and left at zero when no volatility reproduces it.
func (p *Provider) FetchOptionChain(ctx context.Context, symbol string, expiry provider.ExpirySelector) (models.OptionChain, error) {
	if err := p.ready(ctx); err != nil {
		return models.OptionChain{}, p.fail(provider.OpOptionChain, symbol, err)
	}

	_, underlying := splitSymbol(symbol)
	instruments, err := p.loadInstruments(models.NFO)
	if err != nil {
		return models.OptionChain{}, p.fail(provider.OpOptionChain, symbol, err)
	}

	seen := make(map[int64]bool)
	var listed []time.Time
	var contracts []models.Instrument
	for _, inst := range instruments {
		if inst.Name != underlying || inst.OptionType() == models.OptionTypeUndefined {
			continue
		}
		contracts = append(contracts, inst)
		exp := p.market.SessionClose(inst.Expiry)
		if !seen[exp.Unix()] {
			seen[exp.Unix()] = true
			listed = append(listed, exp)
		}
	}
	if len(contracts) == 0 {
		return models.OptionChain{}, p.fail(provider.OpOptionChain, symbol, apperrors.ErrSymbolNotFound)
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].Before(listed[j]) })

	now := p.clock()
	exp, err := expiry.Resolve(now, listed)
	if err != nil {
		return models.OptionChain{}, p.fail(provider.OpOptionChain, symbol, err)
	}

	spot, err := p.quote(underlying)
	if err != nil {
		return models.OptionChain{}, p.fail(provider.OpOptionChain, symbol, err)
	}

	var selected []models.Instrument
	var keys []string
	for _, inst := range contracts {
		if p.market.SessionClose(inst.Expiry).Equal(exp) {
			selected = append(selected, inst)
			keys = append(keys, string(models.NFO)+":"+inst.Symbol)
		}
	}

	quotes := make(map[string]Quote, len(keys))
	for start := 0; start < len(keys); start += maxQuoteBatch {
		end := start + maxQuoteBatch
		if end > len(keys) {
			end = len(keys)
		}
		if err := p.ready(ctx); err != nil {
			return models.OptionChain{}, p.fail(provider.OpOptionChain, symbol, err)
		}
		batch, err := p.api.Quotes(keys[start:end]...)
		if err != nil {
			return models.OptionChain{}, p.fail(provider.OpOptionChain, symbol, err)
		}
		for k, q := range batch {
			quotes[k] = q
		}
	}

	logger := logging.WithProvider(logging.FromContext(ctx), Name)
	var calls, puts []models.MarketSnapshot
	for i, inst := range selected {
		q, ok := quotes[keys[i]]
		if !ok {
			continue // Skip if quote is missing
		}
		snap, err := models.NewMarketSnapshot(models.SnapshotParams{
			Symbol:            inst.Symbol,
			OptionType:        inst.OptionType(),
			Strike:            inst.Strike,
			CurrentStockPrice: spot.LastPrice,
			LastPrice:         q.LastPrice,
			Bid:               q.Bid,
			OpenInterest:      q.OpenInterest,
			Volume:            q.Volume,
			Currency:          Currency,
			OptionExpiry:      exp,
			LastTrade:         q.LastTrade,
		})
		if err != nil {
			logger.Debug().Err(err).Str("contract", inst.Symbol).Msg("Skipping contract")
			continue
		}
		if q.LastPrice > 0 {
			if iv, err := greeks.ImpliedVolatility(snap, now, p.rate); err == nil {
				if withIV, err := snap.WithImpliedVolatility(iv); err == nil {
					snap = withIV
				}
			}
		}

		if snap.OptionType() == models.OptionTypeCall {
			calls = append(calls, snap)
		} else {
			puts = append(puts, snap)
		}
	}

	return models.NewOptionChain(underlying, exp, calls, puts), nil
}

var _ provider.Provider = (*Provider)(nil)
