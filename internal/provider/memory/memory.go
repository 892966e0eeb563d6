// Package memory provides an in-memory data provider for offline analysis
// and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
	"options-analytics/internal/provider"
)

// Name is the provider name used in errors and logs.
const Name = "memory"

// Provider serves prices, histories and option chains loaded into memory.
type Provider struct {
	name      string
	clock     func() time.Time
	prices    map[string]float64
	histories map[string]models.StockHistory
	chains    map[string]map[int64]models.OptionChain

	mu sync.RWMutex
}

// Config holds configuration for the memory provider.
type Config struct {
	// Name overrides the provider name, which lets several in-memory
	// sources be told apart inside a composite.
	Name string
	// Clock supplies "now" for history windows and expiry selection.
	Clock func() time.Time
}

// New creates an empty in-memory provider.
func New(cfg Config) *Provider {
	name := cfg.Name
	if name == "" {
		name = Name
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Provider{
		name:      name,
		clock:     clock,
		prices:    make(map[string]float64),
		histories: make(map[string]models.StockHistory),
		chains:    make(map[string]map[int64]models.OptionChain),
	}
}

func key(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// SetLastPrice records the last traded price of symbol.
func (p *Provider) SetLastPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[key(symbol)] = price
}

// SetHistory replaces the price history of symbol. The last close also
// becomes the last price unless one was set explicitly.
func (p *Provider) SetHistory(symbol string, history []models.StockHistoryDatum) {
	sorted := models.SortHistory(history)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.histories[key(symbol)] = sorted
	if _, ok := p.prices[key(symbol)]; !ok {
		if last, ok := sorted.Last(); ok {
			p.prices[key(symbol)] = last.Close
		}
	}
}

// AddOptionChain stores a chain under its symbol and expiry, replacing any
// chain already stored for the same expiry.
func (p *Provider) AddOptionChain(chain models.OptionChain) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := key(chain.Symbol)
	if p.chains[k] == nil {
		p.chains[k] = make(map[int64]models.OptionChain)
	}
	p.chains[k][chain.Expiry.Unix()] = chain
}

// Reset removes all stored data.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices = make(map[string]float64)
	p.histories = make(map[string]models.StockHistory)
	p.chains = make(map[string]map[int64]models.OptionChain)
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// FetchLastPrice returns the stored last price.
func (p *Provider) FetchLastPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	price, ok := p.prices[key(symbol)]
	if !ok {
		return 0, apperrors.NewProviderError(p.name, provider.OpLastPrice, symbol, apperrors.ErrSymbolNotFound)
	}
	return price, nil
}

// FetchHistory returns the stored samples within period of now, resampled to interval.
func (p *Provider) FetchHistory(ctx context.Context, symbol string, interval, period time.Duration) (models.StockHistory, error) {
	p.mu.RLock()
	history, ok := p.histories[key(symbol)]
	p.mu.RUnlock()

	if !ok {
		return nil, apperrors.NewProviderError(p.name, provider.OpHistory, symbol, apperrors.ErrSymbolNotFound)
	}

	now := p.clock()
	return history.Window(now.Add(-period), now).Resample(interval), nil
}

// FetchOptionChain returns the stored chain for the selected expiry.
func (p *Provider) FetchOptionChain(ctx context.Context, symbol string, expiry provider.ExpirySelector) (models.OptionChain, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	byExpiry, ok := p.chains[key(symbol)]
	if !ok {
		return models.OptionChain{}, apperrors.NewProviderError(p.name, provider.OpOptionChain, symbol, apperrors.ErrSymbolNotFound)
	}

	listed := make([]time.Time, 0, len(byExpiry))
	for _, c := range byExpiry {
		listed = append(listed, c.Expiry)
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].Before(listed[j]) })

	exp, err := expiry.Resolve(p.clock(), listed)
	if err != nil {
		return models.OptionChain{}, apperrors.NewProviderError(p.name, provider.OpOptionChain, symbol, err)
	}
	return byExpiry[exp.Unix()], nil
}
