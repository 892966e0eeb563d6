package store

import (
	"context"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/logging"
	"options-analytics/internal/models"
	"options-analytics/internal/provider"
)

// ProviderName is the name the store uses when serving as a provider.
const ProviderName = "sqlite"

// Name returns the provider name of the store.
func (s *SQLiteStore) Name() string { return ProviderName }

func (s *SQLiteStore) fail(op, symbol string, err error) error {
	return apperrors.NewProviderError(ProviderName, op, symbol, err)
}

// checkAge rejects data older than the configured MaxAge.
func (s *SQLiteStore) checkAge(updated time.Time) error {
	if s.opts.MaxAge <= 0 || updated.IsZero() {
		return nil
	}
	if age := s.opts.Clock().Sub(updated); age > s.opts.MaxAge {
		return apperrors.Wrapf(apperrors.ErrDataNotFound, "stored data is %s old", age.Round(time.Second))
	}
	return nil
}

// FetchLastPrice serves the stored last price.
func (s *SQLiteStore) FetchLastPrice(ctx context.Context, symbol string) (float64, error) {
	price, updated, err := s.GetLastPrice(ctx, symbol)
	if err != nil {
		return 0, s.fail(provider.OpLastPrice, symbol, err)
	}
	if err := s.checkAge(updated); err != nil {
		return 0, s.fail(provider.OpLastPrice, symbol, err)
	}
	return price, nil
}

// FetchHistory serves stored samples of the given interval within period of now.
func (s *SQLiteStore) FetchHistory(ctx context.Context, symbol string, interval, period time.Duration) (models.StockHistory, error) {
	fresh, err := s.Freshness(ctx, DataTypeHistory, symbol)
	if err != nil {
		return nil, s.fail(provider.OpHistory, symbol, err)
	}
	if err := s.checkAge(fresh.LastUpdated); err != nil {
		return nil, s.fail(provider.OpHistory, symbol, err)
	}

	now := s.opts.Clock()
	history, err := s.GetHistory(ctx, symbol, interval, now.Add(-period), now)
	if err != nil {
		return nil, s.fail(provider.OpHistory, symbol, err)
	}
	return history, nil
}

// FetchOptionChain serves the stored chain for the selected expiry.
func (s *SQLiteStore) FetchOptionChain(ctx context.Context, symbol string, expiry provider.ExpirySelector) (models.OptionChain, error) {
	fresh, err := s.Freshness(ctx, DataTypeOptionChain, symbol)
	if err != nil {
		return models.OptionChain{}, s.fail(provider.OpOptionChain, symbol, err)
	}
	if err := s.checkAge(fresh.LastUpdated); err != nil {
		return models.OptionChain{}, s.fail(provider.OpOptionChain, symbol, err)
	}

	listed, err := s.ListExpiries(ctx, symbol)
	if err != nil {
		return models.OptionChain{}, s.fail(provider.OpOptionChain, symbol, err)
	}
	exp, err := expiry.Resolve(s.opts.Clock(), listed)
	if err != nil {
		return models.OptionChain{}, s.fail(provider.OpOptionChain, symbol, err)
	}

	chain, err := s.GetOptionChain(ctx, symbol, exp)
	if err != nil {
		return models.OptionChain{}, s.fail(provider.OpOptionChain, symbol, err)
	}
	return chain, nil
}

// Caching writes every successful upstream result through to a store. Store
// failures are logged and never fail the call.
type Caching struct {
	upstream provider.Provider
	store    DataStore
	clock    func() time.Time
}

// NewCaching wraps upstream with a write-through cache into store. clock
// stamps the stored results and should be the clock the store ages data
// by; nil means time.Now.
func NewCaching(upstream provider.Provider, store DataStore, clock func() time.Time) *Caching {
	if clock == nil {
		clock = time.Now
	}
	return &Caching{upstream: upstream, store: store, clock: clock}
}

// Name returns the upstream provider's name.
func (c *Caching) Name() string { return c.upstream.Name() }

// FetchLastPrice fetches from upstream and stores the price.
func (c *Caching) FetchLastPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := c.upstream.FetchLastPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if price > 0 {
		c.logSaveError(ctx, provider.OpLastPrice, symbol, c.store.SaveLastPrice(ctx, symbol, price, c.clock()))
	}
	return price, nil
}

// FetchHistory fetches from upstream and stores the samples.
func (c *Caching) FetchHistory(ctx context.Context, symbol string, interval, period time.Duration) (models.StockHistory, error) {
	history, err := c.upstream.FetchHistory(ctx, symbol, interval, period)
	if err != nil {
		return nil, err
	}
	c.logSaveError(ctx, provider.OpHistory, symbol, c.store.SaveHistory(ctx, symbol, interval, history))
	return history, nil
}

// FetchOptionChain fetches from upstream and stores the chain.
func (c *Caching) FetchOptionChain(ctx context.Context, symbol string, expiry provider.ExpirySelector) (models.OptionChain, error) {
	chain, err := c.upstream.FetchOptionChain(ctx, symbol, expiry)
	if err != nil {
		return models.OptionChain{}, err
	}
	if !chain.IsEmpty() {
		c.logSaveError(ctx, provider.OpOptionChain, symbol, c.store.SaveOptionChain(ctx, chain, c.clock()))
	}
	return chain, nil
}

func (c *Caching) logSaveError(ctx context.Context, op, symbol string, err error) {
	if err == nil {
		return
	}
	logger := logging.WithProvider(logging.FromContext(ctx), c.upstream.Name())
	logger.Warn().Err(err).Str("operation", op).Str("symbol", symbol).Msg("Failed to cache provider result")
}
