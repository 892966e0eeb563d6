package provider

import (
	"context"
	"strings"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/logging"
	"options-analytics/internal/models"
)

// Composite tries its providers in a fixed priority order and returns the
// first successful, non-empty result of each call. Results are never merged
// across providers. When every provider fails, the failure of the last one
// tried is returned.
type Composite struct {
	providers []Provider
}

// Combine builds a composite over providers in priority order. Nested
// composites are flattened, so Combine(Combine(a, b), c) and
// Combine(a, Combine(b, c)) try the same sources in the same order.
func Combine(providers ...Provider) *Composite {
	flat := make([]Provider, 0, len(providers))
	for _, p := range providers {
		switch v := p.(type) {
		case nil:
		case *Composite:
			if v != nil {
				flat = append(flat, v.providers...)
			}
		default:
			flat = append(flat, v)
		}
	}
	return &Composite{providers: flat}
}

// Name lists the underlying providers in priority order.
func (c *Composite) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return "composite(" + strings.Join(names, ",") + ")"
}

// Providers returns the flattened providers in priority order.
func (c *Composite) Providers() []Provider {
	out := make([]Provider, len(c.providers))
	copy(out, c.providers)
	return out
}

// FetchLastPrice returns the first positive last price.
func (c *Composite) FetchLastPrice(ctx context.Context, symbol string) (float64, error) {
	return firstOf(ctx, c, OpLastPrice, symbol,
		func(p Provider) (float64, error) { return p.FetchLastPrice(ctx, symbol) },
		func(v float64) bool { return !(v > 0) },
	)
}

// FetchHistory returns the first non-empty history.
func (c *Composite) FetchHistory(ctx context.Context, symbol string, interval, period time.Duration) (models.StockHistory, error) {
	return firstOf(ctx, c, OpHistory, symbol,
		func(p Provider) (models.StockHistory, error) { return p.FetchHistory(ctx, symbol, interval, period) },
		func(v models.StockHistory) bool { return len(v) == 0 },
	)
}

// FetchOptionChain returns the first chain holding at least one contract.
func (c *Composite) FetchOptionChain(ctx context.Context, symbol string, expiry ExpirySelector) (models.OptionChain, error) {
	return firstOf(ctx, c, OpOptionChain, symbol,
		func(p Provider) (models.OptionChain, error) { return p.FetchOptionChain(ctx, symbol, expiry) },
		func(v models.OptionChain) bool { return v.IsEmpty() },
	)
}

func firstOf[T any](ctx context.Context, c *Composite, op, symbol string, fetch func(Provider) (T, error), empty func(T) bool) (T, error) {
	var zero T
	if len(c.providers) == 0 {
		return zero, apperrors.NewProviderError("composite", op, symbol, apperrors.ErrNoProviders)
	}

	logger := logging.WithSymbol(logging.FromContext(ctx), symbol)

	var lastErr error
	for i, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return zero, apperrors.NewProviderError(p.Name(), op, symbol, err)
		}

		start := time.Now()
		v, err := fetch(p)
		if err == nil && empty(v) {
			err = apperrors.ErrEmptyResult
		}
		logging.LogProviderCall(logger, p.Name(), op, symbol, time.Since(start), err)
		if err == nil {
			return v, nil
		}

		lastErr = wrapFailure(p.Name(), op, symbol, err)
		if i < len(c.providers)-1 {
			logging.LogFallback(logger, p.Name(), op, symbol, err)
		}
	}

	return zero, lastErr
}

// wrapFailure returns err as a ProviderError, keeping one that is already
// attributed to a provider.
func wrapFailure(name, op, symbol string, err error) error {
	var pe *apperrors.ProviderError
	if apperrors.As(err, &pe) {
		return err
	}
	return apperrors.NewProviderError(name, op, symbol, err)
}
