package provider

import (
	"context"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/logging"
	"options-analytics/internal/models"
	"options-analytics/internal/resilience"
	"options-analytics/pkg/utils"
)

// ResilientConfig holds the call policy applied around a provider.
type ResilientConfig struct {
	Retry   utils.RetryConfig
	Breaker resilience.CircuitBreakerConfig
	// Timeout bounds each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
}

// DefaultResilientConfig returns sensible defaults.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Retry:   utils.DefaultRetryConfig(),
		Breaker: resilience.DefaultCircuitBreakerConfig(),
		Timeout: 10 * time.Second,
	}
}

// Resilient decorates a provider with per-attempt timeouts, retry with
// exponential backoff and a circuit breaker.
type Resilient struct {
	inner   Provider
	cfg     ResilientConfig
	breaker *resilience.CircuitBreaker
}

// NewResilient wraps inner. The breaker is taken from registry by provider
// name when registry is non-nil, so several decorators of the same source
// share one circuit.
func NewResilient(inner Provider, cfg ResilientConfig, registry *resilience.Registry) *Resilient {
	// Errors that another attempt cannot fix. They describe the request, not
	// the health of the source, so they do not count against the circuit.
	permanent := make([]error, 0, len(cfg.Retry.Permanent)+5)
	permanent = append(permanent, cfg.Retry.Permanent...)
	cfg.Retry.Permanent = append(permanent,
		apperrors.ErrUnsupported,
		apperrors.ErrNotAuthenticated,
		apperrors.ErrSymbolNotFound,
		apperrors.ErrDataNotFound,
		context.Canceled,
	)
	retry := cfg.Retry
	cfg.Breaker.IsFailure = func(err error) bool { return !retry.IsPermanent(err) }

	var cb *resilience.CircuitBreaker
	if registry != nil {
		cb = registry.ForConfig(inner.Name(), cfg.Breaker)
	} else {
		cb = resilience.NewCircuitBreaker(inner.Name(), cfg.Breaker)
	}
	return &Resilient{inner: inner, cfg: cfg, breaker: cb}
}

// Name returns the wrapped provider's name.
func (r *Resilient) Name() string { return r.inner.Name() }

// Breaker exposes the circuit breaker guarding the wrapped provider.
func (r *Resilient) Breaker() *resilience.CircuitBreaker { return r.breaker }

// FetchLastPrice fetches the last price through the call policy.
func (r *Resilient) FetchLastPrice(ctx context.Context, symbol string) (float64, error) {
	return guarded(ctx, r, OpLastPrice, symbol, func(ctx context.Context) (float64, error) {
		return r.inner.FetchLastPrice(ctx, symbol)
	})
}

// FetchHistory fetches a price history through the call policy.
func (r *Resilient) FetchHistory(ctx context.Context, symbol string, interval, period time.Duration) (models.StockHistory, error) {
	return guarded(ctx, r, OpHistory, symbol, func(ctx context.Context) (models.StockHistory, error) {
		return r.inner.FetchHistory(ctx, symbol, interval, period)
	})
}

// FetchOptionChain fetches an option chain through the call policy.
func (r *Resilient) FetchOptionChain(ctx context.Context, symbol string, expiry ExpirySelector) (models.OptionChain, error) {
	return guarded(ctx, r, OpOptionChain, symbol, func(ctx context.Context) (models.OptionChain, error) {
		return r.inner.FetchOptionChain(ctx, symbol, expiry)
	})
}

func guarded[T any](ctx context.Context, r *Resilient, op, symbol string, fn func(context.Context) (T, error)) (T, error) {
	policy := r.cfg.Retry
	if policy.OnRetry == nil {
		logger := logging.WithProvider(logging.FromContext(ctx), r.Name())
		policy.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Debug().Str("operation", op).Str("symbol", symbol).Int("attempt", attempt).
				Dur("backoff", delay).Err(err).Msg("Provider call failed, retrying")
		}
	}

	// One logical call is one breaker outcome, however many attempts it took.
	v, err := resilience.ExecuteWithResult(r.breaker, ctx, func() (T, error) {
		return utils.RetryWithResult(ctx, policy, func() (T, error) {
			callCtx, cancel := ctx, context.CancelFunc(func() {})
			if r.cfg.Timeout > 0 {
				callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
			}
			defer cancel()
			return fn(callCtx)
		})
	})
	if err != nil {
		var zero T
		return zero, wrapFailure(r.Name(), op, symbol, err)
	}
	return v, nil
}
