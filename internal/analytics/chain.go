package analytics

import (
	"context"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/greeks"
	"options-analytics/internal/models"
	"options-analytics/internal/performance"
)

// ContractGreeks is the model price and Greeks of one contract. Err is set
// when the contract could not be evaluated, e.g. an undefined option type.
type ContractGreeks struct {
	Contract models.MarketSnapshot
	Price    float64
	Greeks   models.OptionGreeks
	Err      error
}

// ChainGreeks holds the Greeks of every contract of a chain, evaluated at a
// single instant and rate.
type ChainGreeks struct {
	Symbol string
	Expiry time.Time
	Now    time.Time
	Rate   float64
	Calls  []ContractGreeks
	Puts   []ContractGreeks
}

// ComputeChainGreeks evaluates every contract of chain on pool. A nil pool
// evaluates sequentially. Contract order is preserved.
func ComputeChainGreeks(ctx context.Context, pool *performance.WorkerPool, chain models.OptionChain, now time.Time, rate float64) (ChainGreeks, error) {
	if now.IsZero() {
		return ChainGreeks{}, apperrors.NewValidationError(apperrors.ErrInvalidSnapshot, "now", now, "must be a concrete instant")
	}

	out := ChainGreeks{
		Symbol: chain.Symbol,
		Expiry: chain.Expiry,
		Now:    now,
		Rate:   rate,
		Calls:  make([]ContractGreeks, len(chain.Calls)),
		Puts:   make([]ContractGreeks, len(chain.Puts)),
	}

	evaluate := func(dst *ContractGreeks, s models.MarketSnapshot) {
		dst.Contract = s
		g, err := greeks.Compute(s, now, rate)
		if err != nil {
			dst.Err = err
			return
		}
		dst.Greeks = g
		dst.Price, _ = greeks.Price(s, now, rate)
	}

	calls := len(chain.Calls)
	err := pool.ForEach(ctx, calls+len(chain.Puts), func(i int) {
		if i < calls {
			evaluate(&out.Calls[i], chain.Calls[i])
			return
		}
		evaluate(&out.Puts[i-calls], chain.Puts[i-calls])
	})
	if err != nil {
		return ChainGreeks{}, err
	}
	return out, nil
}

// Engine evaluates chains with a greeks.Engine's clock and rate on a shared pool.
type Engine struct {
	Greeks *greeks.Engine
	Pool   *performance.WorkerPool
}

// ChainGreeks evaluates chain at the engine clock's current instant.
func (e Engine) ChainGreeks(ctx context.Context, chain models.OptionChain) (ChainGreeks, error) {
	rate := 0.0
	if e.Greeks != nil {
		rate = e.Greeks.Rate
	}
	return ComputeChainGreeks(ctx, e.Pool, chain, e.Greeks.Now(), rate)
}
