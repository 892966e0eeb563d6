package greeks

import (
	"math"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

const (
	ivLow       = 1e-6
	ivHigh      = 5.0
	ivTolerance = 1e-7
	ivMaxIter   = 200
)

// ImpliedVolatility returns the volatility at which the model premium
// equals the snapshot's last price. The snapshot's own volatility is
// ignored. Premiums outside the range the model can produce at volatilities
// between 0 and 500% are rejected.
func ImpliedVolatility(s models.MarketSnapshot, now time.Time, rate float64) (float64, error) {
	if _, err := prepare(s, now, rate); err != nil {
		return 0, err
	}
	target := s.LastPrice()
	if YearsToExpiry(s.OptionExpiry(), now) <= 0 {
		return 0, apperrors.NewValidationError(apperrors.ErrInvalidArgument, "option_expiry", s.OptionExpiry(), "contract has expired")
	}

	priceAt := func(sigma float64) (float64, error) {
		snap, err := s.WithImpliedVolatility(sigma)
		if err != nil {
			return 0, err
		}
		return Price(snap, now, rate)
	}

	lo, hi := ivLow, ivHigh
	pLo, err := priceAt(lo)
	if err != nil {
		return 0, err
	}
	pHi, err := priceAt(hi)
	if err != nil {
		return 0, err
	}
	if target < pLo || target > pHi {
		return 0, apperrors.NewValidationError(apperrors.ErrInvalidArgument, "last_price", target, "outside the range of model premiums")
	}

	for i := 0; i < ivMaxIter && hi-lo > ivTolerance; i++ {
		mid := (lo + hi) / 2
		p, err := priceAt(mid)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(p) {
			break
		}
		if p < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}
