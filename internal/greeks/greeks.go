// Package greeks computes Black-Scholes-Merton sensitivities for a single
// option contract.
//
// Every function is pure: the result depends only on the snapshot, the
// caller-supplied "now" and the continuously compounded risk-free rate. Time
// to expiry, d1 and d2 are recomputed on every call and nothing is cached, so
// the functions are safe for concurrent use without synchronisation.
//
// Degenerate inputs are not errors. A zero volatility or a zero time to
// expiry divides by zero and the resulting NaN or ±Inf is returned as is;
// a negative time to expiry (an expired contract) yields NaN through the
// square root. Callers that need finite values must check with math.IsNaN
// and math.IsInf.
package greeks

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

// DaysPerYear is the day count used to express time to expiry in years.
const DaysPerYear = 365

const yearDuration = DaysPerYear * 24 * time.Hour

// normal is the standard normal distribution supplying Φ and φ.
var normal = distuv.UnitNormal

func cdf(x float64) float64 { return normal.CDF(x) }
func pdf(x float64) float64 { return normal.Prob(x) }

// inputs holds the model terms for one evaluation.
type inputs struct {
	optionType models.OptionType
	spot       float64
	strike     float64
	sigma      float64
	rate       float64
	t          float64
	sqrtT      float64
	d1         float64
	d2         float64
}

// YearsToExpiry returns (expiry - now) in years of DaysPerYear days. The
// result is negative for expired contracts.
func YearsToExpiry(expiry, now time.Time) float64 {
	return float64(expiry.Sub(now)) / float64(yearDuration)
}

func prepare(s models.MarketSnapshot, now time.Time, rate float64) (inputs, error) {
	if s.OptionType() == models.OptionTypeUndefined {
		return inputs{}, apperrors.ErrUndefinedOptionType
	}
	if now.IsZero() {
		return inputs{}, apperrors.NewValidationError(apperrors.ErrInvalidSnapshot, "now", now, "evaluation instant is required")
	}

	in := inputs{
		optionType: s.OptionType(),
		spot:       s.CurrentStockPrice(),
		strike:     s.Strike(),
		sigma:      s.ImpliedVolatility(),
		rate:       rate,
		t:          YearsToExpiry(s.OptionExpiry(), now),
	}
	in.sqrtT = math.Sqrt(in.t)
	in.d1 = (math.Log(in.spot/in.strike) + (in.rate+in.sigma*in.sigma/2)*in.t) / (in.sigma * in.sqrtT)
	in.d2 = in.d1 - in.sigma*in.sqrtT
	return in, nil
}

// discount returns e^(-rT).
func (in inputs) discount() float64 {
	return math.Exp(-in.rate * in.t)
}

// D1 returns the Black-Scholes d1 term for the snapshot.
func D1(s models.MarketSnapshot, now time.Time, rate float64) (float64, error) {
	in, err := prepare(s, now, rate)
	if err != nil {
		return 0, err
	}
	return in.d1, nil
}

// D2 returns the Black-Scholes d2 term for the snapshot.
func D2(s models.MarketSnapshot, now time.Time, rate float64) (float64, error) {
	in, err := prepare(s, now, rate)
	if err != nil {
		return 0, err
	}
	return in.d2, nil
}

// Delta is the sensitivity of the option value to the underlying price.
// Call: Φ(d1). Put: Φ(d1) − 1.
func Delta(s models.MarketSnapshot, now time.Time, rate float64) (float64, error) {
	in, err := prepare(s, now, rate)
	if err != nil {
		return 0, err
	}
	switch in.optionType {
	case models.OptionTypeCall:
		return cdf(in.d1), nil
	case models.OptionTypePut:
		return cdf(in.d1) - 1, nil
	default:
		return 0, apperrors.ErrUndefinedOptionType
	}
}

// Gamma is the curvature of the value in the underlying price,
// φ(d1) / (S·σ·√T). It does not depend on the option type.
func Gamma(s models.MarketSnapshot, now time.Time, rate float64) (float64, error) {
	in, err := prepare(s, now, rate)
	if err != nil {
		return 0, err
	}
	return pdf(in.d1) / (in.spot * in.sigma * in.sqrtT), nil
}

// Vega is the sensitivity to volatility, S·φ(d1)·√T, per unit of σ. It does
// not depend on the option type.
func Vega(s models.MarketSnapshot, now time.Time, rate float64) (float64, error) {
	in, err := prepare(s, now, rate)
	if err != nil {
		return 0, err
	}
	return in.spot * pdf(in.d1) * in.sqrtT, nil
}

// Theta is the sensitivity to the passage of time, per year.
func Theta(s models.MarketSnapshot, now time.Time, rate float64) (float64, error) {
	in, err := prepare(s, now, rate)
	if err != nil {
		return 0, err
	}
	decay := -in.spot * pdf(in.d1) * in.sigma / (2 * in.sqrtT)
	carry := in.rate * in.strike * in.discount()
	switch in.optionType {
	case models.OptionTypeCall:
		return decay - carry*cdf(in.d2), nil
	case models.OptionTypePut:
		return decay + carry*cdf(-in.d2), nil
	default:
		return 0, apperrors.ErrUndefinedOptionType
	}
}

// Rho is the sensitivity to the risk-free rate, per unit of r.
func Rho(s models.MarketSnapshot, now time.Time, rate float64) (float64, error) {
	in, err := prepare(s, now, rate)
	if err != nil {
		return 0, err
	}
	k := in.strike * in.t * in.discount()
	switch in.optionType {
	case models.OptionTypeCall:
		return k * cdf(in.d2), nil
	case models.OptionTypePut:
		return -k * cdf(-in.d2), nil
	default:
		return 0, apperrors.ErrUndefinedOptionType
	}
}

// Price is the closed-form Black-Scholes-Merton premium.
func Price(s models.MarketSnapshot, now time.Time, rate float64) (float64, error) {
	in, err := prepare(s, now, rate)
	if err != nil {
		return 0, err
	}
	pv := in.strike * in.discount()
	switch in.optionType {
	case models.OptionTypeCall:
		return in.spot*cdf(in.d1) - pv*cdf(in.d2), nil
	case models.OptionTypePut:
		return pv*cdf(-in.d2) - in.spot*cdf(-in.d1), nil
	default:
		return 0, apperrors.ErrUndefinedOptionType
	}
}

// Compute returns all five Greeks evaluated at the same instant.
func Compute(s models.MarketSnapshot, now time.Time, rate float64) (models.OptionGreeks, error) {
	var g models.OptionGreeks
	var err error
	if g.Delta, err = Delta(s, now, rate); err != nil {
		return models.OptionGreeks{}, err
	}
	if g.Gamma, err = Gamma(s, now, rate); err != nil {
		return models.OptionGreeks{}, err
	}
	if g.Theta, err = Theta(s, now, rate); err != nil {
		return models.OptionGreeks{}, err
	}
	if g.Vega, err = Vega(s, now, rate); err != nil {
		return models.OptionGreeks{}, err
	}
	if g.Rho, err = Rho(s, now, rate); err != nil {
		return models.OptionGreeks{}, err
	}
	return g, nil
}
