package greeks

import (
	"time"

	"options-analytics/internal/models"
)

// Clock returns the current instant.
type Clock func() time.Time

// Engine binds the package functions to a clock and a default risk-free
// rate. The zero value reads time.Now and uses a rate of 0.
type Engine struct {
	Clock Clock
	Rate  float64
}

// NewEngine returns an engine using the system clock and the given rate.
func NewEngine(rate float64) *Engine {
	return &Engine{Clock: time.Now, Rate: rate}
}

// Now reads the engine clock.
func (e *Engine) Now() time.Time {
	if e == nil || e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

func (e *Engine) rate() float64 {
	if e == nil {
		return 0
	}
	return e.Rate
}

// Delta returns the delta of s at the engine's clock and rate.
func (e *Engine) Delta(s models.MarketSnapshot) (float64, error) { return Delta(s, e.Now(), e.rate()) }

// Gamma returns the gamma of s at the engine's clock and rate.
func (e *Engine) Gamma(s models.MarketSnapshot) (float64, error) { return Gamma(s, e.Now(), e.rate()) }

// Theta returns the annual theta of s at the engine's clock and rate.
func (e *Engine) Theta(s models.MarketSnapshot) (float64, error) { return Theta(s, e.Now(), e.rate()) }

// Vega returns the vega of s at the engine's clock and rate.
func (e *Engine) Vega(s models.MarketSnapshot) (float64, error) { return Vega(s, e.Now(), e.rate()) }

// Rho returns the rho of s at the engine's clock and rate.
func (e *Engine) Rho(s models.MarketSnapshot) (float64, error) { return Rho(s, e.Now(), e.rate()) }

// Price returns the model premium of s at the engine's clock and rate.
func (e *Engine) Price(s models.MarketSnapshot) (float64, error) { return Price(s, e.Now(), e.rate()) }

// Compute returns all Greeks at a single reading of the clock.
func (e *Engine) Compute(s models.MarketSnapshot) (models.OptionGreeks, error) {
	return Compute(s, e.Now(), e.rate())
}
