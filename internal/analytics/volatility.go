// Package analytics derives statistics from price histories and option
// chains: historical volatility, rolling correlation and chain-wide Greeks.
package analytics

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

// TradingDaysPerYear is the annualisation factor for daily samples.
const TradingDaysPerYear = 252

// tradingHoursPerDay is the length of a regular equity session.
const tradingHoursPerDay = 6.5

// PeriodsPerYear returns how many samples of interval make up a trading year.
func PeriodsPerYear(interval time.Duration) float64 {
	switch {
	case interval <= 0:
		return TradingDaysPerYear
	case interval >= 7*24*time.Hour:
		return 52 * float64(7*24*time.Hour) / float64(interval)
	case interval >= 24*time.Hour:
		return TradingDaysPerYear * float64(24*time.Hour) / float64(interval)
	default:
		session := time.Duration(tradingHoursPerDay * float64(time.Hour))
		return TradingDaysPerYear * float64(session) / float64(interval)
	}
}

// LogReturns returns ln(close[i]/close[i-1]) for consecutive samples.
// Samples with a non-positive close break the series and are skipped.
func LogReturns(h models.StockHistory) []float64 {
	if len(h) < 2 {
		return nil
	}
	out := make([]float64, 0, len(h)-1)
	for i := 1; i < len(h); i++ {
		prev, cur := h[i-1].Close, h[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// HistoricalVolatility is the annualised sample standard deviation of log
// returns. It needs at least three samples.
func HistoricalVolatility(h models.StockHistory, periodsPerYear float64) (float64, error) {
	returns := LogReturns(h)
	if len(returns) < 2 {
		return 0, apperrors.NewDataError("history", symbolOf(h), "need at least three samples", apperrors.ErrDataNotFound)
	}

	sd, err := stats.StandardDeviationSample(returns)
	if err != nil {
		return 0, apperrors.Wrap(err, "standard deviation")
	}
	return sd * math.Sqrt(periodsPerYear), nil
}

func symbolOf(h models.StockHistory) string {
	if len(h) == 0 {
		return ""
	}
	return h[0].Symbol
}
