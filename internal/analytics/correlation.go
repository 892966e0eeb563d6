package analytics

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

// aligned holds the closes of two histories at their shared instants.
type aligned struct {
	times []time.Time
	a, b  []float64
}

func align(a, b models.StockHistory) aligned {
	closes := make(map[int64]float64, len(b))
	for _, d := range b {
		closes[d.Time.UnixNano()] = d.Close
	}

	var out aligned
	for _, d := range a {
		if c, ok := closes[d.Time.UnixNano()]; ok && d.Close > 0 && c > 0 {
			out.times = append(out.times, d.Time)
			out.a = append(out.a, d.Close)
			out.b = append(out.b, c)
		}
	}
	return out
}

func logReturns(closes []float64) []float64 {
	out := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}

// RollingCorrelation is the Pearson correlation of the log returns of a and b
// over a sliding window of returns. Only instants present in both histories
// are used. Each point is stamped with the time of the last return in its
// window.
func RollingCorrelation(a, b models.StockHistory, window int) ([]models.CorrelationHistoryDatum, error) {
	if window < 2 {
		return nil, apperrors.NewValidationError(apperrors.ErrInvalidArgument, "window", window, "must be at least 2")
	}

	al := align(a, b)
	ra, rb := logReturns(al.a), logReturns(al.b)
	if len(ra) < window {
		return nil, apperrors.NewDataError("history", symbolOf(a), "not enough overlapping samples for the window", apperrors.ErrDataNotFound)
	}

	out := make([]models.CorrelationHistoryDatum, 0, len(ra)-window+1)
	for end := window; end <= len(ra); end++ {
		c, err := stats.Correlation(ra[end-window:end], rb[end-window:end])
		if err != nil {
			return nil, apperrors.Wrap(err, "correlation")
		}
		out = append(out, models.CorrelationHistoryDatum{
			// Return i spans closes i and i+1.
			Time:  al.times[end],
			Value: c,
		})
	}
	return out, nil
}

// Correlation is the Pearson correlation of the log returns of a and b over
// their whole overlap.
func Correlation(a, b models.StockHistory) (float64, error) {
	al := align(a, b)
	ra, rb := logReturns(al.a), logReturns(al.b)
	if len(ra) < 2 {
		return 0, apperrors.NewDataError("history", symbolOf(a), "not enough overlapping samples", apperrors.ErrDataNotFound)
	}
	c, err := stats.Correlation(ra, rb)
	if err != nil {
		return 0, apperrors.Wrap(err, "correlation")
	}
	return c, nil
}
