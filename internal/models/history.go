package models

import (
	"sort"
	"time"
)

// StockHistoryDatum is one OHLCV sample with dividends and splits.
type StockHistoryDatum struct {
	Time        time.Time `json:"time" csv:"time"`
	Symbol      string    `json:"symbol" csv:"symbol"`
	Currency    string    `json:"currency" csv:"currency"`
	Open        float64   `json:"open" csv:"open"`
	Close       float64   `json:"close" csv:"close"`
	High        float64   `json:"high" csv:"high"`
	Low         float64   `json:"low" csv:"low"`
	Volume      float64   `json:"volume" csv:"volume"`
	Dividends   float64   `json:"dividends" csv:"dividends"`
	StockSplits float64   `json:"stock_splits" csv:"stock_splits"`
}

// StockHistory is a price history ordered by Time ascending.
type StockHistory []StockHistoryDatum

// SortHistory returns a copy of data ordered by time ascending. Equal
// timestamps keep their source order.
func SortHistory(data []StockHistoryDatum) StockHistory {
	out := make(StockHistory, len(data))
	copy(out, data)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

// Closes returns the close values in order.
func (h StockHistory) Closes() []float64 {
	closes := make([]float64, len(h))
	for i, d := range h {
		closes[i] = d.Close
	}
	return closes
}

// Last returns the most recent sample.
func (h StockHistory) Last() (StockHistoryDatum, bool) {
	if len(h) == 0 {
		return StockHistoryDatum{}, false
	}
	return h[len(h)-1], true
}

// Window returns the samples with from < Time <= to.
func (h StockHistory) Window(from, to time.Time) StockHistory {
	out := make(StockHistory, 0, len(h))
	for _, d := range h {
		if d.Time.After(from) && !d.Time.After(to) {
			out = append(out, d)
		}
	}
	return out
}

// Resample aggregates an ordered history into buckets of one interval each,
// aligned to midnight in each sample's own location. Each bucket keeps the
// time and open of its first sample and the close of its last; volumes and
// dividends are summed.
func (h StockHistory) Resample(interval time.Duration) StockHistory {
	return h.ResampleFrom(interval, nil, 0)
}

// ResampleFrom is Resample with intraday buckets laid out from open after
// local midnight in loc, so 2h buckets of an NSE session start at 09:15 IST.
// Samples before open belong to the previous day's grid. Buckets of a day
// or longer start at local midnight. A nil loc uses each sample's location.
func (h StockHistory) ResampleFrom(interval time.Duration, loc *time.Location, open time.Duration) StockHistory {
	if interval <= 0 || len(h) == 0 {
		return h
	}

	out := make(StockHistory, 0, len(h))
	var bucket time.Time
	for _, d := range h {
		start := bucketStart(d.Time, interval, loc, open)
		if len(out) == 0 || !start.Equal(bucket) {
			bucket = start
			out = append(out, d)
			continue
		}

		cur := &out[len(out)-1]
		cur.Close = d.Close
		if d.High > cur.High {
			cur.High = d.High
		}
		if d.Low < cur.Low {
			cur.Low = d.Low
		}
		cur.Volume += d.Volume
		cur.Dividends += d.Dividends
		if d.StockSplits != 0 {
			cur.StockSplits = d.StockSplits
		}
	}
	return out
}

const day = 24 * time.Hour

// weekAnchor is a Monday, so weekly buckets start on Mondays.
var weekAnchor = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bucketStart(t time.Time, interval time.Duration, loc *time.Location, open time.Duration) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())

	if interval < day {
		anchor := midnight.Add(open)
		if t.Before(anchor) {
			anchor = anchor.AddDate(0, 0, -1)
		}
		return anchor.Add(t.Sub(anchor).Truncate(interval))
	}

	// Calendar days, counted in UTC so DST shifts do not matter.
	days := int(interval / day)
	n := int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Sub(weekAnchor) / day)
	return midnight.AddDate(0, 0, -(((n % days) + days) % days))
}

// CorrelationHistoryDatum is one point of a rolling correlation series.
type CorrelationHistoryDatum struct {
	Time  time.Time `json:"time" csv:"time"`
	Value float64   `json:"value" csv:"value"`
}
