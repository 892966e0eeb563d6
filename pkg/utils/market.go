package utils

import (
	"time"
)

// MarketStatus represents the trading session state of an exchange.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketClosed  MarketStatus = "CLOSED"
	MarketPreOpen MarketStatus = "PRE_OPEN"
)

// Market describes the regular session of an exchange. Times are minutes
// after midnight in Location.
type Market struct {
	Name     string
	Location *time.Location
	PreOpen  int
	Open     int
	Close    int
}

// NSE is the National Stock Exchange of India session, which also governs
// NFO option expiries.
var NSE = Market{
	Name:     "NSE",
	Location: loadLocation("Asia/Kolkata", "IST", 5*60*60+30*60),
	PreOpen:  9 * 60,
	Open:     9*60 + 15,
	Close:    15*60 + 30,
}

// US is the regular session of the US equity and listed options markets.
var US = Market{
	Name:     "US",
	Location: loadLocation("America/New_York", "EST", -5*60*60),
	PreOpen:  4 * 60,
	Open:     9*60 + 30,
	Close:    16 * 60,
}

func loadLocation(name, abbrev string, offset int) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Fallback to a fixed offset when tzdata is missing
		return time.FixedZone(abbrev, offset)
	}
	return loc
}

// Status returns the session state at t.
func (m Market) Status(t time.Time) MarketStatus {
	now := t.In(m.Location)

	// Check if weekend
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return MarketClosed
	}

	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes >= m.PreOpen && minutes < m.Open:
		return MarketPreOpen
	case minutes >= m.Open && minutes < m.Close:
		return MarketOpen
	default:
		return MarketClosed
	}
}

// IsOpen reports whether the regular session is running at t.
func (m Market) IsOpen(t time.Time) bool {
	return m.Status(t) == MarketOpen
}

// SessionClose returns the closing instant of the session held on the
// calendar date of day. Only the date fields of day are used, so a listed
// expiry date at midnight UTC maps to that date's close.
func (m Market) SessionClose(day time.Time) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, m.Close/60, m.Close%60, 0, 0, m.Location)
}

// NextOpen returns the next session open strictly after t, skipping weekends.
func (m Market) NextOpen(t time.Time) time.Time {
	now := t.In(m.Location)
	y, mo, d := now.Date()
	open := time.Date(y, mo, d, m.Open/60, m.Open%60, 0, 0, m.Location)
	if !open.After(now) {
		open = open.AddDate(0, 0, 1)
	}
	for open.Weekday() == time.Saturday || open.Weekday() == time.Sunday {
		open = open.AddDate(0, 0, 1)
	}
	return open
}
