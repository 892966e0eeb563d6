// Package provider defines the data provider boundary: the capability the
// analytics core consumes for last prices, price histories and option chains,
// plus the composite and resilience decorators layered on top of it.
//
// Every failure crossing this boundary is a *errors.ProviderError, so callers
// can match it with errors.Is(err, errors.ErrProviderFailure) while still
// reaching the underlying cause.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

// Operation names used in provider errors and logs.
const (
	OpLastPrice   = "last_price"
	OpHistory     = "history"
	OpOptionChain = "option_chain"
)

// Provider is a source of market data.
type Provider interface {
	// Name identifies the provider in errors and logs.
	Name() string
	// FetchLastPrice returns the last traded price of symbol.
	FetchLastPrice(ctx context.Context, symbol string) (float64, error)
	// FetchHistory returns samples of one interval each, covering period up to now,
	// ordered by time ascending.
	FetchHistory(ctx context.Context, symbol string, interval, period time.Duration) (models.StockHistory, error)
	// FetchOptionChain returns the calls and puts of one expiry, each ordered by strike.
	FetchOptionChain(ctx context.Context, symbol string, expiry ExpirySelector) (models.OptionChain, error)
}

// ExpiryKind distinguishes the ways an option expiry can be selected.
type ExpiryKind int

const (
	// ExpiryOnDate selects the expiry listed on an explicit calendar date.
	ExpiryOnDate ExpiryKind = iota
	// ExpiryNext selects the nearest listed expiry on or after today.
	ExpiryNext
	// ExpiryNextFriday selects the expiry listed on the Friday on or after today.
	ExpiryNextFriday
)

// ExpirySelector chooses which expiry of an option chain to fetch.
type ExpirySelector struct {
	kind ExpiryKind
	date time.Time
}

// OnDate selects the expiry listed on the calendar date of t.
func OnDate(t time.Time) ExpirySelector {
	y, m, d := t.Date()
	return ExpirySelector{kind: ExpiryOnDate, date: time.Date(y, m, d, 0, 0, 0, 0, t.Location())}
}

// NextExpiry selects the nearest listed expiry.
func NextExpiry() ExpirySelector { return ExpirySelector{kind: ExpiryNext} }

// NextFriday selects the expiry listed on the coming Friday.
func NextFriday() ExpirySelector { return ExpirySelector{kind: ExpiryNextFriday} }

// ParseExpirySelector parses "next", "next-friday" (or "friday", "next friday")
// and calendar dates in YYYY-MM-DD form.
func ParseExpirySelector(s string) (ExpirySelector, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", "next":
		return NextExpiry(), nil
	case "friday", "next friday", "next-friday", "next_friday":
		return NextFriday(), nil
	default:
		t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			return ExpirySelector{}, fmt.Errorf("invalid expiry %q: want next, next-friday or YYYY-MM-DD", s)
		}
		return OnDate(t), nil
	}
}

// Kind returns how the selector picks an expiry.
func (e ExpirySelector) Kind() ExpiryKind { return e.kind }

// String returns a form accepted by ParseExpirySelector.
func (e ExpirySelector) String() string {
	switch e.kind {
	case ExpiryNext:
		return "next"
	case ExpiryNextFriday:
		return "next-friday"
	default:
		return e.date.Format("2006-01-02")
	}
}

// Target returns the calendar date the selector names relative to now.
// It reports false for ExpiryNext, which depends on the listed expiries.
func (e ExpirySelector) Target(now time.Time) (time.Time, bool) {
	switch e.kind {
	case ExpiryOnDate:
		return e.date, true
	case ExpiryNextFriday:
		return NextFridayFrom(now), true
	default:
		return time.Time{}, false
	}
}

// Resolve picks one of the listed expiries relative to now.
func (e ExpirySelector) Resolve(now time.Time, listed []time.Time) (time.Time, error) {
	if target, ok := e.Target(now); ok {
		for _, exp := range listed {
			if SameDay(target, exp) {
				return exp, nil
			}
		}
		return time.Time{}, apperrors.Wrapf(apperrors.ErrDataNotFound, "no expiry listed on %s", target.Format("2006-01-02"))
	}

	today := startOfDay(now)
	var best time.Time
	for _, exp := range listed {
		if startOfDay(exp.In(now.Location())).Before(today) {
			continue
		}
		if best.IsZero() || exp.Before(best) {
			best = exp
		}
	}
	if best.IsZero() {
		return time.Time{}, apperrors.Wrapf(apperrors.ErrDataNotFound, "no expiry listed after %s", today.Format("2006-01-02"))
	}
	return best, nil
}

// NextFridayFrom returns midnight of the Friday on or after t, in t's location.
func NextFridayFrom(t time.Time) time.Time {
	days := (int(time.Friday) - int(t.Weekday()) + 7) % 7
	return startOfDay(t).AddDate(0, 0, days)
}

// SameDay reports whether a and b fall on the same calendar date, comparing
// b in a's location.
func SameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.In(a.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
