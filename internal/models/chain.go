package models

import (
	"sort"
	"time"
)

// OptionChain pairs the calls and puts listed for one expiry date. Both
// sides are ordered by strike ascending.
type OptionChain struct {
	Symbol string           `json:"symbol"`
	Expiry time.Time        `json:"expiry"`
	Calls  []MarketSnapshot `json:"calls"`
	Puts   []MarketSnapshot `json:"puts"`
}

// NewOptionChain builds a chain, normalising both sides to strike order.
// The input slices are not modified.
func NewOptionChain(symbol string, expiry time.Time, calls, puts []MarketSnapshot) OptionChain {
	return OptionChain{
		Symbol: symbol,
		Expiry: expiry,
		Calls:  sortByStrike(calls),
		Puts:   sortByStrike(puts),
	}
}

func sortByStrike(in []MarketSnapshot) []MarketSnapshot {
	out := make([]MarketSnapshot, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Strike() < out[j].Strike()
	})
	return out
}

// IsEmpty reports whether the chain lists no contracts.
func (c OptionChain) IsEmpty() bool {
	return len(c.Calls) == 0 && len(c.Puts) == 0
}

// Side returns the contracts of the given type.
func (c OptionChain) Side(t OptionType) []MarketSnapshot {
	switch t {
	case OptionTypeCall:
		return c.Calls
	case OptionTypePut:
		return c.Puts
	default:
		return nil
	}
}

// AtStrike returns the contract of type t listed at strike.
func (c OptionChain) AtStrike(t OptionType, strike float64) (MarketSnapshot, bool) {
	side := c.Side(t)
	i := sort.Search(len(side), func(i int) bool { return side[i].Strike() >= strike })
	if i < len(side) && side[i].Strike() == strike {
		return side[i], true
	}
	return MarketSnapshot{}, false
}

// NearestStrike returns the contract of type t whose strike is closest to
// price, e.g. the at-the-money contract for the current spot.
func (c OptionChain) NearestStrike(t OptionType, price float64) (MarketSnapshot, bool) {
	side := c.Side(t)
	if len(side) == 0 {
		return MarketSnapshot{}, false
	}
	best := side[0]
	for _, s := range side[1:] {
		if abs(s.Strike()-price) < abs(best.Strike()-price) {
			best = s
		}
	}
	return best, true
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
