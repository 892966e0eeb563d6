package models

import (
	"encoding/json"
	"math"
	"time"

	apperrors "options-analytics/internal/errors"
)

// SnapshotParams carries the observed state of one option contract. It is
// only an input to NewMarketSnapshot.
type SnapshotParams struct {
	Symbol            string
	OptionType        OptionType
	Strike            float64
	CurrentStockPrice float64
	ImpliedVolatility float64
	LastPrice         float64
	Bid               float64
	OpenInterest      float64
	Volume            float64
	Currency          string
	OptionExpiry      time.Time
	LastTrade         time.Time
}

// MarketSnapshot is an immutable record of one option contract's observable
// state at a point in time. Construct it with NewMarketSnapshot.
type MarketSnapshot struct {
	symbol            string
	optionType        OptionType
	strike            float64
	currentStockPrice float64
	impliedVolatility float64
	lastPrice         float64
	bid               float64
	openInterest      float64
	volume            float64
	currency          string
	optionExpiry      time.Time
	lastTrade         time.Time
}

// NewMarketSnapshot validates p and returns the snapshot. Strike and stock
// price must be positive, volatility and premium non-negative, and the
// expiry instant must be set. A zero last-trade instant means "unknown".
func NewMarketSnapshot(p SnapshotParams) (MarketSnapshot, error) {
	if !(p.Strike > 0) || math.IsInf(p.Strike, 0) {
		return MarketSnapshot{}, invalid("strike", p.Strike, "must be a positive finite number")
	}
	if !(p.CurrentStockPrice > 0) || math.IsInf(p.CurrentStockPrice, 0) {
		return MarketSnapshot{}, invalid("current_stock_price", p.CurrentStockPrice, "must be a positive finite number")
	}
	if !(p.ImpliedVolatility >= 0) {
		return MarketSnapshot{}, invalid("implied_volatility", p.ImpliedVolatility, "must be non-negative")
	}
	if !(p.LastPrice >= 0) {
		return MarketSnapshot{}, invalid("last_price", p.LastPrice, "must be non-negative")
	}
	if p.OptionExpiry.IsZero() {
		return MarketSnapshot{}, invalid("option_expiry", p.OptionExpiry, "expiry instant is required")
	}

	return MarketSnapshot{
		symbol:            p.Symbol,
		optionType:        p.OptionType,
		strike:            p.Strike,
		currentStockPrice: p.CurrentStockPrice,
		impliedVolatility: p.ImpliedVolatility,
		lastPrice:         p.LastPrice,
		bid:               p.Bid,
		openInterest:      p.OpenInterest,
		volume:            p.Volume,
		currency:          p.Currency,
		optionExpiry:      p.OptionExpiry,
		lastTrade:         p.LastTrade,
	}, nil
}

func invalid(field string, value interface{}, msg string) error {
	return apperrors.NewValidationError(apperrors.ErrInvalidSnapshot, field, value, msg)
}

func (s MarketSnapshot) Symbol() string             { return s.symbol }
func (s MarketSnapshot) OptionType() OptionType     { return s.optionType }
func (s MarketSnapshot) Strike() float64            { return s.strike }
func (s MarketSnapshot) CurrentStockPrice() float64 { return s.currentStockPrice }
func (s MarketSnapshot) ImpliedVolatility() float64 { return s.impliedVolatility }
func (s MarketSnapshot) LastPrice() float64         { return s.lastPrice }
func (s MarketSnapshot) Bid() float64               { return s.bid }
func (s MarketSnapshot) OpenInterest() float64      { return s.openInterest }
func (s MarketSnapshot) Volume() float64            { return s.volume }
func (s MarketSnapshot) Currency() string           { return s.currency }
func (s MarketSnapshot) OptionExpiry() time.Time    { return s.optionExpiry }
func (s MarketSnapshot) LastTrade() time.Time       { return s.lastTrade }

// Params returns the snapshot's fields as constructor input, so a modified
// copy can be built without touching the original.
func (s MarketSnapshot) Params() SnapshotParams {
	return SnapshotParams{
		Symbol:            s.symbol,
		OptionType:        s.optionType,
		Strike:            s.strike,
		CurrentStockPrice: s.currentStockPrice,
		ImpliedVolatility: s.impliedVolatility,
		LastPrice:         s.lastPrice,
		Bid:               s.bid,
		OpenInterest:      s.openInterest,
		Volume:            s.volume,
		Currency:          s.currency,
		OptionExpiry:      s.optionExpiry,
		LastTrade:         s.lastTrade,
	}
}

// WithCurrentStockPrice returns a new snapshot re-priced at spot.
func (s MarketSnapshot) WithCurrentStockPrice(spot float64) (MarketSnapshot, error) {
	p := s.Params()
	p.CurrentStockPrice = spot
	return NewMarketSnapshot(p)
}

// WithImpliedVolatility returns a new snapshot with a different volatility.
func (s MarketSnapshot) WithImpliedVolatility(iv float64) (MarketSnapshot, error) {
	p := s.Params()
	p.ImpliedVolatility = iv
	return NewMarketSnapshot(p)
}

type snapshotJSON struct {
	Symbol            string     `json:"symbol,omitempty"`
	OptionType        OptionType `json:"option_type"`
	Strike            float64    `json:"strike"`
	CurrentStockPrice float64    `json:"current_stock_price"`
	ImpliedVolatility float64    `json:"implied_volatility"`
	LastPrice         float64    `json:"last_price"`
	Bid               float64    `json:"bid"`
	OpenInterest      float64    `json:"open_interest"`
	Volume            float64    `json:"volume"`
	Currency          string     `json:"currency,omitempty"`
	OptionExpiry      time.Time  `json:"option_expiry"`
	LastTrade         *time.Time `json:"last_trade,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s MarketSnapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		Symbol:            s.symbol,
		OptionType:        s.optionType,
		Strike:            s.strike,
		CurrentStockPrice: s.currentStockPrice,
		ImpliedVolatility: s.impliedVolatility,
		LastPrice:         s.lastPrice,
		Bid:               s.bid,
		OpenInterest:      s.openInterest,
		Volume:            s.volume,
		Currency:          s.currency,
		OptionExpiry:      s.optionExpiry,
	}
	if !s.lastTrade.IsZero() {
		lt := s.lastTrade
		out.LastTrade = &lt
	}
	return json.Marshal(out)
}

// Layouts accepted by ParseInstant. Every layout carries a zone offset.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700 MST",
	time.RFC1123Z,
}

// Layouts that parse but carry no zone; used to report naive timestamps.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseInstant parses a zone-qualified timestamp. A timestamp without a zone
// offset is rejected with ErrInvalidSnapshot instead of being read as UTC.
func ParseInstant(s string) (time.Time, error) {
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return time.Time{}, invalid("timestamp", s, "timestamp has no time zone")
		}
	}
	return time.Time{}, invalid("timestamp", s, "unrecognised timestamp format")
}
