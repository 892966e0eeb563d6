// Package models provides domain models for the options analytics engine.
package models

import (
	"time"
)

// Exchange represents a stock exchange segment.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // F&O
)

// Instrument represents a tradeable instrument as listed by a data source.
type Instrument struct {
	Token     uint32
	Symbol    string
	Name      string
	Exchange  Exchange
	Segment   string
	LotSize   int
	TickSize  float64
	Expiry    time.Time
	Strike    float64
	InstrType string
}

// OptionType returns the option type encoded in the instrument type
// (CE/PE on Indian exchanges).
func (i Instrument) OptionType() OptionType {
	switch i.InstrType {
	case "CE":
		return OptionTypeCall
	case "PE":
		return OptionTypePut
	default:
		return OptionTypeUndefined
	}
}
