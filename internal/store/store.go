// Package store provides local persistence of market data. The SQLite store
// doubles as an offline data provider and backs the write-through cache that
// sits in front of the network providers.
package store

import (
	"context"
	"time"

	"options-analytics/internal/models"
)

// DataStore defines the interface for market data persistence.
type DataStore interface {
	// Prices
	SaveLastPrice(ctx context.Context, symbol string, price float64, at time.Time) error
	GetLastPrice(ctx context.Context, symbol string) (float64, time.Time, error)

	// Histories, keyed by sampling interval
	SaveHistory(ctx context.Context, symbol string, interval time.Duration, history models.StockHistory) error
	GetHistory(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) (models.StockHistory, error)

	// Option chains, one per symbol and expiry
	SaveOptionChain(ctx context.Context, chain models.OptionChain, at time.Time) error
	GetOptionChain(ctx context.Context, symbol string, expiry time.Time) (models.OptionChain, error)
	ListExpiries(ctx context.Context, symbol string) ([]time.Time, error)

	// Freshness
	Freshness(ctx context.Context, dataType DataType, symbol string) (*DataFreshness, error)

	// Lifecycle
	Close() error
}

// DataType names a kind of stored market data.
type DataType string

const (
	DataTypeLastPrice   DataType = "last_price"
	DataTypeHistory     DataType = "history"
	DataTypeOptionChain DataType = "option_chain"
)
