package store

import (
	"fmt"
	"time"
)

// DefaultStaleThresholds defines how old stored data can be before it is
// considered stale.
var DefaultStaleThresholds = map[DataType]time.Duration{
	DataTypeLastPrice:   15 * time.Minute,
	DataTypeHistory:     24 * time.Hour,
	DataTypeOptionChain: time.Hour,
}

// DataFreshness represents the freshness of stored data.
type DataFreshness struct {
	DataType    DataType
	Symbol      string
	LastUpdated time.Time
	IsFresh     bool
	Age         time.Duration
}

func newFreshness(dataType DataType, symbol string, updated, now time.Time, thresholds map[DataType]time.Duration) *DataFreshness {
	f := &DataFreshness{DataType: dataType, Symbol: symbol, LastUpdated: updated}
	if updated.IsZero() {
		return f
	}

	threshold := thresholds[dataType]
	if threshold == 0 {
		threshold = time.Hour
	}
	f.Age = now.Sub(updated)
	f.IsFresh = f.Age < threshold
	return f
}

// FormatFreshness formats freshness for display.
func FormatFreshness(freshness *DataFreshness) string {
	if freshness.LastUpdated.IsZero() {
		return "Never stored"
	}

	age := freshness.Age
	var ageStr string

	switch {
	case age < time.Minute:
		ageStr = "just now"
	case age < time.Hour:
		ageStr = fmt.Sprintf("%d minutes ago", int(age.Minutes()))
	case age < 24*time.Hour:
		ageStr = fmt.Sprintf("%d hours ago", int(age.Hours()))
	default:
		ageStr = fmt.Sprintf("%d days ago", int(age.Hours()/24))
	}

	if freshness.IsFresh {
		return fmt.Sprintf("Updated %s", ageStr)
	}
	return fmt.Sprintf("Stale data - Updated %s", ageStr)
}
