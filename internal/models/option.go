package models

import (
	"fmt"
	"strings"
)

// OptionType is the closed set of option kinds. OptionTypeUndefined marks a
// contract whose kind has not been resolved; analytics on it must fail.
type OptionType int

const (
	OptionTypeUndefined OptionType = iota
	OptionTypeCall
	OptionTypePut
)

func (t OptionType) String() string {
	switch t {
	case OptionTypeCall:
		return "CALL"
	case OptionTypePut:
		return "PUT"
	default:
		return "UNDEFINED"
	}
}

// MarshalText encodes the option type by name.
func (t OptionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes an option type by name.
func (t *OptionType) UnmarshalText(text []byte) error {
	parsed, err := ParseOptionType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseOptionType parses CALL/PUT in the spellings used by common data
// sources (call, c, ce, put, p, pe). "UNDEFINED" and "" parse to
// OptionTypeUndefined.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C", "CE":
		return OptionTypeCall, nil
	case "PUT", "P", "PE":
		return OptionTypePut, nil
	case "", "UNDEFINED":
		return OptionTypeUndefined, nil
	default:
		return OptionTypeUndefined, fmt.Errorf("unknown option type: %q", s)
	}
}

// OptionGreeks represents option Greeks.
type OptionGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}
