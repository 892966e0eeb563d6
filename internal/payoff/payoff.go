// Package payoff computes the cash payoff of a position in one option
// contract, valued at intrinsic value against the observed premium.
package payoff

import (
	"math"

	"github.com/shopspring/decimal"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

// DefaultContractSize is the number of shares per contract.
const DefaultContractSize = 100

// Intrinsic returns the exercise value at the current stock price:
// max(0, S−K) for a call and max(0, K−S) for a put.
func Intrinsic(s models.MarketSnapshot) (float64, error) {
	switch s.OptionType() {
	case models.OptionTypeCall:
		return math.Max(0, s.CurrentStockPrice()-s.Strike()), nil
	case models.OptionTypePut:
		return math.Max(0, s.Strike()-s.CurrentStockPrice()), nil
	default:
		return 0, apperrors.ErrUndefinedOptionType
	}
}

// Payoff returns the cash P&L of holding position contracts of
// contractSize shares each. A positive position is long:
//
//	(intrinsic − lastPrice) × contractSize × position
//
// A negative position is short and mirrors the long payoff:
//
//	(lastPrice − intrinsic) × contractSize × |position|
//
// so Payoff(s, c, n) + Payoff(s, c, -n) == 0.
func Payoff(s models.MarketSnapshot, contractSize, position int) (float64, error) {
	intrinsic, err := Intrinsic(s)
	if err != nil {
		return 0, err
	}
	if contractSize <= 0 {
		return 0, apperrors.NewValidationError(apperrors.ErrInvalidPosition, "contract_size", contractSize, "must be a positive integer")
	}
	if position == 0 {
		return 0, apperrors.NewValidationError(apperrors.ErrInvalidPosition, "position", position, "must be non-zero")
	}

	value := decimal.NewFromFloat(intrinsic)
	premium := decimal.NewFromFloat(s.LastPrice())
	size := decimal.NewFromInt(int64(contractSize))

	var cash decimal.Decimal
	if position > 0 {
		cash = value.Sub(premium).Mul(size).Mul(decimal.NewFromInt(int64(position)))
	} else {
		cash = premium.Sub(value).Mul(size).Mul(decimal.NewFromInt(int64(position)).Abs())
	}
	return cash.InexactFloat64(), nil
}

// Calculator applies a fixed contract size.
type Calculator struct {
	ContractSize int
}

// NewCalculator returns a calculator for contractSize shares per contract,
// falling back to DefaultContractSize when contractSize is not positive.
func NewCalculator(contractSize int) Calculator {
	if contractSize <= 0 {
		contractSize = DefaultContractSize
	}
	return Calculator{ContractSize: contractSize}
}

// Payoff returns the cash P&L of position contracts.
func (c Calculator) Payoff(s models.MarketSnapshot, position int) (float64, error) {
	return Payoff(s, c.ContractSize, position)
}

// Breakeven returns the underlying price at expiry at which a long
// position neither gains nor loses: K + premium for a call, K − premium for
// a put.
func Breakeven(s models.MarketSnapshot) (float64, error) {
	switch s.OptionType() {
	case models.OptionTypeCall:
		return s.Strike() + s.LastPrice(), nil
	case models.OptionTypePut:
		return s.Strike() - s.LastPrice(), nil
	default:
		return 0, apperrors.ErrUndefinedOptionType
	}
}
