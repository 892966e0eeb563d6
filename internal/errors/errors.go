// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrUndefinedOptionType = errors.New("option type is undefined")
	ErrInvalidSnapshot     = errors.New("invalid market snapshot")
	ErrInvalidPosition     = errors.New("invalid position")
	ErrProviderFailure     = errors.New("data provider failure")
	ErrNoProviders         = errors.New("no data providers configured")
	ErrEmptyResult         = errors.New("provider returned an empty result")
	ErrUnsupported         = errors.New("operation not supported by provider")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrDataNotFound        = errors.New("data not found")
	ErrCircuitOpen         = errors.New("circuit breaker is open")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// ProviderError represents a failure at the data provider boundary.
// It matches ErrProviderFailure with errors.Is and unwraps to the cause.
type ProviderError struct {
	Provider  string
	Operation string
	Symbol    string
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error [%s] %s %s: %v", e.Provider, e.Operation, e.Symbol, e.Err)
	}
	return fmt.Sprintf("provider error [%s] %s %s", e.Provider, e.Operation, e.Symbol)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is reports ErrProviderFailure for every ProviderError.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderFailure
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, operation, symbol string, err error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		Symbol:    symbol,
		Err:       err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Kind    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap returns the sentinel kind, e.g. ErrInvalidSnapshot.
func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// NewValidationError creates a new ValidationError.
func NewValidationError(kind error, field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Kind:    kind,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
