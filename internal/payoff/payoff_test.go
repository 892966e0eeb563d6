package payoff

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
)

func snapshot(t testing.TB, typ models.OptionType, spot, strike, premium float64) models.MarketSnapshot {
	s, err := models.NewMarketSnapshot(models.SnapshotParams{
		OptionType:        typ,
		Strike:            strike,
		CurrentStockPrice: spot,
		ImpliedVolatility: 0.2,
		LastPrice:         premium,
		OptionExpiry:      time.Date(2024, 6, 21, 20, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewMarketSnapshot: %v", err)
	}
	return s
}

func TestIntrinsic(t *testing.T) {
	tests := []struct {
		name string
		typ  models.OptionType
		spot float64
		want float64
	}{
		{"ITM call", models.OptionTypeCall, 110, 10},
		{"OTM call", models.OptionTypeCall, 90, 0},
		{"ITM put", models.OptionTypePut, 90, 10},
		{"OTM put", models.OptionTypePut, 110, 0},
		{"ATM put", models.OptionTypePut, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Intrinsic(snapshot(t, tt.typ, tt.spot, 100, 2))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPayoff(t *testing.T) {
	tests := []struct {
		name     string
		typ      models.OptionType
		spot     float64
		premium  float64
		position int
		want     float64
	}{
		{"long ITM call", models.OptionTypeCall, 110, 4, 1, 600},
		{"long OTM call", models.OptionTypeCall, 95, 4, 2, -800},
		{"short ITM call", models.OptionTypeCall, 110, 4, -1, -600},
		{"short OTM call", models.OptionTypeCall, 95, 4, -3, 1200},
		{"long ITM put", models.OptionTypePut, 90, 2.5, 1, 750},
		{"short ITM put", models.OptionTypePut, 90, 2.5, -2, -1500},
		{"short OTM put", models.OptionTypePut, 105, 2.5, -1, 250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Payoff(snapshot(t, tt.typ, tt.spot, 100, tt.premium), DefaultContractSize, tt.position)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPayoff_Preconditions(t *testing.T) {
	undefined := snapshot(t, models.OptionTypeUndefined, 100, 100, 1)
	if _, err := Payoff(undefined, 100, 1); !apperrors.Is(err, apperrors.ErrUndefinedOptionType) {
		t.Errorf("expected ErrUndefinedOptionType, got %v", err)
	}
	if _, err := Intrinsic(undefined); !apperrors.Is(err, apperrors.ErrUndefinedOptionType) {
		t.Errorf("expected ErrUndefinedOptionType from Intrinsic, got %v", err)
	}
	if _, err := Breakeven(undefined); !apperrors.Is(err, apperrors.ErrUndefinedOptionType) {
		t.Errorf("expected ErrUndefinedOptionType from Breakeven, got %v", err)
	}

	call := snapshot(t, models.OptionTypeCall, 100, 100, 1)
	for _, size := range []int{0, -100} {
		if _, err := Payoff(call, size, 1); !apperrors.Is(err, apperrors.ErrInvalidPosition) {
			t.Errorf("contract size %d: expected ErrInvalidPosition, got %v", size, err)
		}
	}
	if _, err := Payoff(call, 100, 0); !apperrors.Is(err, apperrors.ErrInvalidPosition) {
		t.Errorf("zero position: expected ErrInvalidPosition, got %v", err)
	}
}

func TestCalculator_DefaultsContractSize(t *testing.T) {
	c := NewCalculator(0)
	if c.ContractSize != DefaultContractSize {
		t.Fatalf("ContractSize = %d, want %d", c.ContractSize, DefaultContractSize)
	}
	got, err := c.Payoff(snapshot(t, models.OptionTypeCall, 103, 100, 1), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 200 {
		t.Errorf("got %v, want 200", got)
	}
}

func TestBreakeven(t *testing.T) {
	call, _ := Breakeven(snapshot(t, models.OptionTypeCall, 100, 100, 3))
	put, _ := Breakeven(snapshot(t, models.OptionTypePut, 100, 100, 3))
	if call != 103 || put != 97 {
		t.Errorf("breakevens = %v/%v, want 103/97", call, put)
	}
}

// Property: a long position and the negated short position of the same
// size have payoffs summing to zero.
func TestProperty_LongShortMirror(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("long(n) + short(-n) == 0", prop.ForAll(
		func(isCall bool, spot, strike, premium float64, size, n int) bool {
			typ := models.OptionTypePut
			if isCall {
				typ = models.OptionTypeCall
			}
			s, err := models.NewMarketSnapshot(models.SnapshotParams{
				OptionType:        typ,
				Strike:            strike,
				CurrentStockPrice: spot,
				LastPrice:         premium,
				OptionExpiry:      time.Date(2024, 6, 21, 20, 0, 0, 0, time.UTC),
			})
			if err != nil {
				return true
			}
			long, err1 := Payoff(s, size, n)
			short, err2 := Payoff(s, size, -n)
			if err1 != nil || err2 != nil {
				return false
			}
			return long+short == 0
		},
		gen.Bool(),
		gen.Float64Range(1, 1000),
		gen.Float64Range(1, 1000),
		gen.Float64Range(0, 100),
		gen.IntRange(1, 1000),
		gen.IntRange(1, 500),
	))

	properties.TestingRun(t)
}
