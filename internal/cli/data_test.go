package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/store"
)

func TestLastCommand(t *testing.T) {
	mem := newMemory()
	mem.SetLastPrice("AAPL", 189.5)
	mem.SetLastPrice("MSFT", 420.25)

	out, err := run(t, testApp(mem), "last", "aapl", "MSFT", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var prices []struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	if err := json.Unmarshal([]byte(out), &prices); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(prices) != 2 || prices[0].Symbol != "AAPL" || prices[0].Price != 189.5 || prices[1].Price != 420.25 {
		t.Errorf("prices = %+v", prices)
	}
}

func TestLastCommandUnknownSymbol(t *testing.T) {
	_, err := run(t, testApp(newMemory()), "last", "NOPE")
	if !apperrors.Is(err, apperrors.ErrSymbolNotFound) {
		t.Errorf("error = %v, want ErrSymbolNotFound", err)
	}
	if !strings.Contains(err.Error(), "last price of NOPE") {
		t.Errorf("error %q lacks command context", err)
	}
}

func TestHistoryCommandCSV(t *testing.T) {
	mem := newMemory()
	mem.SetHistory("ABC", dailyHistory("ABC", zigzag(40, 100, 101)))

	out, err := run(t, testApp(mem), "history", "ABC", "--period", "90d", "-n", "3", "--csv")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d csv lines, want header + 3:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "time,symbol,currency,open,close") {
		t.Errorf("csv header = %q", lines[0])
	}
	if !strings.Contains(lines[3], ",101,") {
		t.Errorf("last row = %q, want close 101", lines[3])
	}
}

func TestHistoryCommandTable(t *testing.T) {
	mem := newMemory()
	mem.SetHistory("ABC", dailyHistory("ABC", zigzag(10, 100, 101)))

	out, err := run(t, testApp(mem), "history", "ABC", "--period", "30d")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"TIME", "CLOSE", "10 rows"} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryCommandRejectsBadPeriod(t *testing.T) {
	_, err := run(t, testApp(newMemory()), "history", "ABC", "--period", "soon")
	if !apperrors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestChainCommandWithGreeks(t *testing.T) {
	mem := newMemory()
	mem.AddOptionChain(chainFixture(t))

	out := runJSON(t, testApp(mem), "chain", "XYZ", "--greeks")
	if out["symbol"] != "XYZ" {
		t.Errorf("symbol = %v", out["symbol"])
	}
	calls := out["calls"].([]interface{})
	puts := out["puts"].([]interface{})
	if len(calls) != 2 || len(puts) != 2 {
		t.Fatalf("got %d calls and %d puts, want 2 each", len(calls), len(puts))
	}

	first := calls[0].(map[string]interface{})
	greeks, ok := first["greeks"].(map[string]interface{})
	if !ok {
		t.Fatalf("call row has no greeks: %v", first)
	}
	if delta := greeks["delta"].(float64); delta <= 0.5 || delta >= 1 {
		t.Errorf("in-the-money call delta = %v, want in (0.5, 1)", delta)
	}
	putGreeks := puts[1].(map[string]interface{})["greeks"].(map[string]interface{})
	if delta := putGreeks["delta"].(float64); delta >= -0.5 || delta <= -1 {
		t.Errorf("in-the-money put delta = %v, want in (-1, -0.5)", delta)
	}
}

func TestChainCommandTable(t *testing.T) {
	mem := newMemory()
	mem.AddOptionChain(chainFixture(t))

	out, err := run(t, testApp(mem), "chain", "XYZ", "--expiry", "next")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"XYZ option chain", "CALLS", "PUTS", "105.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("chain output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "DELTA") {
		t.Error("Greeks columns shown without --greeks")
	}
}

func TestFreshnessCommand(t *testing.T) {
	app := testApp(newMemory())
	_, err := run(t, app, "freshness", "AAPL")
	if !apperrors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("without a store: error = %v, want ErrDataNotFound", err)
	}

	st, err := store.NewSQLiteStoreWithOptions(filepath.Join(t.TempDir(), "data.db"), store.Options{
		Clock: func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if err := st.SaveLastPrice(context.Background(), "AAPL", 190, testNow.Add(-5*time.Minute)); err != nil {
		t.Fatal(err)
	}
	app.Store = st

	out, err := run(t, app, "freshness", "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Updated 5 minutes ago") {
		t.Errorf("last price freshness missing:\n%s", out)
	}
	if !strings.Contains(out, "Never stored") {
		t.Errorf("history freshness should be never stored:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out := runJSON(t, testApp(newMemory()), "version")
	if out["version"] != Version {
		t.Errorf("version = %v, want %s", out["version"], Version)
	}
}
