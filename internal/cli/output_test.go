package cli

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

func TestTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{writer: &buf}

	table := NewTable(out, "NAME", "VALUE").AlignRight(1)
	table.AddRow("delta", "0.5")
	table.AddRow("gamma", "12.25")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("rendered %d lines, want 4:\n%s", len(lines), buf.String())
	}
	if lines[2] != "delta    0.5" {
		t.Errorf("row = %q, want right-aligned value", lines[2])
	}
	if lines[3] != "gamma  12.25" {
		t.Errorf("row = %q", lines[3])
	}
}

func TestDisplayWidthIgnoresColor(t *testing.T) {
	if got := displayWidth("\x1b[32m₹1,000\x1b[0m"); got != 6 {
		t.Errorf("displayWidth = %d, want 6", got)
	}
}

func TestPnLColor(t *testing.T) {
	plain := &Output{}
	colored := &Output{colorEnabled: true}

	gain := colored.PnL(5, "USD")
	if !strings.HasPrefix(gain, "\x1b[32m") {
		t.Errorf("gain %q is not green", gain)
	}
	if stripANSI(gain) != plain.PnL(5, "USD") {
		t.Errorf("stripped %q, want %q", stripANSI(gain), plain.PnL(5, "USD"))
	}
	if loss := colored.PnL(-5, "USD"); !strings.HasPrefix(loss, "\x1b[31m") {
		t.Errorf("loss %q is not red", loss)
	}
	if strings.Contains(plain.PnL(-5, "USD"), "\x1b") {
		t.Error("plain output must not contain escape codes")
	}
}

func TestNumAndFinite(t *testing.T) {
	if got := num(math.NaN(), 2); got != "-" {
		t.Errorf("num(NaN) = %q", got)
	}
	if got := num(math.Inf(-1), 2); got != "-" {
		t.Errorf("num(-Inf) = %q", got)
	}
	if got := num(1.005, 1); got != "1.0" {
		t.Errorf("num(1.005, 1) = %q", got)
	}
	if finite(math.NaN()) != nil {
		t.Error("finite(NaN) should be nil")
	}
	if v, ok := finite(2.5).(float64); !ok || v != 2.5 {
		t.Errorf("finite(2.5) = %v", finite(2.5))
	}
}
