// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strings"
)

var currencySymbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// CurrencySymbol returns the symbol printed before amounts in currency.
// Unknown codes are printed as the code followed by a space.
func CurrencySymbol(currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if sym, ok := currencySymbols[code]; ok {
		return sym
	}
	if code == "" {
		return ""
	}
	return code + " "
}

// FormatMoney formats an amount with two decimals, the currency symbol and
// digit grouping. INR uses the Indian system (lakhs, crores).
func FormatMoney(amount float64, currency string) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Sprintf("%v", amount)
	}

	negative := amount < 0
	if negative {
		amount = -amount
	}

	// Format with 2 decimal places
	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")
	intPart := parts[0]
	decPart := parts[1]

	var grouped string
	if strings.EqualFold(currency, "INR") {
		grouped = formatIndianNumber(intPart)
	} else {
		grouped = formatThousands(intPart)
	}

	result := CurrencySymbol(currency) + grouped + "." + decPart
	if negative && strings.Trim(str, "0.") != "" {
		result = "-" + result
	}
	return result
}

// formatIndianNumber formats an integer string in Indian numbering system.
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	// First group of 3 from right
	result := s[n-3:]
	s = s[:n-3]

	// Then groups of 2
	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}

// formatThousands groups an integer string in threes.
func formatThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	head := n % 3
	var b strings.Builder
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPnL formats a profit or loss, marking gains with "+".
func FormatPnL(pnl float64, currency string) string {
	formatted := FormatMoney(pnl, currency)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatCompact formats large amounts in compact form: lakhs and crores
// for INR, thousands, millions and billions otherwise.
func FormatCompact(amount float64, currency string) string {
	abs := math.Abs(amount)
	sym := CurrencySymbol(currency)

	if strings.EqualFold(currency, "INR") {
		switch {
		case abs >= 1e7:
			return fmt.Sprintf("%s%.2f Cr", sym, amount/1e7)
		case abs >= 1e5:
			return fmt.Sprintf("%s%.2f L", sym, amount/1e5)
		}
		return FormatMoney(amount, currency)
	}

	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%s%.2fB", sym, amount/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%s%.2fM", sym, amount/1e6)
	case abs >= 1e4:
		return fmt.Sprintf("%s%.2fK", sym, amount/1e3)
	}
	return FormatMoney(amount, currency)
}

// FormatVolume formats a traded quantity in compact form.
func FormatVolume(volume float64) string {
	switch abs := math.Abs(volume); {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", volume/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", volume/1e6)
	case abs >= 1e4:
		return fmt.Sprintf("%.1fK", volume/1e3)
	default:
		return fmt.Sprintf("%.0f", volume)
	}
}
