package ptbr

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney renders value with two decimals, "." for thousands and "," for decimals.
func FormatMoney(value float64) string {
	return formatFixed(value, 2)
}

// FormatReal prefixes FormatMoney with the currency symbol.
func FormatReal(value float64) string {
	return "R$ " + FormatMoney(value)
}

// FormatKW renders a demand rounded to whole kilowatts.
func FormatKW(value float64) string {
	return fmt.Sprintf("%d kW", int64(math.Round(value)))
}

// FormatPercent renders a percentage with one decimal ("12,3").
func FormatPercent(value float64) string {
	return formatFixed(value, 1)
}

func formatFixed(value float64, places int32) string {
	fixed := decimal.NewFromFloat(value).StringFixed(places)
	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	if negative && strings.Trim(intPart+frac, "0") != "" {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if places > 0 {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return b.String()
}

// ParseMoney reverses FormatMoney / FormatReal.
func ParseMoney(raw string) (float64, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "R$"))
	return ParseNumber(s)
}
