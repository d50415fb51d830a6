package ptbr

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidNumber is returned when a string is not a pt-BR or plain decimal.
var ErrInvalidNumber = errors.New("ptbr: invalid number")

// NumberPattern matches numbers printed as 1.234.567,89 | 1234567,89 | 1234567 | 0.59.
// The word boundary keeps "0.59312" from being cut at "0.593".
const NumberPattern = `\d{1,3}(?:\.\d{3})+(?:,\d+)?\b|\d+[.,]\d+|\d+`

// SignedNumberPattern also accepts a trailing credit marker ("123,45-").
const SignedNumberPattern = `(?:` + NumberPattern + `)-?`

// ParseNumber converts a locale formatted number to float64.
//
// A comma is always the decimal separator and dots are thousands separators.
// Without a comma, a single dot followed by exactly three digits on a
// non-zero integer part is read as a thousands separator ("1.234" = 1234);
// any other single dot is a decimal point ("0.59"). A trailing or leading
// "-" marks a negative value (credits are printed as "123-").
func ParseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrInvalidNumber
	}
	negative := false
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "-"))
	}
	if strings.HasPrefix(s, "-") {
		if negative {
			return 0, ErrInvalidNumber
		}
		negative = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	if s == "" {
		return 0, ErrInvalidNumber
	}

	switch {
	case strings.Contains(s, ","):
		if strings.Count(s, ",") > 1 {
			return 0, ErrInvalidNumber
		}
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	case strings.Count(s, ".") == 1:
		intPart, frac, _ := strings.Cut(s, ".")
		if len(frac) == 3 && len(intPart) <= 3 && strings.TrimLeft(intPart, "0") != "" {
			s = intPart + frac
		}
	}

	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return 0, ErrInvalidNumber
		}
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidNumber
	}
	if negative {
		value = -value
	}
	return value, nil
}

// ParseNumberPtr is ParseNumber returning nil for anything unparsable.
func ParseNumberPtr(raw string) *float64 {
	value, err := ParseNumber(raw)
	if err != nil {
		return nil
	}
	return &value
}

// Round rounds half away from zero to the given number of places.
func Round(value float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(value).Round(places).Float64()
	return f
}
