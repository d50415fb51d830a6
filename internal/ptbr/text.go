package ptbr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidPeriod is returned for malformed MMM-YYYY / mm/yyyy strings.
var ErrInvalidPeriod = errors.New("ptbr: invalid period")

var monthAbbrev = [...]string{"JAN", "FEV", "MAR", "ABR", "MAI", "JUN", "JUL", "AGO", "SET", "OUT", "NOV", "DEZ"}

var monthNames = map[string]time.Month{
	"JANEIRO":   time.January,
	"FEVEREIRO": time.February,
	"MARCO":     time.March,
	"ABRIL":     time.April,
	"MAIO":      time.May,
	"JUNHO":     time.June,
	"JULHO":     time.July,
	"AGOSTO":    time.August,
	"SETEMBRO":  time.September,
	"OUTUBRO":   time.October,
	"NOVEMBRO":  time.November,
	"DEZEMBRO":  time.December,
}

// Fold strips diacritics and upper-cases s ("Iluminação" -> "ILUMINACAO").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(out)
}

// ContainsFold reports whether needle occurs in haystack ignoring case and accents.
func ContainsFold(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}

// MonthFromName maps a full Portuguese month name (accents optional).
func MonthFromName(name string) (time.Month, bool) {
	m, ok := monthNames[Fold(strings.TrimSpace(name))]
	return m, ok
}

// MonthAbbrev returns the three-letter Portuguese abbreviation ("JAN".."DEZ").
func MonthAbbrev(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthAbbrev[m-1]
}

// ParsePeriod parses "JAN-2025" into the first instant of that month (UTC).
func ParsePeriod(period string) (time.Time, error) {
	abbr, yearRaw, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(period)), "-")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	year, err := strconv.Atoi(yearRaw)
	if err != nil || year < 1900 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	for i, candidate := range monthAbbrev {
		if candidate == Fold(abbr) {
			return time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
}

// FormatPeriod renders t as "JAN-2025".
func FormatPeriod(t time.Time) string {
	return fmt.Sprintf("%s-%04d", MonthAbbrev(t.Month()), t.Year())
}

// ParseReferenceMonth parses the invoice "mm/yyyy" reference month.
func ParseReferenceMonth(ref string) (time.Time, error) {
	t, err := time.Parse("01/2006", strings.TrimSpace(ref))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, ref)
	}
	return t.UTC(), nil
}

// MonthLabel renders "mm/yyyy" as the short table label "jul/23".
// Unparsable references are returned unchanged.
func MonthLabel(ref string) string {
	t, err := ParseReferenceMonth(ref)
	if err != nil {
		return ref
	}
	return fmt.Sprintf("%s/%02d", strings.ToLower(MonthAbbrev(t.Month())), t.Year()%100)
}
