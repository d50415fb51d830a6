package extraction

import (
	"regexp"
	"strings"

	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/ptbr"
)

// num captures one locale-formatted number; snum also accepts a credit "-".
const (
	num  = `(` + ptbr.NumberPattern + `)`
	snum = `(` + ptbr.SignedNumberPattern + `)`
)

// Period label alternatives as printed on EDP invoices.
const (
	peakLabel    = `Ponta`
	offPeakLabel = `(?:Fora\s+(?:de\s+)?Ponta|F\.?\s*Ponta|FP)`
	interLabel   = `Intermedi[áa]ri[oa]`
)

// re compiles a case-insensitive pattern; every rule pattern goes through it.
func re(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + pattern)
}

// firstNumber returns the first capture of pattern parsed as a number.
func firstNumber(pattern *regexp.Regexp, text string) (*float64, bool) {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	v := ptbr.ParseNumberPtr(m[1])
	return v, v != nil
}

// numberInLines is firstNumber restricted to lines that pass keep.
func numberInLines(pattern *regexp.Regexp, text string, keep func(line string) bool) (*float64, bool) {
	for _, line := range lines(text) {
		if keep != nil && !keep(line) {
			continue
		}
		if v, ok := firstNumber(pattern, line); ok {
			return v, true
		}
	}
	return nil, false
}

func lines(text string) []string {
	return strings.Split(text, "\n")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizePeriod maps a printed period label to the record period tag.
func normalizePeriod(label string) string {
	folded := strings.ReplaceAll(ptbr.Fold(label), " ", "")
	switch {
	case folded == "":
		return ""
	case strings.HasPrefix(folded, "INTERMEDIARI"):
		return invoice.PeriodIntermediate
	case strings.HasPrefix(folded, "FORA"), strings.HasPrefix(folded, "F"):
		return invoice.PeriodOffPeak
	case strings.HasPrefix(folded, "PONTA"), folded == "P":
		return invoice.PeriodPeak
	}
	return ""
}

// trailingNumbers splits a line into its text prefix and the run of
// whitespace-separated numeric tokens at its end.
func trailingNumbers(line string) (string, []string) {
	fields := strings.Fields(line)
	end := len(fields)
	start := end
	for start > 0 && signedToken.MatchString(fields[start-1]) {
		start--
	}
	return strings.Join(fields[:start], " "), fields[start:end]
}

var signedToken = regexp.MustCompile(`^` + ptbr.SignedNumberPattern + `$`)

func identification(rec *invoice.Record) *invoice.Identification {
	if rec.Identification == nil {
		rec.Identification = &invoice.Identification{}
	}
	return rec.Identification
}

func demand(rec *invoice.Record) *invoice.Demand {
	if rec.Demand == nil {
		rec.Demand = &invoice.Demand{}
	}
	return rec.Demand
}

func reactive(rec *invoice.Record) *invoice.ReactiveEnergy {
	if rec.ReactiveEnergy == nil {
		rec.ReactiveEnergy = &invoice.ReactiveEnergy{}
	}
	return rec.ReactiveEnergy
}

func readings(rec *invoice.Record) *invoice.Readings {
	if rec.Readings == nil {
		rec.Readings = &invoice.Readings{}
	}
	return rec.Readings
}
