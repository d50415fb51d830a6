package extraction

import (
	"regexp"
	"strings"

	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/ptbr"
)

var (
	contractedPeak    = re(`Demanda\s+Contratada\s+` + peakLabel + `[^\n]*?` + num + `\s*kW\b`)
	contractedOffPeak = re(`Demanda\s+Contratada\s+` + offPeakLabel + `[^\n]*?` + num + `\s*kW\b`)
	contractedGeneric = re(`Demanda\s+Contratada[^\n]*?` + num + `\s*kW\b`)

	maximumPeak    = re(`Demanda\s+M[áa]x(?:ima|\.)?\s+` + peakLabel + `[^\n]*?` + num + `\s*kW\b`)
	maximumOffPeak = re(`Demanda\s+M[áa]x(?:ima|\.)?\s+` + offPeakLabel + `[^\n]*?` + num + `\s*kW\b`)
	dmcrPeak       = re(`\bDMCR\s+` + peakLabel + `[^\n]*?` + num + `\s*kW\b`)
	dmcrOffPeak    = re(`\bDMCR\s+` + offPeakLabel + `[^\n]*?` + num + `\s*kW\b`)

	billedDemandLine = re(`^\s*(?:TUSD\s*-\s*)?Demanda(?:\s+Ativa)?(?:\s+(` + peakLabel + `|` + offPeakLabel + `))?\s+kW\s+` + num + `\s+` + num + `\s+` + snum)
)

// contractedRule reads split contracted demand; a lone generic value is
// placed according to policy.
func contractedRule(policy ContractedPolicy) Rule {
	return NewRule("contracted_demand", func(text string) (Patch, bool) {
		peak, hasPeak := firstNumber(contractedPeak, text)
		offPeak, hasOffPeak := firstNumber(contractedOffPeak, text)
		if hasPeak || hasOffPeak {
			return func(rec *invoice.Record) {
				d := demand(rec)
				d.ContractedPeakKW = peak
				d.ContractedOffPeakKW = offPeak
			}, true
		}
		generic, ok := firstNumber(contractedGeneric, text)
		if !ok {
			return nil, false
		}
		value := *generic
		return func(rec *invoice.Record) {
			d := demand(rec)
			d.ContractedKW = invoice.Float(value)
			switch policy {
			case GenericAsBoth:
				d.ContractedPeakKW = invoice.Float(value)
				d.ContractedOffPeakKW = invoice.Float(value)
			case GenericOnly:
			default:
				d.ContractedOffPeakKW = invoice.Float(value)
			}
		}, true
	})
}

func periodValues(text string, keep func(string) bool, peak, offPeak *regexp.Regexp) []invoice.PeriodValue {
	var out []invoice.PeriodValue
	if v, ok := numberInLines(peak, text, keep); ok {
		out = append(out, invoice.PeriodValue{Period: invoice.PeriodPeak, KW: *v})
	}
	if v, ok := numberInLines(offPeak, text, keep); ok {
		out = append(out, invoice.PeriodValue{Period: invoice.PeriodOffPeak, KW: *v})
	}
	return out
}

func maximumDemandRule() Rule {
	return NewRule("maximum_demand", func(text string) (Patch, bool) {
		values := periodValues(text, nil, maximumPeak, maximumOffPeak)
		if len(values) == 0 {
			return nil, false
		}
		return func(rec *invoice.Record) { demand(rec).Maxima = values }, true
	})
}

// notLosses drops the "Perdas" lines that reuse the DMCR keyword.
func notLosses(line string) bool {
	return !strings.Contains(ptbr.Fold(line), "PERDAS")
}

func dmcrRule() Rule {
	return NewRule("dmcr", func(text string) (Patch, bool) {
		values := periodValues(text, notLosses, dmcrPeak, dmcrOffPeak)
		if len(values) == 0 {
			return nil, false
		}
		return func(rec *invoice.Record) { demand(rec).DMCR = values }, true
	})
}

// billedDemandRule reads the charged demand lines. An unlabelled line is the
// single green-modality demand and is tagged off-peak.
func billedDemandRule() Rule {
	return NewRule("billed_demand", func(text string) (Patch, bool) {
		var billed []invoice.BilledDemand
		for _, line := range lines(text) {
			m := billedDemandLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			kw := ptbr.ParseNumberPtr(m[2])
			if kw == nil {
				continue
			}
			period := normalizePeriod(m[1])
			if period == "" {
				period = invoice.PeriodOffPeak
			}
			billed = append(billed, invoice.BilledDemand{
				Period:    period,
				KW:        *kw,
				UnitPrice: ptbr.ParseNumberPtr(m[3]),
				Total:     ptbr.ParseNumberPtr(m[4]),
			})
		}
		if len(billed) == 0 {
			return nil, false
		}
		return func(rec *invoice.Record) { demand(rec).Billed = billed }, true
	})
}
