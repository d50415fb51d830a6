package extraction

import (
	"regexp"

	invoice "tariff-advisor/internal/invoice/domain"
)

var (
	peakConsumption     = re(`Consumo\s+Ativo\s+` + peakLabel + `\s+` + num)
	offPeakConsumption  = re(`Consumo\s+Ativo\s+` + offPeakLabel + `\s+` + num)
	interConsumption    = re(`Consumo\s+Ativo\s+` + interLabel + `\s+` + num)
	injectedConsumption = re(`Energia\s+(?:Ativa\s+)?Injetada[^\d\n]*?` + num)

	peakReactive    = re(`Energia\s+Reativa\s+` + peakLabel + `[^\n]*?` + num + `\s*kV(?:A?r)?h\b`)
	offPeakReactive = re(`Energia\s+Reativa\s+` + offPeakLabel + `[^\n]*?` + num + `\s*kV(?:A?r)?h\b`)
	peakExcess      = re(`\bERE\s+` + peakLabel + `[^\n]*?` + num + `\s*kWh\b`)
	offPeakExcess   = re(`\bERE\s+` + offPeakLabel + `[^\n]*?` + num + `\s*kWh\b`)
)

// numberRule builds a rule around one numeric capture.
func numberRule(name string, pattern *regexp.Regexp, set func(rec *invoice.Record, v float64)) Rule {
	return NewRule(name, func(text string) (Patch, bool) {
		v, ok := firstNumber(pattern, text)
		if !ok {
			return nil, false
		}
		value := *v
		return func(rec *invoice.Record) { set(rec, value) }, true
	})
}

func consumptionRules() []Rule {
	return []Rule{
		numberRule("consumption_peak", peakConsumption, func(rec *invoice.Record, v float64) {
			rec.Consumption.PeakKWh = invoice.Float(v)
		}),
		numberRule("consumption_off_peak", offPeakConsumption, func(rec *invoice.Record, v float64) {
			rec.Consumption.OffPeakKWh = invoice.Float(v)
		}),
		numberRule("consumption_intermediate", interConsumption, func(rec *invoice.Record, v float64) {
			rec.Consumption.IntermediateKWh = invoice.Float(v)
		}),
		numberRule("energy_injected", injectedConsumption, func(rec *invoice.Record, v float64) {
			rec.Consumption.InjectedKWh = v
		}),
	}
}

// reactiveRule captures reactive readings and their billable excess.
func reactiveRule() Rule {
	return NewRule("reactive_energy", func(text string) (Patch, bool) {
		peak, hasPeak := firstNumber(peakReactive, text)
		offPeak, hasOffPeak := firstNumber(offPeakReactive, text)
		excessPeak, hasExcessPeak := firstNumber(peakExcess, text)
		excessOffPeak, hasExcessOffPeak := firstNumber(offPeakExcess, text)
		if !hasPeak && !hasOffPeak && !hasExcessPeak && !hasExcessOffPeak {
			return nil, false
		}
		return func(rec *invoice.Record) {
			r := reactive(rec)
			r.PeakKVArh = peak
			r.OffPeakKVArh = offPeak
			if hasPeak && hasOffPeak {
				r.TotalKVArh = invoice.Float(*peak + *offPeak)
			}
			if hasExcessPeak || hasExcessOffPeak {
				total := invoice.Value(excessPeak, 0) + invoice.Value(excessOffPeak, 0)
				r.Excess = &invoice.ReactiveExcess{
					PeakKWh:    excessPeak,
					OffPeakKWh: excessOffPeak,
					TotalKWh:   invoice.Float(total),
				}
			}
		}, true
	})
}
