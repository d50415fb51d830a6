package billing

import (
	"strings"

	invoice "tariff-advisor/internal/invoice/domain"
)

// TaxRates are batch-averaged rates as fractions (0.0165 for 1.65%).
type TaxRates struct {
	PIS    float64 `json:"pis"`
	COFINS float64 `json:"cofins"`
	ICMS   float64 `json:"icms"`
}

// AverageTaxRates averages each printed rate over the invoices that carry it.
// A tax missing from every invoice averages to zero.
func AverageTaxRates(records []invoice.Record) TaxRates {
	var acc taxAccumulator
	for _, rec := range records {
		acc.add(rec)
	}
	return acc.rates()
}

// InvoiceTaxRates are the rates printed on a single invoice.
func InvoiceTaxRates(rec invoice.Record) TaxRates {
	var acc taxAccumulator
	acc.add(rec)
	return acc.rates()
}

type taxAccumulator struct {
	sum                TaxRates
	pis, cofins, icms int
}

func (a *taxAccumulator) add(rec invoice.Record) {
	for _, tax := range rec.Taxes {
		if tax.Rate == nil {
			continue
		}
		rate := *tax.Rate / 100
		switch strings.ToUpper(tax.Name) {
		case invoice.TaxPIS:
			a.sum.PIS += rate
			a.pis++
		case invoice.TaxCOFINS:
			a.sum.COFINS += rate
			a.cofins++
		case invoice.TaxICMS:
			a.sum.ICMS += rate
			a.icms++
		}
	}
}

func (a *taxAccumulator) rates() TaxRates {
	return TaxRates{
		PIS:    average(a.sum.PIS, a.pis),
		COFINS: average(a.sum.COFINS, a.cofins),
		ICMS:   average(a.sum.ICMS, a.icms),
	}
}

func average(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Denominator is the gross-up divisor 1 - (pis + cofins [+ icms]).
func (r TaxRates) Denominator(includeICMS bool) float64 {
	d := 1 - (r.PIS + r.COFINS)
	if includeICMS {
		d -= r.ICMS
	}
	return d
}
