package invoice

import (
	"math"
	"strings"

	"tariff-advisor/internal/ptbr"
)

// InstallationID returns the installation number or "" when absent.
func (r Record) InstallationID() string {
	if r.Identification == nil {
		return ""
	}
	return Text(r.Identification.InstallationNumber, "")
}

// ReferenceMonth returns the mm/yyyy reference or "" when absent.
func (r Record) ReferenceMonth() string {
	if r.Identification == nil {
		return ""
	}
	return Text(r.Identification.ReferenceMonth, "")
}

// Label identifies the record in logs and errors.
func (r Record) Label() string {
	inst := r.InstallationID()
	if inst == "" {
		inst = "?"
	}
	month := r.ReferenceMonth()
	if month == "" {
		month = "?"
	}
	return inst + "@" + month
}

func findPeriod(values []PeriodValue, period string) (float64, bool) {
	for _, v := range values {
		if v.Period == period {
			return v.KW, true
		}
	}
	return 0, false
}

// Maximum returns the first maximum-demand reading for the period.
func (d *Demand) Maximum(period string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	return findPeriod(d.Maxima, period)
}

// MeasuredReference returns the first DMCR value for the period.
func (d *Demand) MeasuredReference(period string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	return findPeriod(d.DMCR, period)
}

// BilledKW returns the first billed demand printed for the period.
func (d *Demand) BilledKW(period string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	for _, b := range d.Billed {
		if b.Period == period {
			return b.KW, true
		}
	}
	return 0, false
}

// Contracted returns the contracted demand for a period. The generic
// (non-split) value only backs the off-peak slot.
func (d *Demand) Contracted(period string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	switch period {
	case PeriodPeak:
		if d.ContractedPeakKW != nil {
			return *d.ContractedPeakKW, true
		}
	case PeriodOffPeak:
		if d.ContractedOffPeakKW != nil {
			return *d.ContractedOffPeakKW, true
		}
		if d.ContractedKW != nil {
			return *d.ContractedKW, true
		}
	}
	return 0, false
}

// HasGenerationOffset reports whether the account is net-metered this month.
func (r Record) HasGenerationOffset() bool {
	return r.Consumption.InjectedKWh > 0
}

// MeasuredDemand is the single demand-source policy used by billing.
// Net-metered invoices are billed from the demand printed on the invoice;
// all others from the maximum-demand table. When the preferred source lacks
// the period the other one is used; missing in both yields (0, false).
func (r Record) MeasuredDemand(period string) (float64, bool) {
	primary, secondary := r.Demand.Maximum, r.Demand.BilledKW
	if r.HasGenerationOffset() {
		primary, secondary = r.Demand.BilledKW, r.Demand.Maximum
	}
	if v, ok := primary(period); ok {
		return v, true
	}
	return secondary(period)
}

// Component returns the first extra component whose description contains term.
func (r Record) Component(term string) (Component, bool) {
	for _, c := range r.ExtraComponents {
		if ptbr.ContainsFold(c.Description, term) {
			return c, true
		}
	}
	return Component{}, false
}

// ComponentsTotal sums valor_total of every component matching any term.
func (r Record) ComponentsTotal(terms ...string) float64 {
	var sum float64
	for _, c := range r.matching(terms) {
		sum += Value(c.Total, 0)
	}
	return sum
}

// ComponentsWithheld sums valor_impostos of every component matching any term.
func (r Record) ComponentsWithheld(terms ...string) float64 {
	var sum float64
	for _, c := range r.matching(terms) {
		sum += Value(c.Withheld, 0)
	}
	return sum
}

func (r Record) matching(terms []string) []Component {
	var out []Component
	for _, c := range r.ExtraComponents {
		for _, term := range terms {
			if ptbr.ContainsFold(c.Description, term) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// TaxRate returns the printed percentage for the named tax.
func (r Record) TaxRate(name string) (float64, bool) {
	for _, tax := range r.Taxes {
		if strings.EqualFold(tax.Name, name) && tax.Rate != nil {
			return *tax.Rate, true
		}
	}
	return 0, false
}

// ExcessReactiveKWh returns the billable reactive excess total.
func (r Record) ExcessReactiveKWh() float64 {
	if r.ReactiveEnergy == nil || r.ReactiveEnergy.Excess == nil {
		return 0
	}
	return Value(r.ReactiveEnergy.Excess.TotalKWh, 0)
}

// PrintedTotal returns the invoice total as printed.
func (r Record) PrintedTotal() (float64, bool) {
	if r.Totals == nil || r.Totals.InvoiceTotal == nil {
		return 0, false
	}
	return *r.Totals.InvoiceTotal, true
}

// ConsistentTotal reports whether total_kwh equals peak + off-peak when all are present.
func (c Consumption) ConsistentTotal() bool {
	if c.PeakKWh == nil || c.OffPeakKWh == nil || c.TotalKWh == nil {
		return true
	}
	return math.Abs(*c.TotalKWh-(*c.PeakKWh+*c.OffPeakKWh)) < 1e-6
}
