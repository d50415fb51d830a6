package reporting

import (
	"fmt"

	billing "tariff-advisor/internal/billing/domain"
	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/ptbr"
	tariff "tariff-advisor/internal/tariff/domain"
)

// Row labels of the contract comparison.
const (
	LabelCurrent  = "CONTRATO ATUAL"
	LabelProposed = "CONTRATO PROPOSTO"
)

// ComparisonRow is one line of the current vs proposed contract table.
type ComparisonRow struct {
	Label       string  `json:"data"`
	Consumption float64 `json:"consumo"`
	Demand      float64 `json:"demanda"`
	Overage     float64 `json:"ultrapassagem"`
	Flag        float64 `json:"bip"`
	Lighting    float64 `json:"ilum"`
	Reactive    float64 `json:"ere"`
	Taxes       float64 `json:"impostos"`
	Total       float64 `json:"total"`
}

// ComparisonColumns are the table columns in display order.
var ComparisonColumns = []string{"data", "consumo", "demanda", "ultrapassagem", "bip", "ilum", "ere", "impostos", "total"}

// Cells renders the row in column order with pt-BR money formatting.
func (r ComparisonRow) Cells() []string {
	return []string{
		r.Label,
		ptbr.FormatMoney(r.Consumption),
		ptbr.FormatMoney(r.Demand),
		ptbr.FormatMoney(r.Overage),
		ptbr.FormatMoney(r.Flag),
		ptbr.FormatMoney(r.Lighting),
		ptbr.FormatMoney(r.Reactive),
		ptbr.FormatMoney(r.Taxes),
		ptbr.FormatMoney(r.Total),
	}
}

func (r *ComparisonRow) add(o ComparisonRow) {
	r.Consumption += o.Consumption
	r.Demand += o.Demand
	r.Overage += o.Overage
	r.Flag += o.Flag
	r.Lighting += o.Lighting
	r.Reactive += o.Reactive
	r.Taxes += o.Taxes
	r.Total += o.Total
}

func rowFromMonth(m billing.MonthCost) ComparisonRow {
	return ComparisonRow{
		Label:       ptbr.MonthLabel(m.Month),
		Consumption: m.Energy - m.GenerationCredit,
		Demand:      m.Demand,
		Overage:     m.Overage,
		Flag:        m.Surcharge,
		Lighting:    m.Lighting,
		Reactive:    m.Reactive,
		Taxes:       m.Taxes,
		Total:       m.Total,
	}
}

// Comparison is the current contract billed month by month, its total, and
// the proposed contract total over the same invoices.
type Comparison struct {
	Months           []ComparisonRow `json:"meses"`
	Current          ComparisonRow   `json:"atual"`
	Proposed         ComparisonRow   `json:"proposto"`
	CurrentDemandKW  float64         `json:"demanda_atual_kw"`
	ProposedDemandKW float64         `json:"demanda_proposta_kw"`
}

// Rows returns the printable table: months, then the two contract totals.
func (c Comparison) Rows() []ComparisonRow {
	out := append([]ComparisonRow(nil), c.Months...)
	return append(out, c.Current, c.Proposed)
}

// Savings is the current total minus the proposed total.
func (c Comparison) Savings() float64 {
	return c.Current.Total - c.Proposed.Total
}

// SavingsPercent is Savings relative to the current total.
func (c Comparison) SavingsPercent() float64 {
	if c.Current.Total == 0 {
		return 0
	}
	return c.Savings() / c.Current.Total * 100
}

// ContractComparison bills the batch on green rates twice: with each
// invoice's own contracted demand and with the proposed optimum.
func ContractComparison(calc *billing.Calculator, records []invoice.Record, rates tariff.RateSet, ereRate, proposedKW float64) (Comparison, error) {
	if len(records) == 0 {
		return Comparison{}, ErrNoInvoices
	}
	current, err := calc.Breakdown(records, rates, ereRate, nil)
	if err != nil {
		return Comparison{}, fmt.Errorf("reporting: current contract: %w", err)
	}
	proposed, err := calc.Breakdown(records, rates, ereRate, billing.GreenDemand(proposedKW))
	if err != nil {
		return Comparison{}, fmt.Errorf("reporting: proposed contract: %w", err)
	}

	out := Comparison{
		Current:          ComparisonRow{Label: LabelCurrent},
		Proposed:         ComparisonRow{Label: LabelProposed},
		ProposedDemandKW: proposedKW,
	}
	if v, ok := records[0].Demand.Contracted(invoice.PeriodOffPeak); ok {
		out.CurrentDemandKW = v
	}
	for _, m := range current.Months {
		row := rowFromMonth(m)
		out.Months = append(out.Months, row)
		out.Current.add(row)
	}
	for _, m := range proposed.Months {
		out.Proposed.add(rowFromMonth(m))
	}
	return out, nil
}
