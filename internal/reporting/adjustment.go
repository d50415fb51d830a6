package reporting

import (
	"fmt"

	billing "tariff-advisor/internal/billing/domain"
	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/ptbr"
	tariff "tariff-advisor/internal/tariff/domain"
)

// DefaultAdjustmentDemandKW is the contracted demand used to restate
// invoices at updated rates.
const DefaultAdjustmentDemandKW = 570

// AdjustmentRow pairs the printed total with the total restated at updated rates.
type AdjustmentRow struct {
	Label    string  `json:"mes"`
	Realized float64 `json:"realizado"`
	Updated  float64 `json:"atualizado"`
}

// Cells renders the row with pt-BR money formatting.
func (r AdjustmentRow) Cells() []string {
	return []string{r.Label, ptbr.FormatMoney(r.Realized), ptbr.FormatMoney(r.Updated)}
}

// Adjustment is the realized vs updated-rate table.
type Adjustment struct {
	Months       []AdjustmentRow `json:"meses"`
	Total        AdjustmentRow   `json:"total"`
	DeltaPercent float64         `json:"variacao_percentual"`
}

// Rows returns the months followed by the total row.
func (a Adjustment) Rows() []AdjustmentRow {
	return append(append([]AdjustmentRow(nil), a.Months...), a.Total)
}

// BuildAdjustment restates each invoice on updated green rates at
// baseDemandKW and compares it with the printed total. Invoices without a
// printed total count as zero realized.
func BuildAdjustment(calc *billing.Calculator, records []invoice.Record, updated tariff.RateSet, ereRate, baseDemandKW float64) (Adjustment, error) {
	if len(records) == 0 {
		return Adjustment{}, ErrNoInvoices
	}
	stmt, err := calc.Breakdown(records, updated, ereRate, billing.GreenDemand(baseDemandKW))
	if err != nil {
		return Adjustment{}, fmt.Errorf("reporting: adjustment: %w", err)
	}
	if len(stmt.Months) != len(records) {
		return Adjustment{}, fmt.Errorf("%w: adjustment", ErrIncompleteTable)
	}
	out := Adjustment{Total: AdjustmentRow{Label: "TOTAL"}}
	for i, rec := range records {
		realized, _ := rec.PrintedTotal()
		row := AdjustmentRow{
			Label:    ptbr.MonthLabel(rec.ReferenceMonth()),
			Realized: realized,
			Updated:  stmt.Months[i].Total,
		}
		out.Months = append(out.Months, row)
		out.Total.Realized += row.Realized
		out.Total.Updated += row.Updated
	}
	if out.Total.Realized != 0 {
		out.DeltaPercent = (out.Total.Updated - out.Total.Realized) / out.Total.Realized * 100
	}
	return out, nil
}
