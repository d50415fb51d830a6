package reporting

import (
	"fmt"

	billing "tariff-advisor/internal/billing/domain"
	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/ptbr"
	tariff "tariff-advisor/internal/tariff/domain"
)

// LabelProjectionTotal closes the projection table.
const LabelProjectionTotal = "TOTAL APÓS 12 MESES"

// ProjectionRow holds one month billed in each modality.
type ProjectionRow struct {
	Label        string  `json:"data"`
	Green        float64 `json:"verde"`
	Blue         float64 `json:"azul"`
	Conventional float64 `json:"bt"`
}

// Cells renders the row with pt-BR money formatting.
func (r ProjectionRow) Cells() []string {
	return []string{r.Label, ptbr.FormatMoney(r.Green), ptbr.FormatMoney(r.Blue), ptbr.FormatMoney(r.Conventional)}
}

// Projection compares green, blue and conventional billing month by month.
type Projection struct {
	Months []ProjectionRow `json:"meses"`
	Total  ProjectionRow   `json:"total"`
}

// Rows returns the months followed by the total row.
func (p Projection) Rows() []ProjectionRow {
	return append(append([]ProjectionRow(nil), p.Months...), p.Total)
}

// Cheapest returns the modality with the lowest projected total.
func (p Projection) Cheapest() tariff.Modality {
	best, cost := tariff.ModalityGreen, p.Total.Green
	if p.Total.Blue < cost {
		best, cost = tariff.ModalityBlue, p.Total.Blue
	}
	if p.Total.Conventional < cost {
		best = tariff.ModalityConventional
	}
	return best
}

// ProjectionInput carries the optimized contract for each demand modality.
type ProjectionInput struct {
	GreenKW       float64
	BluePeakKW    float64
	BlueOffPeakKW float64
	EREEnabled    bool
}

// BuildProjection bills every invoice under the three modalities, using the
// rate sets of one period. Reactive excess is priced at the set's ERE rate
// when EREEnabled.
func BuildProjection(records []invoice.Record, sets tariff.RateSets, in ProjectionInput, opts ...billing.Option) (Projection, error) {
	if len(records) == 0 {
		return Projection{}, ErrNoInvoices
	}
	var ere float64
	if in.EREEnabled {
		v, err := sets.EREValue()
		if err != nil {
			return Projection{}, err
		}
		ere = v
	}

	columns := []struct {
		profile billing.Profile
		demand  *billing.DemandConfig
		set     func(*ProjectionRow, float64)
	}{
		{billing.Green, billing.GreenDemand(in.GreenKW), func(r *ProjectionRow, v float64) { r.Green = v }},
		{billing.Blue, billing.BlueDemand(in.BluePeakKW, in.BlueOffPeakKW), func(r *ProjectionRow, v float64) { r.Blue = v }},
		{billing.Conventional, nil, func(r *ProjectionRow, v float64) { r.Conventional = v }},
	}

	out := Projection{Months: make([]ProjectionRow, len(records)), Total: ProjectionRow{Label: LabelProjectionTotal}}
	for i, rec := range records {
		out.Months[i].Label = ptbr.MonthLabel(rec.ReferenceMonth())
	}
	for _, col := range columns {
		rates, err := sets.Set(col.profile.Modality)
		if err != nil {
			return Projection{}, err
		}
		calc, err := billing.NewCalculator(col.profile, opts...)
		if err != nil {
			return Projection{}, err
		}
		stmt, err := calc.Breakdown(records, rates, ere, col.demand)
		if err != nil {
			return Projection{}, fmt.Errorf("reporting: %s projection: %w", col.profile.Modality, err)
		}
		if len(stmt.Months) != len(records) {
			return Projection{}, fmt.Errorf("%w: %s", ErrIncompleteTable, col.profile.Modality)
		}
		for i, m := range stmt.Months {
			col.set(&out.Months[i], m.Total)
		}
		col.set(&out.Total, stmt.Total)
	}
	return out, nil
}
