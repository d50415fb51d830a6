package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tariff-advisor/internal/ptbr"
	tariff "tariff-advisor/internal/tariff/domain"
)

// RowSource loads every row of the rate table.
type RowSource interface {
	LoadRows(ctx context.Context) ([]tariff.Row, error)
}

// Table is the in-memory rate table. It is read-only after construction.
type Table struct {
	rows []tariff.Row
}

// NewTable copies rows into a table.
func NewTable(rows []tariff.Row) *Table {
	return &Table{rows: append([]tariff.Row(nil), rows...)}
}

// LoadTable reads all rows from source once.
func LoadTable(ctx context.Context, source RowSource) (*Table, error) {
	if source == nil {
		return nil, errors.New("tariff table: nil source")
	}
	rows, err := source.LoadRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("tariff table: load: %w", err)
	}
	return NewTable(rows), nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Filter returns the applied-tariff rows of the distributor whose validity
// window overlaps the query month.
func (t *Table) Filter(q tariff.Query) ([]tariff.Row, error) {
	start, err := ptbr.ParsePeriod(q.Period)
	if err != nil {
		return nil, err
	}
	distributor := ptbr.Fold(strings.TrimSpace(q.Distributor))
	if distributor == "" {
		return nil, tariff.ErrEmptyDistributor
	}
	lastDay := start.AddDate(0, 1, -1)

	var out []tariff.Row
	for _, row := range t.rows {
		if !strings.Contains(ptbr.Fold(row.Distributor), distributor) {
			continue
		}
		if row.ValidFrom.After(lastDay) || row.ValidTo.Before(start) {
			continue
		}
		if !sameText(row.Basis, tariff.BasisApplied) {
			continue
		}
		if !optionalMatch(row.Modality, q.Modality) || !optionalMatch(row.Subgroup, q.Subgroup) ||
			!optionalMatch(row.Class, q.Class) || !optionalMatch(row.Detail, q.Detail) {
			continue
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s %s", tariff.ErrNoRates, q.Distributor, q.Period)
	}
	return out, nil
}

// Lookup filters, compacts and converts rows into rate sets for the query.
func (t *Table) Lookup(q tariff.Query) (tariff.RateSets, error) {
	rows, err := t.Filter(q)
	if err != nil {
		return tariff.RateSets{}, err
	}
	sets := ConvertToKWh(Compact(rows))
	out := tariff.RateSets{
		Period:      strings.ToUpper(strings.TrimSpace(q.Period)),
		Distributor: q.Distributor,
		Sets:        sets,
	}
	if ere, ok := ereRate(sets); ok {
		out.ERE = &ere
	}
	return out, nil
}

func sameText(a, b string) bool {
	return ptbr.Fold(strings.TrimSpace(a)) == ptbr.Fold(strings.TrimSpace(b))
}

func optionalMatch(value, want string) bool {
	return strings.TrimSpace(want) == "" || sameText(value, want)
}

// Compact folds rows into one rate set per modality. Rows that map to the
// same key overwrite earlier ones.
func Compact(rows []tariff.Row) map[tariff.Modality]tariff.RateSet {
	rates := map[tariff.Modality]map[tariff.RateKey]float64{}
	for _, row := range rows {
		modality := tariff.NormalizeModality(row.Modality)
		if modality == "" {
			modality = "desconhecida"
		}
		r, ok := rates[modality]
		if !ok {
			r = map[tariff.RateKey]float64{}
			rates[modality] = r
		}
		compactRow(modality, row, r)
	}
	out := make(map[tariff.Modality]tariff.RateSet, len(rates))
	for modality, r := range rates {
		out[modality] = tariff.NewRateSet(modality, r)
	}
	return out
}

const (
	postPeak         = "PONTA"
	postOffPeak      = "FORA PONTA"
	postIntermediate = "INTERMEDIARIO"
)

func compactRow(modality tariff.Modality, row tariff.Row, r map[tariff.RateKey]float64) {
	post := ptbr.Fold(strings.TrimSpace(row.Post))
	energy := sameText(row.Unit, tariff.UnitEnergy)
	demand := sameText(row.Unit, tariff.UnitDemand)

	setEnergy := func(te, tusd tariff.RateKey) {
		r[te] = row.TE
		r[tusd] = row.TUSD
	}

	switch {
	case modality == tariff.ModalityBlue:
		switch {
		case energy && post == postOffPeak:
			setEnergy(tariff.TEOffPeak, tariff.TUSDOffPeak)
		case energy && post == postPeak:
			setEnergy(tariff.TEPeak, tariff.TUSDPeak)
		case demand && post == postOffPeak:
			r[tariff.DemandOffPeak] = row.TUSD
		case demand && post == postPeak:
			r[tariff.DemandPeak] = row.TUSD
		}
	case modality == tariff.ModalityGreen:
		switch {
		case energy && post == postOffPeak:
			setEnergy(tariff.TEOffPeak, tariff.TUSDOffPeak)
		case energy && post == postPeak:
			setEnergy(tariff.TEPeak, tariff.TUSDPeak)
		case demand:
			r[tariff.DemandOffPeak] = row.TUSD
		}
	case modality == tariff.ModalityWhite:
		switch {
		case energy && post == postOffPeak:
			setEnergy(tariff.TEOffPeak, tariff.TUSDOffPeak)
		case energy && post == postIntermediate:
			setEnergy(tariff.TEIntermediate, tariff.TUSDIntermediate)
		case energy && post == postPeak:
			setEnergy(tariff.TEPeak, tariff.TUSDPeak)
		}
	case strings.HasPrefix(string(modality), string(tariff.ModalityConventional)):
		if energy {
			setEnergy(tariff.TEOffPeak, tariff.TUSDOffPeak)
		}
	}
}

// ConvertToKWh converts energy rates from R$/MWh to R$/kWh (6 decimals).
// Demand rates are left untouched.
func ConvertToKWh(sets map[tariff.Modality]tariff.RateSet) map[tariff.Modality]tariff.RateSet {
	out := make(map[tariff.Modality]tariff.RateSet, len(sets))
	for modality, set := range sets {
		rates := make(map[tariff.RateKey]float64, len(set.Rates))
		for key, v := range set.Rates {
			if key.IsEnergy() {
				v = ptbr.Round(v/1000, 6)
			}
			rates[key] = v
		}
		out[modality] = tariff.NewRateSet(modality, rates)
	}
	return out
}

// ereRate reads TE off-peak of the prepaid conventional set, falling back to
// the plain conventional set.
func ereRate(sets map[tariff.Modality]tariff.RateSet) (float64, bool) {
	for _, modality := range []tariff.Modality{tariff.ModalityPrepaid, tariff.ModalityConventional} {
		for m, set := range sets {
			if !m.Same(modality) {
				continue
			}
			if v, ok := set.Rates[tariff.TEOffPeak]; ok {
				return v, true
			}
		}
	}
	return 0, false
}
