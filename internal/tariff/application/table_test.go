package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"tariff-advisor/internal/ptbr"
	tariff "tariff-advisor/internal/tariff/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func row(modality, post, unit string, te, tusd float64) tariff.Row {
	return tariff.Row{
		Distributor: "EDP ES",
		ValidFrom:   day(2024, time.August, 7),
		ValidTo:     day(2025, time.August, 6),
		Basis:       "Tarifa de Aplicação",
		Modality:    modality,
		Subgroup:    "A4",
		Class:       "Não se aplica",
		Detail:      "Não se aplica",
		Post:        post,
		Unit:        unit,
		TE:          te,
		TUSD:        tusd,
	}
}

func sampleRows() []tariff.Row {
	rows := []tariff.Row{
		row("Verde", "Ponta", "R$/MWh", 480.12, 1850.5),
		row("Verde", "Fora ponta", "R$/MWh", 300.4, 120.25),
		row("Verde", "Não se aplica", "R$/kW", 0, 25.31),
		row("Azul", "Ponta", "R$/MWh", 480.12, 130.1),
		row("Azul", "Fora ponta", "R$/MWh", 300.4, 120.25),
		row("Azul", "Ponta", "R$/kW", 0, 70.2),
		row("Azul", "Fora ponta", "R$/kW", 0, 25.31),
		row("Branca", "Intermediário", "R$/MWh", 350, 400),
		row("Convencional pré-pagamento", "Não se aplica", "R$/MWh", 310.5, 200),
		row("Convencional", "Não se aplica", "R$/MWh", 320, 210),
	}
	stale := row("Verde", "Ponta", "R$/MWh", 1, 1)
	stale.ValidFrom, stale.ValidTo = day(2023, time.August, 7), day(2024, time.August, 6)
	other := row("Verde", "Ponta", "R$/MWh", 2, 2)
	other.Distributor = "CEMIG-D"
	base := row("Verde", "Ponta", "R$/MWh", 3, 3)
	base.Basis = "Base Econômica"
	return append(rows, stale, other, base)
}

func TestLookupCompactsAndConverts(t *testing.T) {
	table := NewTable(sampleRows())
	sets, err := table.Lookup(tariff.Query{Period: "dez-2024", Distributor: "edp"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	green, err := sets.Set(tariff.ModalityGreen)
	if err != nil {
		t.Fatalf("green: %v", err)
	}
	if v, _ := green.Rate(tariff.TEPeak); v != 0.48012 {
		t.Fatalf("expected TE peak 0.48012, got %v", v)
	}
	if v, _ := green.Rate(tariff.TUSDPeak); v != 1.8505 {
		t.Fatalf("expected TUSD peak 1.8505, got %v", v)
	}
	if v, _ := green.Rate(tariff.DemandOffPeak); v != 25.31 {
		t.Fatalf("expected demand rate untouched, got %v", v)
	}
	if green.Has(tariff.DemandPeak) {
		t.Fatalf("green has no peak demand rate")
	}

	blue, err := sets.Set(tariff.ModalityBlue)
	if err != nil {
		t.Fatalf("blue: %v", err)
	}
	if v, _ := blue.Rate(tariff.DemandPeak); v != 70.2 {
		t.Fatalf("expected blue peak demand 70.2, got %v", v)
	}

	white, err := sets.Set(tariff.ModalityWhite)
	if err != nil {
		t.Fatalf("white: %v", err)
	}
	if v, _ := white.Rate(tariff.TEIntermediate); v != 0.35 {
		t.Fatalf("expected intermediate TE 0.35, got %v", v)
	}

	ere, err := sets.EREValue()
	if err != nil || ere != 0.3105 {
		t.Fatalf("expected prepaid ERE 0.3105, got %v %v", ere, err)
	}
	if sets.Period != "DEZ-2024" {
		t.Fatalf("unexpected period %q", sets.Period)
	}
}

func TestLookupEREFallsBackToConventional(t *testing.T) {
	var rows []tariff.Row
	for _, r := range sampleRows() {
		if r.Modality != "Convencional pré-pagamento" {
			rows = append(rows, r)
		}
	}
	sets, err := NewTable(rows).Lookup(tariff.Query{Period: "JAN-2025", Distributor: "EDP"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ere, err := sets.EREValue(); err != nil || ere != 0.32 {
		t.Fatalf("expected conventional ERE 0.32, got %v %v", ere, err)
	}
}

func TestFilterOptionalFields(t *testing.T) {
	table := NewTable(sampleRows())
	rows, err := table.Filter(tariff.Query{Period: "DEZ-2024", Distributor: "EDP", Modality: "VERDE", Detail: "nao se aplica"})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 green rows, got %d", len(rows))
	}
	if _, err := table.Filter(tariff.Query{Period: "DEZ-2022", Distributor: "EDP"}); !errors.Is(err, tariff.ErrNoRates) {
		t.Fatalf("expected no rates, got %v", err)
	}
	if _, err := table.Filter(tariff.Query{Period: "2024-12", Distributor: "EDP"}); !errors.Is(err, ptbr.ErrInvalidPeriod) {
		t.Fatalf("expected invalid period, got %v", err)
	}
	if _, err := table.Filter(tariff.Query{Period: "DEZ-2024"}); !errors.Is(err, tariff.ErrEmptyDistributor) {
		t.Fatalf("expected empty distributor, got %v", err)
	}
}

type stubSource struct {
	rows []tariff.Row
	err  error
}

func (s stubSource) LoadRows(context.Context) ([]tariff.Row, error) { return s.rows, s.err }

func TestLoadTable(t *testing.T) {
	table, err := LoadTable(context.Background(), stubSource{rows: sampleRows()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if table.Len() != len(sampleRows()) {
		t.Fatalf("unexpected row count %d", table.Len())
	}
	boom := errors.New("boom")
	if _, err := LoadTable(context.Background(), stubSource{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}
