package invoice

import "testing"

func TestMeasuredDemandPolicy(t *testing.T) {
	rec := Record{
		Demand: &Demand{
			Maxima: []PeriodValue{{Period: PeriodPeak, KW: 120}, {Period: PeriodOffPeak, KW: 560}},
			Billed: []BilledDemand{{Period: PeriodOffPeak, KW: 500}},
		},
	}
	if v, ok := rec.MeasuredDemand(PeriodOffPeak); !ok || v != 560 {
		t.Fatalf("expected maxima without injection, got %v %v", v, ok)
	}

	rec.Consumption.InjectedKWh = 300
	if v, ok := rec.MeasuredDemand(PeriodOffPeak); !ok || v != 500 {
		t.Fatalf("expected billed demand under net metering, got %v %v", v, ok)
	}
	if v, ok := rec.MeasuredDemand(PeriodPeak); !ok || v != 120 {
		t.Fatalf("expected fallback to maxima, got %v %v", v, ok)
	}

	var empty Record
	if _, ok := empty.MeasuredDemand(PeriodPeak); ok {
		t.Fatalf("expected no demand on empty record")
	}
}

func TestContractedFallsBackToGeneric(t *testing.T) {
	d := &Demand{ContractedKW: Float(450)}
	if v, ok := d.Contracted(PeriodOffPeak); !ok || v != 450 {
		t.Fatalf("expected generic value for off-peak, got %v %v", v, ok)
	}
	if _, ok := d.Contracted(PeriodPeak); ok {
		t.Fatalf("expected no peak contracted value")
	}
	var missing *Demand
	if _, ok := missing.Contracted(PeriodOffPeak); ok {
		t.Fatalf("expected nil demand to report absent")
	}
}

func TestComponentLookups(t *testing.T) {
	rec := Record{ExtraComponents: []Component{
		{Description: "Adicional Bandeira Amarela", Total: Float(100), Withheld: Float(9)},
		{Description: "BANDEIRA VERMELHA", Total: Float(50)},
		{Description: "Contrib. Ilum. Pública", Total: Float(250)},
	}}
	if got := rec.ComponentsTotal("bandeira"); got != 150 {
		t.Fatalf("expected 150, got %v", got)
	}
	if got := rec.ComponentsWithheld("bandeira"); got != 9 {
		t.Fatalf("expected 9, got %v", got)
	}
	if got := rec.ComponentsTotal("iluminação", "ilum"); got != 250 {
		t.Fatalf("expected lighting 250, got %v", got)
	}
	if _, ok := rec.Component("multa"); ok {
		t.Fatalf("expected no penalty component")
	}
}

func TestConsistentTotal(t *testing.T) {
	c := Consumption{PeakKWh: Float(10), OffPeakKWh: Float(20), TotalKWh: Float(30)}
	if !c.ConsistentTotal() {
		t.Fatalf("expected consistent total")
	}
	c.TotalKWh = Float(31)
	if c.ConsistentTotal() {
		t.Fatalf("expected inconsistent total")
	}
}

func TestLabel(t *testing.T) {
	rec := Record{Identification: &Identification{InstallationNumber: String("123")}}
	if got := rec.Label(); got != "123@?" {
		t.Fatalf("unexpected label %q", got)
	}
}
