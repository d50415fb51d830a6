package extraction

import (
	"bytes"
	"encoding/json"
	"log"
	"math"
	"strings"
	"testing"

	invoice "tariff-advisor/internal/invoice/domain"
)

const greenInvoice = `EDP ESPIRITO SANTO DISTRIBUICAO DE ENERGIA S.A.
Rua Florentino Avidos, 245 - Centro - Vitoria - ES
CNPJ 28.152.650/0001-71  Inscrição Estadual 080.077.860
NOTA FISCAL / CONTA DE ENERGIA ELETRICA Nº 123456 SERIE U
AV SANTA LEOPOLDINA, 840 - COQUEIRAL DE ITAPARICA
VILA VELHA - ES 29102-040
PREFEITURA MUNICIPAL DE VILA VELHA
SECRETARIA MUNICIPAL DE SAUDE
CNPJ: 27.165.554/0001-03
COD. IDENT. 0160012345
0001234567 PAG
Classificação: A4 - PODER PUBLICO - MUNICIPAL  Modalidade Tarifária: HORÁRIA VERDE
Tensão Nominal: 11,4 kV
Referência: Fevereiro/2025  Vencimento: 20/03/2025
Roteiro de leitura: 123 - Leituras: 03/01/2025 a 02/02/2025
Consumo Ativo Ponta 1.000,00 kWh
Consumo Ativo Fora Ponta 5.000,00 kWh
Demanda Contratada 500 KW
Demanda Máx Ponta 12345 12400 480,00 KW
Demanda Máx FPonta 22345 22400 560,00 KW
DMCR Ponta 0,00 KW
Perdas DMCR Fora Ponta 2,50 KW
DMCR Fora Ponta 490,00 KW
Energia Reativa Ponta 100 220 120,00 KVH
Energia Reativa FPonta 300 600 300,00 KVH
ERE Ponta 15,00 KWH
ERE Fora Ponta 40,00 KWH
TUSD - Consumo Ativo Ponta kWh 1.000,00 1,50000 1.500,00
TE - Consumo Ativo Ponta kWh 1.000,00 0,50000 500,00
TUSD - Consumo Ativo FPonta kWh 5.000,00 0,10000 500,00
TE - Consumo Ativo FPonta kWh 5.000,00 0,30000 1.500,00
Demanda Ativa kW 560,00 25,00000 14.000,00
Demanda Ultrapassagem kW 60,00 50,00000 3.000,00
Adicional Bandeira Amarela kWh 6.000,00 0,01885 113,10 10,46
ERE-Energia Reativa Excedente kWh 55,00 0,30000 16,50
Contrib. Ilum. Pública 1 250,00 250,00
Retenção Imposto de Renda 1 0,00 0,00 120,00
Juros Moratórios 12,34
318,45 1,65 19.300,00 PIS/PASEP
1.466,80 7,60 19.300,00 COFINS
999,99 1,65 19.300,00 PIS
ICMS 19.300,00 17,00 3.281,00
TOTAL 21.267,40 19.300,00
`

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func mustValue(t *testing.T, name string, p *float64, want float64) {
	t.Helper()
	if p == nil {
		t.Fatalf("%s: expected %v, got nil", name, want)
	}
	if !near(*p, want) {
		t.Fatalf("%s: expected %v, got %v", name, want, *p)
	}
}

func mustText(t *testing.T, name string, p *string, want string) {
	t.Helper()
	if p == nil {
		t.Fatalf("%s: expected %q, got nil", name, want)
	}
	if *p != want {
		t.Fatalf("%s: expected %q, got %q", name, want, *p)
	}
}

func TestExtractGreenInvoiceIdentification(t *testing.T) {
	rec := NewExtractor().Extract(greenInvoice)
	id := rec.Identification
	if id == nil {
		t.Fatalf("expected identification")
	}
	mustText(t, "installation", id.InstallationNumber, "0160012345")
	mustText(t, "customer", id.CustomerNumber, "0001234567")
	mustText(t, "month", id.ReferenceMonth, "02/2025")
	mustText(t, "group", id.TariffGroup, "A")
	mustText(t, "subgroup", id.Subgroup, "A4")
	mustText(t, "class", id.ConsumerClass, "PODER PUBLICO - MUNICIPAL")
	mustText(t, "voltage", id.Voltage, "11,4")
	mustText(t, "voltage unit", id.VoltageUnit, "kV")
	mustText(t, "tier", id.VoltageTier, TierMedium)
	mustText(t, "modality", id.Modality, invoice.ModalityGreen)
	mustText(t, "unit", id.UnitName, "PREFEITURA MUNICIPAL DE VILA VELHA SECRETARIA MUNICIPAL DE SAUDE")
	mustText(t, "address", id.Address, "AV SANTA LEOPOLDINA, 840 - COQUEIRAL DE ITAPARICA - VILA VELHA - ES 29102-040")

	if rec.Readings == nil {
		t.Fatalf("expected readings")
	}
	mustText(t, "reading start", rec.Readings.Start, "03/01/2025")
	mustText(t, "reading end", rec.Readings.End, "02/02/2025")
}

func TestExtractGreenInvoiceEnergyAndDemand(t *testing.T) {
	rec := NewExtractor().Extract(greenInvoice)

	mustValue(t, "peak kwh", rec.Consumption.PeakKWh, 1000)
	mustValue(t, "off-peak kwh", rec.Consumption.OffPeakKWh, 5000)
	mustValue(t, "total kwh", rec.Consumption.TotalKWh, 6000)
	if rec.Consumption.IntermediateKWh != nil {
		t.Fatalf("expected no intermediate consumption")
	}
	if rec.Consumption.InjectedKWh != 0 {
		t.Fatalf("expected injected default 0, got %v", rec.Consumption.InjectedKWh)
	}
	if !rec.Consumption.ConsistentTotal() {
		t.Fatalf("expected consistent total")
	}

	d := rec.Demand
	if d == nil {
		t.Fatalf("expected demand")
	}
	mustValue(t, "contracted", d.ContractedKW, 500)
	mustValue(t, "contracted off-peak", d.ContractedOffPeakKW, 500)
	if d.ContractedPeakKW != nil {
		t.Fatalf("expected no peak contracted value")
	}
	if v, ok := d.Maximum(invoice.PeriodPeak); !ok || v != 480 {
		t.Fatalf("unexpected peak maximum %v %v", v, ok)
	}
	if v, ok := d.Maximum(invoice.PeriodOffPeak); !ok || v != 560 {
		t.Fatalf("unexpected off-peak maximum %v %v", v, ok)
	}
	if v, ok := d.MeasuredReference(invoice.PeriodPeak); !ok || v != 0 {
		t.Fatalf("expected printed zero dmcr peak, got %v %v", v, ok)
	}
	if v, ok := d.MeasuredReference(invoice.PeriodOffPeak); !ok || v != 490 {
		t.Fatalf("expected dmcr off-peak 490 (not the losses line), got %v %v", v, ok)
	}
	if len(d.Billed) != 1 || d.Billed[0].Period != invoice.PeriodOffPeak || d.Billed[0].KW != 560 {
		t.Fatalf("unexpected billed demand %+v", d.Billed)
	}
	mustValue(t, "billed price", d.Billed[0].UnitPrice, 25)
	mustValue(t, "billed total", d.Billed[0].Total, 14000)

	r := rec.ReactiveEnergy
	if r == nil || r.Excess == nil {
		t.Fatalf("expected reactive energy with excess")
	}
	mustValue(t, "kvarh peak", r.PeakKVArh, 120)
	mustValue(t, "kvarh off-peak", r.OffPeakKVArh, 300)
	mustValue(t, "kvarh total", r.TotalKVArh, 420)
	mustValue(t, "excess total", r.Excess.TotalKWh, 55)
}

func TestExtractGreenInvoiceCharges(t *testing.T) {
	rec := NewExtractor().Extract(greenInvoice)

	if len(rec.TariffLines) != 4 {
		t.Fatalf("expected 4 tariff lines, got %d", len(rec.TariffLines))
	}
	first := rec.TariffLines[0]
	if first.Description != "TUSD" || first.Period != invoice.PeriodPeak {
		t.Fatalf("unexpected first tariff line %+v", first)
	}
	if rec.TariffLines[2].Period != invoice.PeriodOffPeak {
		t.Fatalf("expected off-peak tariff line, got %q", rec.TariffLines[2].Period)
	}

	if len(rec.Taxes) != 3 {
		t.Fatalf("expected PIS, COFINS and ICMS once each, got %+v", rec.Taxes)
	}
	if rec.Taxes[0].Name != invoice.TaxPIS || rec.Taxes[1].Name != invoice.TaxCOFINS || rec.Taxes[2].Name != invoice.TaxICMS {
		t.Fatalf("unexpected tax order %+v", rec.Taxes)
	}
	mustValue(t, "pis amount", rec.Taxes[0].Amount, 318.45)
	mustValue(t, "pis base", rec.Taxes[0].Base, 19300)
	if rate, ok := rec.TaxRate(invoice.TaxCOFINS); !ok || rate != 7.6 {
		t.Fatalf("unexpected cofins rate %v %v", rate, ok)
	}
	mustValue(t, "icms base", rec.Taxes[2].Base, 19300)
	mustValue(t, "icms rate", rec.Taxes[2].Rate, 17)
	mustValue(t, "icms amount", rec.Taxes[2].Amount, 3281)

	if rec.Totals == nil {
		t.Fatalf("expected totals")
	}
	mustValue(t, "invoice total", rec.Totals.InvoiceTotal, 21267.40)
	mustValue(t, "subtotal", rec.Totals.Subtotal, 19300)

	if len(rec.ExtraComponents) != 6 {
		t.Fatalf("expected 6 extra components, got %+v", rec.ExtraComponents)
	}
	flag, ok := rec.Component("bandeira")
	if !ok {
		t.Fatalf("expected bandeira component")
	}
	if flag.Description != "Adicional Bandeira Amarela" {
		t.Fatalf("unexpected description %q", flag.Description)
	}
	mustValue(t, "flag total", flag.Total, 113.10)
	mustValue(t, "flag withheld", flag.Withheld, 10.46)

	lighting, ok := rec.Component("ilum")
	if !ok || lighting.Withheld != nil {
		t.Fatalf("expected lighting without withheld column, got %+v", lighting)
	}
	mustValue(t, "lighting total", lighting.Total, 250)

	if got := rec.ComponentsWithheld("imposto de renda"); got != 120 {
		t.Fatalf("expected withheld income tax 120, got %v", got)
	}
	if got := rec.ComponentsTotal("juros"); got != 12.34 {
		t.Fatalf("expected late fee 12.34, got %v", got)
	}
}

func TestExtractEmptyTextYieldsSparseRecord(t *testing.T) {
	rec := NewExtractor().Extract("")
	if rec.Identification != nil || rec.Demand != nil || rec.Totals != nil {
		t.Fatalf("expected sparse record, got %+v", rec)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(payload), `"energia_injetada_kwh":0`) {
		t.Fatalf("expected injected default in %s", payload)
	}
	if strings.Contains(string(payload), "total_kwh") {
		t.Fatalf("expected no derived total in %s", payload)
	}
}

func TestExtractIsolatesPanickingRule(t *testing.T) {
	var logs bytes.Buffer
	outcomes := map[string]bool{}
	boom := NewRule("boom", func(string) (Patch, bool) {
		var values []int
		_ = values[3]
		return nil, true
	})
	nilDemand := NewRule("nil_demand", func(string) (Patch, bool) {
		return func(rec *invoice.Record) { rec.Demand.Maxima = nil }, true
	})
	halfWritten := NewRule("half_written", func(string) (Patch, bool) {
		return func(rec *invoice.Record) {
			rec.Identification.Address = invoice.String("partial")
			var values []int
			_ = values[3]
		}, true
	})
	extractor := NewExtractor(
		WithLogger(log.New(&logs, "", 0)),
		WithObserver(RuleObserverFunc(func(rule string, hit bool) { outcomes[rule] = hit })),
		WithRules(boom, nilDemand, installationRule(), halfWritten),
	)

	rec := extractor.Extract(greenInvoice)
	if rec.InstallationID() != "0160012345" {
		t.Fatalf("expected later rule to run, got %+v", rec.Identification)
	}
	for _, name := range []string{"boom", "nil_demand", "half_written"} {
		if hit, ok := outcomes[name]; !ok || hit {
			t.Fatalf("expected %s recorded as miss, got %v %v", name, hit, ok)
		}
	}
	if rec.Identification.Address != nil {
		t.Fatalf("expected partial patch discarded, got %q", *rec.Identification.Address)
	}
	if rec.Demand != nil {
		t.Fatalf("expected no demand, got %+v", rec.Demand)
	}
	if !strings.Contains(logs.String(), "rule=nil_demand") || !strings.Contains(logs.String(), "rule=half_written") {
		t.Fatalf("expected patch panics to be logged, got %q", logs.String())
	}
	if !outcomes["installation_number"] {
		t.Fatalf("expected installation hit")
	}
	if !strings.Contains(logs.String(), "rule=boom") {
		t.Fatalf("expected panic to be logged, got %q", logs.String())
	}
}

func TestContractedDemandPolicies(t *testing.T) {
	text := "Demanda Contratada 300 KW\n"

	both := NewExtractor(WithContractedPolicy(GenericAsBoth)).Extract(text)
	if both.Demand == nil {
		t.Fatalf("expected demand")
	}
	mustValue(t, "both peak", both.Demand.ContractedPeakKW, 300)
	mustValue(t, "both off-peak", both.Demand.ContractedOffPeakKW, 300)

	generic := NewExtractor(WithContractedPolicy(GenericOnly)).Extract(text)
	if generic.Demand.ContractedOffPeakKW != nil {
		t.Fatalf("expected no off-peak slot for generic policy")
	}
	if v, ok := generic.Demand.Contracted(invoice.PeriodOffPeak); !ok || v != 300 {
		t.Fatalf("expected off-peak lookup to fall back to generic, got %v %v", v, ok)
	}

	split := NewExtractor().Extract("Demanda Contratada Ponta 120 kW\nDemanda Contratada Fora Ponta 400 kW\n")
	mustValue(t, "split peak", split.Demand.ContractedPeakKW, 120)
	mustValue(t, "split off-peak", split.Demand.ContractedOffPeakKW, 400)
	if split.Demand.ContractedKW != nil {
		t.Fatalf("expected no generic value when split labels exist")
	}

	if _, err := ParseContractedPolicy("ambos"); err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	if _, err := ParseContractedPolicy("sideways"); err == nil {
		t.Fatalf("expected unknown policy error")
	}
}

func TestBlueInvoiceBilledDemandAndInjection(t *testing.T) {
	text := strings.Join([]string{
		"Modalidade Tarifária: HORÁRIA AZUL",
		"Energia Injetada FP kWh 1.250,00",
		"Demanda Ponta kW 150,00 40,00000 6.000,00",
		"Demanda Fora Ponta kW 420,00 15,00000 6.300,00",
		"Referência: 03/2024",
	}, "\n")
	rec := NewExtractor().Extract(text)
	if rec.Consumption.InjectedKWh != 1250 {
		t.Fatalf("expected injected 1250, got %v", rec.Consumption.InjectedKWh)
	}
	if got := rec.ReferenceMonth(); got != "03/2024" {
		t.Fatalf("expected numeric reference month, got %q", got)
	}
	if v, ok := rec.MeasuredDemand(invoice.PeriodPeak); !ok || v != 150 {
		t.Fatalf("expected billed peak demand 150, got %v %v", v, ok)
	}
	if v, ok := rec.MeasuredDemand(invoice.PeriodOffPeak); !ok || v != 420 {
		t.Fatalf("expected billed off-peak demand 420, got %v %v", v, ok)
	}
}

func TestComponentLineShapes(t *testing.T) {
	cases := []struct {
		line     string
		desc     string
		total    float64
		withheld *float64
	}{
		{"Adicional Bandeira Vermelha P1 kWh 100,00 0,04463 4,46 0,41", "Adicional Bandeira Vermelha P1", 4.46, invoice.Float(0.41)},
		{"Demanda Não Utilizada kW 40,00 25,00000 1.000,00", "Demanda Não Utilizada", 1000, nil},
		{"Multa por Atraso 25,90", "Multa por Atraso", 25.90, nil},
		{"Juros de Mora 1,20 0,10", "Juros de Mora", 1.20, invoice.Float(0.10)},
		{"Crédito de Bandeira 12,00-", "Crédito de Bandeira", -12, nil},
	}
	for _, tc := range cases {
		c, ok := componentLine(tc.line)
		if !ok {
			t.Fatalf("expected component for %q", tc.line)
		}
		if c.Description != tc.desc {
			t.Fatalf("line %q: expected description %q, got %q", tc.line, tc.desc, c.Description)
		}
		mustValue(t, tc.line, c.Total, tc.total)
		if tc.withheld == nil && c.Withheld != nil {
			t.Fatalf("line %q: expected no withheld value, got %v", tc.line, *c.Withheld)
		}
		if tc.withheld != nil {
			mustValue(t, tc.line+" withheld", c.Withheld, *tc.withheld)
		}
	}
	for _, line := range []string{"Bandeira tarifária vigente: Verde", "Consumo Ativo Ponta 10,00"} {
		if _, ok := componentLine(line); ok {
			t.Fatalf("expected no component for %q", line)
		}
	}
}

func TestVoltageTier(t *testing.T) {
	cases := []struct {
		value float64
		unit  string
		want  string
	}{
		{220, "V", TierLow},
		{13.8, "kV", TierMedium},
		{69, "kV", TierHigh},
		{138, "kV", TierHigh},
	}
	for _, tc := range cases {
		if got := VoltageTier(tc.value, tc.unit); got != tc.want {
			t.Fatalf("tier %v %s: expected %q, got %q", tc.value, tc.unit, tc.want, got)
		}
	}
}

func TestTotalKWhKeepsExactSum(t *testing.T) {
	text := "Consumo Ativo Ponta 1,234567\nConsumo Ativo Fora Ponta 2,000009\n"
	rec := NewExtractor().Extract(text)
	mustValue(t, "peak", rec.Consumption.PeakKWh, 1.234567)
	mustValue(t, "off-peak", rec.Consumption.OffPeakKWh, 2.000009)
	if !rec.Consumption.ConsistentTotal() {
		t.Fatalf("expected total %v to equal peak + off-peak", *rec.Consumption.TotalKWh)
	}
}
