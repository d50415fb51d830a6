package invoice

// Period tags used across consumption, demand and tariff lines.
const (
	PeriodPeak         = "ponta"
	PeriodOffPeak      = "fora_ponta"
	PeriodIntermediate = "intermediario"
)

// Tax names recognised on the invoice.
const (
	TaxPIS    = "PIS"
	TaxCOFINS = "COFINS"
	TaxICMS   = "ICMS"
)

// Modality values reported in Identification.Modality.
const (
	ModalityGreen        = "verde"
	ModalityBlue         = "azul"
	ModalityWhite        = "branca"
	ModalityConventional = "convencional"
)

// Record is the parsed representation of one billing period for one installation.
// Every leaf is optional: a nil pointer means the field was not found, which
// is distinct from a printed zero.
type Record struct {
	Identification  *Identification `json:"identificacao,omitempty"`
	Readings        *Readings       `json:"leituras,omitempty"`
	Consumption     Consumption     `json:"consumo_ativo"`
	Demand          *Demand         `json:"demanda,omitempty"`
	ReactiveEnergy  *ReactiveEnergy `json:"energia_reativa,omitempty"`
	TariffLines     []TariffLine    `json:"tarifas,omitempty"`
	Taxes           []Tax           `json:"impostos,omitempty"`
	ExtraComponents []Component     `json:"componentes_extras,omitempty"`
	Totals          *Totals         `json:"valores_totais,omitempty"`
}

// Identification holds installation and contract metadata.
type Identification struct {
	InstallationNumber *string `json:"numero_instalacao,omitempty"`
	CustomerNumber     *string `json:"numero_cliente,omitempty"`
	ReferenceMonth     *string `json:"mes_referencia,omitempty"`
	TariffGroup        *string `json:"grupo_tarifario,omitempty"`
	Subgroup           *string `json:"subgrupo,omitempty"`
	ConsumerClass      *string `json:"classe,omitempty"`
	Address            *string `json:"endereco,omitempty"`
	Voltage            *string `json:"tensao,omitempty"`
	VoltageUnit        *string `json:"tensaoUnid,omitempty"`
	VoltageTier        *string `json:"nivel_tensao,omitempty"`
	UnitName           *string `json:"unidade,omitempty"`
	Modality           *string `json:"modalidade,omitempty"`
}

// Readings holds the meter read window (dd/mm/yyyy).
type Readings struct {
	Start *string `json:"leitura_inicio,omitempty"`
	End   *string `json:"leitura_fim,omitempty"`
}

// Consumption holds active energy per period.
type Consumption struct {
	PeakKWh         *float64 `json:"ponta_kwh,omitempty"`
	OffPeakKWh      *float64 `json:"fora_ponta_kwh,omitempty"`
	IntermediateKWh *float64 `json:"intermediario_kwh,omitempty"`
	InjectedKWh     float64  `json:"energia_injetada_kwh"`
	TotalKWh        *float64 `json:"total_kwh,omitempty"`
}

// PeriodValue is a value in kW tagged with its period.
type PeriodValue struct {
	Period string  `json:"periodo"`
	KW     float64 `json:"valor_kw"`
}

// BilledDemand is a demand line as charged on the invoice.
type BilledDemand struct {
	Period    string   `json:"periodo"`
	KW        float64  `json:"valor_kw"`
	UnitPrice *float64 `json:"tarifa_unitaria,omitempty"`
	Total     *float64 `json:"valor_total,omitempty"`
}

// Demand groups contracted, measured and billed demand.
type Demand struct {
	ContractedKW        *float64       `json:"contratada_kw,omitempty"`
	ContractedPeakKW    *float64       `json:"contratada_ponta_kw,omitempty"`
	ContractedOffPeakKW *float64       `json:"contratada_fora_ponta_kw,omitempty"`
	Maxima              []PeriodValue  `json:"maxima,omitempty"`
	DMCR                []PeriodValue  `json:"dmcr,omitempty"`
	Billed              []BilledDemand `json:"faturada,omitempty"`
}

// ReactiveExcess is the billable reactive energy in kWh-equivalent.
type ReactiveExcess struct {
	PeakKWh    *float64 `json:"ponta_kwh,omitempty"`
	OffPeakKWh *float64 `json:"fora_ponta_kwh,omitempty"`
	TotalKWh   *float64 `json:"total_kwh,omitempty"`
}

// ReactiveEnergy holds the reactive readings and excess.
type ReactiveEnergy struct {
	PeakKVArh    *float64        `json:"ponta_kvarh,omitempty"`
	OffPeakKVArh *float64        `json:"fora_ponta_kvarh,omitempty"`
	TotalKVArh   *float64        `json:"total_kvarh,omitempty"`
	Excess       *ReactiveExcess `json:"excedente,omitempty"`
}

// TariffLine is a TE/TUSD energy line item.
type TariffLine struct {
	Description string   `json:"descricao"`
	Period      string   `json:"periodo"`
	Quantity    *float64 `json:"quantidade,omitempty"`
	UnitPrice   *float64 `json:"tarifa_unitaria,omitempty"`
	Total       *float64 `json:"valor_total,omitempty"`
}

// Tax is one PIS/COFINS/ICMS row. Rate is a percentage as printed.
type Tax struct {
	Name   string   `json:"nome"`
	Base   *float64 `json:"base_calculo,omitempty"`
	Rate   *float64 `json:"aliquota,omitempty"`
	Amount *float64 `json:"valor,omitempty"`
}

// Component is a heterogeneous extra line item matched by description.
type Component struct {
	Description string   `json:"descricao"`
	Quantity    *float64 `json:"quantidade,omitempty"`
	UnitPrice   *float64 `json:"tarifa_unitaria,omitempty"`
	Total       *float64 `json:"valor_total,omitempty"`
	Withheld    *float64 `json:"valor_impostos,omitempty"`
}

// Totals are the printed totals, used for comparison only.
type Totals struct {
	InvoiceTotal *float64 `json:"valor_total_fatura,omitempty"`
	Subtotal     *float64 `json:"subtotal_encargos,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Value dereferences p, returning fallback when p is nil.
func Value(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

// Text dereferences p, returning fallback when p is nil or empty.
func Text(p *string, fallback string) string {
	if p == nil || *p == "" {
		return fallback
	}
	return *p
}
