package reporting

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/ptbr"
)

const (
	tariffGreen = "Tarifa Horária Verde"
	tariffBlue  = "Tarifa Horária Azul"
)

// SummaryRow is one line of the proposal summary.
type SummaryRow struct {
	Title    string `json:"titulo"`
	Current  string `json:"atual"`
	Proposed string `json:"proposto"`
}

// ProposalSummary condenses the comparison into the current vs proposed
// green contract with the yearly savings.
func ProposalSummary(c Comparison) []SummaryRow {
	current := "-"
	if c.CurrentDemandKW > 0 {
		current = ptbr.FormatKW(c.CurrentDemandKW)
	}
	return []SummaryRow{
		{Title: "Modalidade", Current: tariffGreen, Proposed: tariffGreen},
		{Title: "Demanda Ponta", Current: "-", Proposed: "-"},
		{Title: "Demanda Fora Ponta", Current: current, Proposed: ptbr.FormatKW(c.ProposedDemandKW)},
		{Title: "Custo anual", Current: ptbr.FormatReal(c.Current.Total), Proposed: ptbr.FormatReal(c.Proposed.Total)},
		{Title: "Economia em relação à Atual", Current: "-", Proposed: "(" + ptbr.FormatReal(c.Savings()) + "/ano)"},
	}
}

// Context is the descriptive data of the analysed installation.
type Context struct {
	Unit                string `json:"unidade"`
	Address             string `json:"endereco"`
	Date                string `json:"data"`
	VoltageTier         string `json:"nivel_tensao"`
	Voltage             string `json:"tensao"`
	VoltageUnit         string `json:"tensao_unidade"`
	Distributor         string `json:"distribuidora"`
	Installation        string `json:"instalacao"`
	Group               string `json:"grupo_atual"`
	Subgroup            string `json:"subgrupo_atual"`
	Class               string `json:"classe"`
	CurrentTariff       string `json:"tarifa_atual"`
	AnalysedTariff      string `json:"tarifa_analise"`
	AnalysedPeakKW      string `json:"tarifa_analise_ponta"`
	AnalysedOffPeakKW   string `json:"tarifa_analise_fora_ponta"`
	NewTariff           string `json:"tarifa_nova"`
	CurrentDemand       string `json:"demanda_atual"`
	NewDemand           string `json:"demanda_nova"`
	InvoiceCount        string `json:"num_contas"`
	FirstMonth          string `json:"base_dados_inicio"`
	LastMonth           string `json:"base_dados_fim"`
	CurrentContractCost string `json:"custo_contrato_atual"`
	NewContractCost     string `json:"custo_contrato_novo"`
	Savings             string `json:"economia_contrato"`
	SavingsPercent      string `json:"economia_percentual"`
}

// ContextInput carries what ContextSummary needs beyond the invoices.
type ContextInput struct {
	Comparison    Comparison
	Distributor   string
	BluePeakKW    float64
	BlueOffPeakKW float64
	Now           time.Time
}

// ContextSummary describes the installation from its first invoice and the
// batch span. Fields missing from the invoice take the customary defaults
// for the tariff group.
func ContextSummary(records []invoice.Record, in ContextInput) (Context, error) {
	if len(records) == 0 {
		return Context{}, ErrNoInvoices
	}
	first, last := records[0], records[len(records)-1]
	id := first.Identification
	if id == nil {
		id = &invoice.Identification{}
	}
	group := invoice.Text(id.TariffGroup, "A")
	subgroup := invoice.Text(id.Subgroup, "")
	if subgroup == "" {
		subgroup = "-"
		if group == "A" {
			subgroup = "A4"
		}
	}
	tier := invoice.Text(id.VoltageTier, "")
	if tier == "" {
		tier = "baixa tensão"
		if group == "A" {
			tier = "média tensão"
		}
	}
	current, _ := first.Demand.Contracted(invoice.PeriodOffPeak)
	cmp := in.Comparison

	return Context{
		Unit:                invoice.Text(id.UnitName, ""),
		Address:             invoice.Text(id.Address, ""),
		Date:                in.Now.Format("02-01-2006"),
		VoltageTier:         tier,
		Voltage:             invoice.Text(id.Voltage, ""),
		VoltageUnit:         invoice.Text(id.VoltageUnit, "kV"),
		Distributor:         in.Distributor,
		Installation:        invoice.Text(id.InstallationNumber, "N/A"),
		Group:               group,
		Subgroup:            subgroup,
		Class:               cases.Title(language.BrazilianPortuguese).String(strings.ToLower(invoice.Text(id.ConsumerClass, ""))),
		CurrentTariff:       tariffGreen,
		AnalysedTariff:      tariffBlue,
		AnalysedPeakKW:      ptbr.FormatKW(in.BluePeakKW),
		AnalysedOffPeakKW:   ptbr.FormatKW(in.BlueOffPeakKW),
		NewTariff:           tariffGreen,
		CurrentDemand:       ptbr.FormatKW(current),
		NewDemand:           ptbr.FormatKW(cmp.ProposedDemandKW),
		InvoiceCount:        strconv.Itoa(len(records)),
		FirstMonth:          orNA(first.ReferenceMonth()),
		LastMonth:           orNA(last.ReferenceMonth()),
		CurrentContractCost: ptbr.FormatMoney(cmp.Current.Total),
		NewContractCost:     ptbr.FormatMoney(cmp.Proposed.Total),
		Savings:             ptbr.FormatMoney(cmp.Savings()),
		SavingsPercent:      ptbr.FormatPercent(cmp.SavingsPercent()),
	}, nil
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
