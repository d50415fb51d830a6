package tariff

import "time"

// BasisApplied is the "Base Tarifária" value of rows used for billing.
const BasisApplied = "Tarifa de Aplicação"

// Units as printed in the rate table.
const (
	UnitEnergy = "R$/MWh"
	UnitDemand = "R$/kW"
)

// Row is one line of the regulator's rate table export.
type Row struct {
	Distributor string    `json:"sigla"`
	ValidFrom   time.Time `json:"inicio_vigencia"`
	ValidTo     time.Time `json:"fim_vigencia"`
	Basis       string    `json:"base_tarifaria"`
	Modality    string    `json:"modalidade"`
	Subgroup    string    `json:"subgrupo"`
	Class       string    `json:"classe"`
	Detail      string    `json:"detalhe"`
	Post        string    `json:"posto"`
	Unit        string    `json:"unidade"`
	TE          float64   `json:"te"`
	TUSD        float64   `json:"tusd"`
}

// Query selects rows for one billing month. Empty optional fields do not filter.
type Query struct {
	Period      string `json:"periodo"`
	Distributor string `json:"distribuidora"`
	Modality    string `json:"modalidade,omitempty"`
	Subgroup    string `json:"subgrupo,omitempty"`
	Class       string `json:"classe,omitempty"`
	Detail      string `json:"detalhe,omitempty"`
}
