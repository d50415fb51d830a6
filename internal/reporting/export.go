package reporting

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Tables groups everything BuildAnalysisXLSX renders. Nil parts are skipped.
type Tables struct {
	Comparison *Comparison  `json:"tabela_contrato_comparado,omitempty"`
	Projection *Projection  `json:"tabela_12meses,omitempty"`
	Adjustment *Adjustment  `json:"tabela_ajuste,omitempty"`
	Proposal   []SummaryRow `json:"resumo_proposta,omitempty"`
	Context    *Context     `json:"dados_contextuais,omitempty"`
}

// Sheet names of the analysis workbook.
const (
	SheetSummary    = "resumo"
	SheetComparison = "contrato"
	SheetProjection = "projecao"
	SheetAdjustment = "ajuste"
)

// BuildAnalysisXLSX renders the analysis tables into a workbook. Monetary
// cells hold formatted pt-BR strings, matching the JSON tables.
func BuildAnalysisXLSX(t Tables) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}

	row := 1
	if t.Context != nil {
		c := t.Context
		pairs := [][2]string{
			{"Unidade", c.Unit},
			{"Endereço", c.Address},
			{"Instalação", c.Installation},
			{"Distribuidora", c.Distributor},
			{"Grupo", c.Group},
			{"Subgrupo", c.Subgroup},
			{"Classe", c.Class},
			{"Tensão", c.Voltage + " " + c.VoltageUnit},
			{"Nível de tensão", c.VoltageTier},
			{"Faturas", c.InvoiceCount},
			{"Período", c.FirstMonth + " a " + c.LastMonth},
			{"Economia", "R$ " + c.Savings},
			{"Economia (%)", c.SavingsPercent},
		}
		for _, p := range pairs {
			if err := writeRow(f, SheetSummary, row, []string{p[0], p[1]}); err != nil {
				return nil, err
			}
			row++
		}
		row++
	}
	if len(t.Proposal) > 0 {
		if err := writeRow(f, SheetSummary, row, []string{"", "Atual", "Proposto"}); err != nil {
			return nil, err
		}
		row++
		for _, s := range t.Proposal {
			if err := writeRow(f, SheetSummary, row, []string{s.Title, s.Current, s.Proposed}); err != nil {
				return nil, err
			}
			row++
		}
	}

	if t.Comparison != nil {
		rows := make([][]string, 0, len(t.Comparison.Months)+2)
		for _, r := range t.Comparison.Rows() {
			rows = append(rows, r.Cells())
		}
		if err := writeTable(f, SheetComparison, ComparisonColumns, rows); err != nil {
			return nil, err
		}
	}
	if t.Projection != nil {
		var rows [][]string
		for _, r := range t.Projection.Rows() {
			rows = append(rows, r.Cells())
		}
		if err := writeTable(f, SheetProjection, []string{"data", "verde", "azul", "bt"}, rows); err != nil {
			return nil, err
		}
	}
	if t.Adjustment != nil {
		var rows [][]string
		for _, r := range t.Adjustment.Rows() {
			rows = append(rows, r.Cells())
		}
		if err := writeTable(f, SheetAdjustment, []string{"mes", "realizado", "atualizado"}, rows); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTable(f *excelize.File, sheet string, header []string, rows [][]string) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := writeRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, r := range rows {
		if err := writeRow(f, sheet, i+2, r); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []string) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("reporting: write %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
