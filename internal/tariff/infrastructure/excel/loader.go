package excel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tariff-advisor/internal/ptbr"
	tariff "tariff-advisor/internal/tariff/domain"
)

const defaultSheet = "Export"

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("tariff xlsx: missing column")

// Header names of the regulator's export, compared after accent folding.
const (
	colDistributor = "SIGLA"
	colValidFrom   = "INICIO VIGENCIA"
	colValidTo     = "FIM VIGENCIA"
	colBasis       = "BASE TARIFARIA"
	colModality    = "MODALIDADE"
	colSubgroup    = "SUBGRUPO"
	colClass       = "CLASSE"
	colDetail      = "DETALHE"
	colPost        = "POSTO"
	colUnit        = "UNIDADE"
	colTE          = "TE"
	colTUSD        = "TUSD"
)

var requiredColumns = []string{colDistributor, colValidFrom, colValidTo, colBasis, colModality, colPost, colUnit, colTE, colTUSD}

// Loader reads rate table rows from an xlsx workbook.
type Loader struct {
	path  string
	open  func() (io.ReadCloser, error)
	sheet string
}

// Option configures the loader.
type Option func(*Loader)

// WithSheet overrides the worksheet name.
func WithSheet(sheet string) Option {
	return func(l *Loader) {
		if sheet != "" {
			l.sheet = sheet
		}
	}
}

// NewLoader reads the workbook at path.
func NewLoader(path string, opts ...Option) (*Loader, error) {
	if path == "" {
		return nil, errors.New("tariff xlsx: empty path")
	}
	l := &Loader{path: path, sheet: defaultSheet}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// NewReaderLoader reads the workbook produced by open on every load.
func NewReaderLoader(open func() (io.ReadCloser, error), opts ...Option) (*Loader, error) {
	if open == nil {
		return nil, errors.New("tariff xlsx: nil opener")
	}
	l := &Loader{open: open, sheet: defaultSheet}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// LoadRows parses every data row of the sheet. Rows with unreadable dates
// or rates are skipped.
func (l *Loader) LoadRows(ctx context.Context) ([]tariff.Row, error) {
	f, err := l.workbook()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(l.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("tariff xlsx: read sheet %q: %w", l.sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty sheet %q", ErrMissingColumn, l.sheet)
	}
	index := headerIndex(rows[0])
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	out := make([]tariff.Row, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, ok := parseRow(cells, index)
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (l *Loader) workbook() (*excelize.File, error) {
	if l.open == nil {
		f, err := excelize.OpenFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("tariff xlsx: open %s: %w", l.path, err)
		}
		return f, nil
	}
	rc, err := l.open()
	if err != nil {
		return nil, fmt.Errorf("tariff xlsx: open: %w", err)
	}
	defer rc.Close()
	f, err := excelize.OpenReader(rc)
	if err != nil {
		return nil, fmt.Errorf("tariff xlsx: open: %w", err)
	}
	return f, nil
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		key := ptbr.Fold(strings.TrimSpace(name))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	return index
}

func parseRow(cells []string, index map[string]int) (tariff.Row, bool) {
	cell := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}
	from, err := parseDate(cell(colValidFrom))
	if err != nil {
		return tariff.Row{}, false
	}
	to, err := parseDate(cell(colValidTo))
	if err != nil {
		return tariff.Row{}, false
	}
	te, err := parseRate(cell(colTE))
	if err != nil {
		return tariff.Row{}, false
	}
	tusd, err := parseRate(cell(colTUSD))
	if err != nil {
		return tariff.Row{}, false
	}
	return tariff.Row{
		Distributor: cell(colDistributor),
		ValidFrom:   from,
		ValidTo:     to,
		Basis:       cell(colBasis),
		Modality:    cell(colModality),
		Subgroup:    cell(colSubgroup),
		Class:       cell(colClass),
		Detail:      cell(colDetail),
		Post:        cell(colPost),
		Unit:        cell(colUnit),
		TE:          te,
		TUSD:        tusd,
	}, true
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00", "01-02-06"}

// parseDate accepts Excel serial dates and the textual layouts seen in exports.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("tariff xlsx: empty date")
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("tariff xlsx: invalid date %q", raw)
}

// parseRate reads raw numeric cells first; text cells may use pt-BR separators.
// Empty cells are zero.
func parseRate(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v, nil
	}
	return ptbr.ParseNumber(raw)
}
