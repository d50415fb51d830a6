package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	tariff "tariff-advisor/internal/tariff/domain"
)

const defaultRatesTable = "tariff_rates"

// RateSource loads rate table rows from Postgres.
type RateSource struct {
	db          *sql.DB
	table       string
	distributor string
}

// Option configures the source.
type Option func(*RateSource)

// WithRatesTable overrides the rates table name.
func WithRatesTable(table string) Option {
	return func(s *RateSource) {
		if table != "" {
			s.table = table
		}
	}
}

// WithDistributor restricts loading to rows whose distributor contains name.
func WithDistributor(name string) Option {
	return func(s *RateSource) {
		s.distributor = strings.TrimSpace(name)
	}
}

// NewRateSource constructs a source.
func NewRateSource(db *sql.DB, opts ...Option) (*RateSource, error) {
	if db == nil {
		return nil, errors.New("rate source: nil db")
	}
	s := &RateSource{db: db, table: defaultRatesTable}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoadRows returns every stored row, oldest validity first.
func (s *RateSource) LoadRows(ctx context.Context) ([]tariff.Row, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("rate source: nil db")
	}
	query := fmt.Sprintf(`
SELECT distributor, valid_from, valid_to, basis, modality,
	COALESCE(subgroup, ''), COALESCE(class, ''), COALESCE(detail, ''),
	post, unit, COALESCE(te, 0), COALESCE(tusd, 0)
FROM %s
WHERE ($1 = '' OR upper(distributor) LIKE '%%' || upper($1) || '%%')
ORDER BY valid_from ASC, modality ASC, post ASC`, s.table)

	rows, err := s.db.QueryContext(ctx, query, s.distributor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tariff.Row
	for rows.Next() {
		var row tariff.Row
		if err := rows.Scan(
			&row.Distributor, &row.ValidFrom, &row.ValidTo, &row.Basis, &row.Modality,
			&row.Subgroup, &row.Class, &row.Detail,
			&row.Post, &row.Unit, &row.TE, &row.TUSD,
		); err != nil {
			return nil, err
		}
		row.ValidFrom = row.ValidFrom.UTC()
		row.ValidTo = row.ValidTo.UTC()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveRows replaces the stored rows of the given distributor.
func (s *RateSource) SaveRows(ctx context.Context, distributor string, rows []tariff.Row) error {
	if s == nil || s.db == nil {
		return errors.New("rate source: nil db")
	}
	if strings.TrimSpace(distributor) == "" {
		return tariff.ErrEmptyDistributor
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE distributor = $1`, s.table), distributor); err != nil {
		_ = tx.Rollback()
		return err
	}
	insert := fmt.Sprintf(`
INSERT INTO %s (
	distributor, valid_from, valid_to, basis, modality, subgroup, class, detail, post, unit, te, tusd
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, s.table)
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, insert,
			distributor, row.ValidFrom, row.ValidTo, row.Basis, row.Modality,
			row.Subgroup, row.Class, row.Detail, row.Post, row.Unit, row.TE, row.TUSD,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
