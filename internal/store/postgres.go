package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Rates and costs are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS tariff_rates (
	country      TEXT    NOT NULL,
	partner      TEXT    NOT NULL,
	hs_code      TEXT    NOT NULL DEFAULT '',
	year         INTEGER NOT NULL DEFAULT 0,
	ahs_weighted NUMERIC,
	mfn_weighted NUMERIC,
	PRIMARY KEY (country, partner, hs_code, year)
);
CREATE TABLE IF NOT EXISTS products (
	name      TEXT    NOT NULL,
	brand     TEXT    NOT NULL DEFAULT '',
	unit_cost NUMERIC NOT NULL,
	unit      TEXT    NOT NULL DEFAULT 'unit',
	hs_code   TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (name, brand)
);`

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// FindRate returns the most recent row for the pair.
func (s *PostgresStore) FindRate(ctx context.Context, country, partner string) (*model.RateEntry, error) {
	var e model.RateEntry
	var ahs, mfn *string

	err := s.pool.QueryRow(ctx,
		`SELECT country, partner, hs_code, year, ahs_weighted::TEXT, mfn_weighted::TEXT
		 FROM tariff_rates WHERE country = $1 AND partner = $2
		 ORDER BY year DESC, hs_code LIMIT 1`, country, partner).
		Scan(&e.Country, &e.Partner, &e.HSCode, &e.Year, &ahs, &mfn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound(fmt.Sprintf("no tariff rate for country: %s, partner: %s", country, partner))
	}
	if err != nil {
		return nil, errs.DataAccess("find rate", err)
	}
	e.AHSWeighted = parseNullDecimal(ahs)
	e.MFNWeighted = parseNullDecimal(mfn)
	return &e, nil
}

func (s *PostgresStore) SaveRate(ctx context.Context, e *model.RateEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tariff_rates (country, partner, hs_code, year, ahs_weighted, mfn_weighted)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC)
		 ON CONFLICT (country, partner, hs_code, year)
		 DO UPDATE SET ahs_weighted = EXCLUDED.ahs_weighted, mfn_weighted = EXCLUDED.mfn_weighted`,
		e.Country, e.Partner, e.HSCode, e.Year,
		nullDecimalArg(e.AHSWeighted), nullDecimalArg(e.MFNWeighted),
	)
	return errs.DataAccess("save rate", err)
}

func (s *PostgresStore) DeleteRate(ctx context.Context, country, partner string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM tariff_rates WHERE country = $1 AND partner = $2`, country, partner)
	return errs.DataAccess("delete rate", err)
}

func (s *PostgresStore) ListRates(ctx context.Context) ([]model.RateEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (country, partner)
		        country, partner, hs_code, year, ahs_weighted::TEXT, mfn_weighted::TEXT
		 FROM tariff_rates
		 ORDER BY country, partner, year DESC, hs_code`)
	if err != nil {
		return nil, errs.DataAccess("list rates", err)
	}
	defer rows.Close()

	var out []model.RateEntry
	for rows.Next() {
		var e model.RateEntry
		var ahs, mfn *string
		if err := rows.Scan(&e.Country, &e.Partner, &e.HSCode, &e.Year, &ahs, &mfn); err != nil {
			return nil, errs.DataAccess("scan rate", err)
		}
		e.AHSWeighted = parseNullDecimal(ahs)
		e.MFNWeighted = parseNullDecimal(mfn)
		out = append(out, e)
	}
	return out, errs.DataAccess("list rates", rows.Err())
}

func (s *PostgresStore) DistinctCountries(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT country FROM tariff_rates ORDER BY country`)
}

func (s *PostgresStore) DistinctPartners(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT partner FROM tariff_rates ORDER BY partner`)
}

func (s *PostgresStore) FindProduct(ctx context.Context, name string) (*model.Product, error) {
	var p model.Product
	var cost string

	err := s.pool.QueryRow(ctx,
		`SELECT name, brand, unit_cost::TEXT, unit, hs_code
		 FROM products WHERE name = $1 ORDER BY brand LIMIT 1`, name).
		Scan(&p.Name, &p.Brand, &cost, &p.Unit, &p.HSCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("Product not found: " + name)
	}
	if err != nil {
		return nil, errs.DataAccess("find product", err)
	}
	if p.UnitCost, err = parseUnitCost(cost); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) DistinctProducts(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT name FROM products ORDER BY name`)
}

func (s *PostgresStore) strings(ctx context.Context, query string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, errs.DataAccess("query", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errs.DataAccess("collect", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func parseUnitCost(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errs.DataAccess("parse unit cost", err)
	}
	return d, nil
}

func parseNullDecimal(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func nullDecimalArg(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
