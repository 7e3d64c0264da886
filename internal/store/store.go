// Package store defines the persistence interface for rates and products.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-node development).
package store

import (
	"context"

	"github.com/tariffsim/tariff-engine/internal/model"
)

// RateStore is the rate table. Rows are keyed by (country, partner,
// hsCode, year); country is the importing side. Pair reads see the most
// recent year, ties broken by lowest hsCode.
type RateStore interface {
	// FindRate returns the most recent row for the pair, or an errs.NotFound error.
	FindRate(ctx context.Context, country, partner string) (*model.RateEntry, error)

	// SaveRate inserts or replaces the row with the entry's full key.
	SaveRate(ctx context.Context, entry *model.RateEntry) error

	// DeleteRate removes every entry for the pair.
	DeleteRate(ctx context.Context, country, partner string) error

	// ListRates returns the most recent row per pair, ordered by country then partner.
	ListRates(ctx context.Context) ([]model.RateEntry, error)

	// DistinctCountries returns the sorted set of reporting countries.
	DistinctCountries(ctx context.Context) ([]string, error)

	// DistinctPartners returns the sorted set of partner countries.
	DistinctPartners(ctx context.Context) ([]string, error)
}

// ProductStore is the product catalogue.
type ProductStore interface {
	// FindProduct returns the first product with the given name, or an
	// errs.NotFound error.
	FindProduct(ctx context.Context, name string) (*model.Product, error)

	// DistinctProducts returns the sorted set of product names.
	DistinctProducts(ctx context.Context) ([]string, error)
}

// Store is the combined persistence interface.
type Store interface {
	RateStore
	ProductStore
}
