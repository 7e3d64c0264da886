package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Rows are keyed like the rate table: (country, partner, hsCode, year).
// Reads by pair see the most recent year, ties broken by lowest hsCode.
type MemoryStore struct {
	mu       sync.RWMutex
	rates    map[string]map[string]model.RateEntry // pair -> variant -> row
	products []model.Product
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rates: make(map[string]map[string]model.RateEntry),
	}
}

func pairKey(country, partner string) string { return country + "\x00" + partner }

func variantKey(e *model.RateEntry) string { return fmt.Sprintf("%s\x00%d", e.HSCode, e.Year) }

// latest picks the row a pair read returns. Must be called with s.mu held.
func latest(rows map[string]model.RateEntry) (model.RateEntry, bool) {
	var best model.RateEntry
	found := false
	for _, e := range rows {
		if !found || e.Year > best.Year || (e.Year == best.Year && e.HSCode < best.HSCode) {
			best, found = e, true
		}
	}
	return best, found
}

func (s *MemoryStore) FindRate(_ context.Context, country, partner string) (*model.RateEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := latest(s.rates[pairKey(country, partner)])
	if !ok {
		return nil, errs.NotFound(fmt.Sprintf("no tariff rate for country: %s, partner: %s", country, partner))
	}
	return &e, nil
}

func (s *MemoryStore) SaveRate(_ context.Context, e *model.RateEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pairKey(e.Country, e.Partner)
	rows, ok := s.rates[k]
	if !ok {
		rows = make(map[string]model.RateEntry)
		s.rates[k] = rows
	}
	rows[variantKey(e)] = *e
	return nil
}

// DeleteRate removes every row of the pair.
func (s *MemoryStore) DeleteRate(_ context.Context, country, partner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rates, pairKey(country, partner))
	return nil
}

// ListRates returns the most recent row per pair, sorted by country then partner.
func (s *MemoryStore) ListRates(_ context.Context) ([]model.RateEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RateEntry, 0, len(s.rates))
	for _, rows := range s.rates {
		if e, ok := latest(rows); ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Country != out[j].Country {
			return out[i].Country < out[j].Country
		}
		return out[i].Partner < out[j].Partner
	})
	return out, nil
}

func (s *MemoryStore) DistinctCountries(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distinct(func(e model.RateEntry) string { return e.Country }), nil
}

func (s *MemoryStore) DistinctPartners(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distinct(func(e model.RateEntry) string { return e.Partner }), nil
}

// distinct must be called with s.mu held.
func (s *MemoryStore) distinct(field func(model.RateEntry) string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, rows := range s.rates {
		e, ok := latest(rows)
		if !ok {
			continue
		}
		v := field(e)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// AddProduct appends a product to the catalogue.
func (s *MemoryStore) AddProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, p)
}

func (s *MemoryStore) FindProduct(_ context.Context, name string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Name == name {
			p := p
			return &p, nil
		}
	}
	return nil, errs.NotFound("Product not found: " + name)
}

func (s *MemoryStore) DistinctProducts(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	out := []string{}
	for _, p := range s.products {
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out, nil
}
