package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tariffsim/tariff-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. Misses are not cached,
// so a rate written by the ingestion job becomes visible on the next read.
type CachedStore struct {
	primary Store
	rdb     redis.UniversalClient
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.UniversalClient, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SaveRate(ctx context.Context, e *model.RateEntry) error {
	if err := s.primary.SaveRate(ctx, e); err != nil {
		return err
	}
	s.rdb.Del(ctx, rateCacheKey(e.Country, e.Partner), countriesKey, partnersKey)
	return nil
}

func (s *CachedStore) DeleteRate(ctx context.Context, country, partner string) error {
	if err := s.primary.DeleteRate(ctx, country, partner); err != nil {
		return err
	}
	s.rdb.Del(ctx, rateCacheKey(country, partner), countriesKey, partnersKey)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) FindRate(ctx context.Context, country, partner string) (*model.RateEntry, error) {
	key := rateCacheKey(country, partner)
	var e model.RateEntry
	if s.get(ctx, key, &e) {
		return &e, nil
	}

	found, err := s.primary.FindRate(ctx, country, partner)
	if err != nil {
		return nil, err
	}
	s.set(ctx, key, found)
	return found, nil
}

func (s *CachedStore) DistinctCountries(ctx context.Context) ([]string, error) {
	return s.cachedStrings(ctx, countriesKey, s.primary.DistinctCountries)
}

func (s *CachedStore) DistinctPartners(ctx context.Context) ([]string, error) {
	return s.cachedStrings(ctx, partnersKey, s.primary.DistinctPartners)
}

func (s *CachedStore) FindProduct(ctx context.Context, name string) (*model.Product, error) {
	key := productKey(name)
	var p model.Product
	if s.get(ctx, key, &p) {
		return &p, nil
	}

	found, err := s.primary.FindProduct(ctx, name)
	if err != nil {
		return nil, err
	}
	s.set(ctx, key, found)
	return found, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListRates(ctx context.Context) ([]model.RateEntry, error) {
	return s.primary.ListRates(ctx)
}

func (s *CachedStore) DistinctProducts(ctx context.Context) ([]string, error) {
	return s.primary.DistinctProducts(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cachedStrings(ctx context.Context, key string, load func(context.Context) ([]string, error)) ([]string, error) {
	var out []string
	if s.get(ctx, key, &out) {
		return out, nil
	}
	out, err := load(ctx)
	if err != nil {
		return nil, err
	}
	s.set(ctx, key, out)
	return out, nil
}

func (s *CachedStore) get(ctx context.Context, key string, v any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (s *CachedStore) set(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

const (
	countriesKey = "tariff:countries"
	partnersKey  = "tariff:partners"
)

func rateCacheKey(country, partner string) string {
	return fmt.Sprintf("tariff:rate:%s:%s", country, partner)
}
func productKey(name string) string { return fmt.Sprintf("tariff:product:%s", name) }
