// Package currency converts USD amounts into the display currencies the
// quote endpoints accept. Rates come from an exchange rate API when one is
// configured and fall back to a fixed table otherwise.
package currency

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/metrics"
)

// Base is the currency every catalogue price is held in.
const Base = "USD"

// DefaultCacheTTL is how long a fetched rate table is reused.
const DefaultCacheTTL = time.Hour

var codes = []string{"USD", "AUD", "INR", "CNY", "JPY", "SGD", "PHP", "IDR", "MYR", "VND"}

var names = map[string]string{
	"USD": "US Dollar",
	"AUD": "Australian Dollar",
	"INR": "Indian Rupee",
	"CNY": "Chinese Yuan",
	"JPY": "Japanese Yen",
	"SGD": "Singapore Dollar",
	"PHP": "Philippine Peso",
	"IDR": "Indonesian Rupiah",
	"MYR": "Malaysian Ringgit",
	"VND": "Vietnamese Dong",
}

var fallback = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"AUD": decimal.RequireFromString("1.52"),
	"INR": decimal.RequireFromString("83.12"),
	"CNY": decimal.RequireFromString("7.25"),
	"JPY": decimal.RequireFromString("149.50"),
	"SGD": decimal.RequireFromString("1.34"),
	"PHP": decimal.RequireFromString("56.50"),
	"IDR": decimal.NewFromInt(15750),
	"MYR": decimal.RequireFromString("4.48"),
	"VND": decimal.NewFromInt(24350),
}

// Source fetches USD-based conversion rates keyed by ISO code.
type Source interface {
	Latest(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Info describes one supported currency.
type Info struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Rate        decimal.Decimal `json:"rate"`
	LastUpdated *time.Time      `json:"lastUpdated"`
}

// Converter caches the rate table from a Source.
type Converter struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	rates   map[string]decimal.Decimal
	fetched time.Time
}

// NewConverter creates a converter. A nil source means only the fallback
// table is used.
func NewConverter(source Source, ttl time.Duration) *Converter {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Converter{source: source, ttl: ttl, now: time.Now}
}

// Normalize upper-cases code and maps blank to Base. Unsupported codes are
// a validation error.
func Normalize(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Base, nil
	}
	if _, ok := names[code]; !ok {
		return "", errs.Validation("Unsupported currency: " + code)
	}
	return code, nil
}

// Rate returns how many units of code one USD buys.
func (c *Converter) Rate(ctx context.Context, code string) (decimal.Decimal, error) {
	code, err := Normalize(code)
	if err != nil {
		return decimal.Zero, err
	}
	if code == Base {
		return fallback[Base], nil
	}
	rates, _ := c.table(ctx)
	return pick(rates, code), nil
}

// Supported lists every accepted currency with its current rate.
// LastUpdated is nil while only fallback rates are known.
func (c *Converter) Supported(ctx context.Context) []Info {
	rates, at := c.table(ctx)
	out := make([]Info, 0, len(codes))
	for _, code := range codes {
		info := Info{Code: code, Name: names[code], Rate: pick(rates, code)}
		if !at.IsZero() {
			t := at.UTC()
			info.LastUpdated = &t
		}
		out = append(out, info)
	}
	return out
}

func pick(rates map[string]decimal.Decimal, code string) decimal.Decimal {
	if r, ok := rates[code]; ok && r.IsPositive() {
		return r
	}
	return fallback[code]
}

// table returns the cached rates, refreshing them when stale. A failed
// refresh keeps the previous table and is retried after the next ttl.
func (c *Converter) table(ctx context.Context) (map[string]decimal.Decimal, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source == nil {
		return nil, time.Time{}
	}
	now := c.now()
	if c.rates != nil && now.Sub(c.fetched) < c.ttl {
		return c.rates, c.fetched
	}

	rates, err := c.source.Latest(ctx)
	if err != nil || len(rates) == 0 {
		metrics.CurrencyRefreshes.WithLabelValues("error").Inc()
		slog.Warn("currency: rate refresh failed, using cached or fallback rates", "err", err)
		if c.rates == nil {
			return nil, time.Time{}
		}
		c.fetched = now
		return c.rates, c.fetched
	}
	metrics.CurrencyRefreshes.WithLabelValues("ok").Inc()
	c.rates = rates
	c.fetched = now
	return c.rates, c.fetched
}
