// Package quote prices a shipment: product cost from the catalogue, the
// tariff rate from the rate table or a session override, and the duty on
// top. Each quote is recorded in the caller's history.
package quote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tariffsim/tariff-engine/internal/currency"
	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/events"
	"github.com/tariffsim/tariff-engine/internal/history"
	"github.com/tariffsim/tariff-engine/internal/metrics"
	"github.com/tariffsim/tariff-engine/internal/model"
	"github.com/tariffsim/tariff-engine/internal/store"
	"github.com/tariffsim/tariff-engine/internal/tariff"
)

// Modes.
const (
	ModeGlobal = "global"
	ModeUser   = "user"
)

// SourceSimulator marks quotes priced with a session override.
const SourceSimulator = "simulator"

var hundred = decimal.NewFromInt(100)

// Resolver looks up the effective rate for a route.
type Resolver interface {
	Resolve(ctx context.Context, reporter, partner string) (tariff.Resolution, error)
}

// OverrideSource lists a session's simulated definitions.
type OverrideSource interface {
	List(ctx context.Context, sessionID string) ([]model.TariffDefinition, error)
}

// Converter turns USD amounts into a display currency.
type Converter interface {
	Rate(ctx context.Context, code string) (decimal.Decimal, error)
}

// Recorder appends a quote to the session's history.
type Recorder interface {
	Append(ctx context.Context, sessionID string, env *history.Envelope) (*model.CalculationHistoryEntry, error)
}

// Request is one quote.
type Request struct {
	Product       string
	ExportingFrom string
	ImportingTo   string
	Quantity      decimal.Decimal
	// CustomCost overrides the catalogue unit cost when non-empty.
	CustomCost   string
	Mode         string
	UserTariffID string
	// Currency is the display currency; blank means USD.
	Currency string
}

// BreakdownItem is one line of the cost breakdown.
type BreakdownItem struct {
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Rate        string          `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// Result is a priced quote.
type Result struct {
	Product       string          `json:"product"`
	Brand         string          `json:"brand"`
	ExportingFrom string          `json:"exportingFrom"`
	ImportingTo   string          `json:"importingTo"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit"`
	ProductCost   decimal.Decimal `json:"productCost"`
	TotalCost     decimal.Decimal `json:"totalCost"`
	TariffRate    decimal.Decimal `json:"tariffRate"`
	TariffType    string          `json:"tariffType"`
	Source        string          `json:"source"`
	Currency      string          `json:"currency"`
	ExchangeRate  decimal.Decimal `json:"exchangeRate"`
	Breakdown     []BreakdownItem `json:"breakdown"`
	// HistoryID is empty when recording failed.
	HistoryID string `json:"historyId,omitempty"`
}

// Calculator prices quotes.
type Calculator struct {
	rates     Resolver
	overrides OverrideSource
	products  store.ProductStore
	recorder  Recorder
	publisher events.Publisher
	fx        Converter
}

// NewCalculator wires a calculator. recorder and publisher may be nil; a
// nil fx converts with the built-in fallback rates.
func NewCalculator(rates Resolver, overrides OverrideSource, products store.ProductStore, recorder Recorder, publisher events.Publisher, fx Converter) *Calculator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if fx == nil {
		fx = currency.NewConverter(nil, 0)
	}
	return &Calculator{
		rates:     rates,
		overrides: overrides,
		products:  products,
		recorder:  recorder,
		publisher: publisher,
		fx:        fx,
	}
}

// Calculate prices req for the given session.
func (c *Calculator) Calculate(ctx context.Context, sessionID string, req Request) (*Result, error) {
	start := time.Now()
	req.Product = strings.TrimSpace(req.Product)
	req.ExportingFrom = strings.TrimSpace(req.ExportingFrom)
	req.ImportingTo = strings.TrimSpace(req.ImportingTo)
	mode := ModeGlobal
	if strings.EqualFold(req.Mode, ModeUser) {
		mode = ModeUser
	}

	if err := validate(req); err != nil {
		return nil, err
	}
	code, err := currency.Normalize(req.Currency)
	if err != nil {
		return nil, err
	}
	fxRate, err := c.fx.Rate(ctx, code)
	if err != nil {
		return nil, err
	}
	product, err := c.products.FindProduct(ctx, req.Product)
	if err != nil {
		return nil, err
	}
	unitCost, err := unitCost(product, req.CustomCost)
	if err != nil {
		return nil, err
	}

	var (
		rate   decimal.Decimal
		typ    model.TariffType
		label  string
		source = history.SourceGlobal
	)
	if mode == ModeUser {
		def, err := c.findOverride(ctx, sessionID, req)
		if err != nil {
			return nil, err
		}
		rate, typ = def.Rate, def.Type
		label = string(def.Type) + " (user-defined)"
		source = SourceSimulator
	} else {
		res, err := c.rates.Resolve(ctx, req.ImportingTo, req.ExportingFrom)
		if err != nil {
			if errs.IsNotFound(err) {
				return nil, errs.NotFound(fmt.Sprintf("Tariff data not available for %s → %s", req.ExportingFrom, req.ImportingTo))
			}
			return nil, err
		}
		rate, typ = res.Rate, res.Type
		label = "MFN (no FTA)"
		if res.Preferential {
			label = "AHS (with FTA)"
		}
	}

	productCost := unitCost.Mul(req.Quantity).Mul(fxRate)
	duty := productCost.Mul(rate).Div(hundred)
	result := &Result{
		Product:       product.Name,
		Brand:         product.Brand,
		ExportingFrom: req.ExportingFrom,
		ImportingTo:   req.ImportingTo,
		Quantity:      req.Quantity,
		Unit:          product.Unit,
		ProductCost:   productCost,
		TotalCost:     productCost.Add(duty),
		TariffRate:    rate,
		TariffType:    label,
		Source:        source,
		Currency:      code,
		ExchangeRate:  fxRate,
		Breakdown: []BreakdownItem{
			{Description: "Product Cost", Type: "Base Cost", Rate: "100%", Amount: productCost},
			{Description: "Import Tariff (" + string(typ) + ")", Type: "Tariff", Rate: rate.StringFixed(2) + "%", Amount: duty},
		},
	}

	c.record(ctx, sessionID, result)
	events.Emit(ctx, c.publisher, events.Event{Type: events.TypeQuoted, SessionID: sessionID, Payload: result})
	metrics.QuotesTotal.WithLabelValues(mode, string(typ)).Inc()
	metrics.QuoteLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	return result, nil
}

// findOverride picks the session definition named by UserTariffID, or the
// first one for the same product and route when no id is given.
func (c *Calculator) findOverride(ctx context.Context, sessionID string, req Request) (model.TariffDefinition, error) {
	defs, err := c.overrides.List(ctx, sessionID)
	if err != nil {
		return model.TariffDefinition{}, err
	}
	for _, d := range defs {
		if req.UserTariffID != "" && d.ID != req.UserTariffID {
			continue
		}
		if d.Product == req.Product && d.ExportingFrom == req.ExportingFrom && d.ImportingTo == req.ImportingTo {
			return d, nil
		}
		if req.UserTariffID != "" {
			break
		}
	}
	return model.TariffDefinition{}, errs.NotFound("Selected user-defined tariff not found or not applicable")
}

// record appends the quote to history. Failures are logged only.
func (c *Calculator) record(ctx context.Context, sessionID string, r *Result) {
	if c.recorder == nil {
		return
	}
	entry, err := c.recorder.Append(ctx, sessionID, &history.Envelope{Success: true, Data: &history.Calculation{
		Product:       r.Product,
		Brand:         r.Brand,
		ExportingFrom: r.ExportingFrom,
		ImportingTo:   r.ImportingTo,
		Quantity:      r.Quantity,
		Unit:          r.Unit,
		ProductCost:   r.ProductCost,
		TariffRate:    r.TariffRate,
		TotalCost:     r.TotalCost,
		TariffType:    r.TariffType,
		Source:        r.Source,
		Currency:      r.Currency,
	}})
	if err != nil {
		slog.Warn("quote: failed to record history", "session", sessionID, "err", err)
		return
	}
	if entry != nil {
		r.HistoryID = entry.ID
	}
}

func validate(req Request) error {
	switch {
	case req.Product == "":
		return errs.Validation("Product name is required")
	case req.ExportingFrom == "":
		return errs.Validation("Exporting country is required")
	case req.ImportingTo == "":
		return errs.Validation("Importing country is required")
	case !req.Quantity.IsPositive():
		return errs.Validation("Quantity must be greater than 0")
	}
	return nil
}

func unitCost(p *model.Product, custom string) (decimal.Decimal, error) {
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return p.UnitCost, nil
	}
	v, err := decimal.NewFromString(custom)
	if err != nil {
		return decimal.Zero, errs.Validation("Invalid custom cost format: " + custom)
	}
	if v.IsNegative() {
		return decimal.Zero, errs.Validation("Custom cost must not be negative")
	}
	return v, nil
}
