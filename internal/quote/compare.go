package quote

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tariffsim/tariff-engine/internal/currency"
	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/events"
	"github.com/tariffsim/tariff-engine/internal/metrics"
	"github.com/tariffsim/tariff-engine/internal/model"
)

// CompareRequest prices one shipment against several destinations.
type CompareRequest struct {
	Product       string              `json:"product"`
	Brand         string              `json:"brand"`
	ExportingFrom string              `json:"exportingFrom"`
	ImportingTo   []string            `json:"importingToCountries"`
	Quantity      decimal.Decimal     `json:"quantity"`
	CustomCost    decimal.NullDecimal `json:"customCost"`
	Currency      string              `json:"currency"`
}

// CountryComparison is one destination in a comparison.
type CountryComparison struct {
	Country      string           `json:"country"`
	TariffRate   decimal.Decimal  `json:"tariffRate"`
	TariffType   model.TariffType `json:"tariffType"`
	ProductCost  decimal.Decimal  `json:"productCost"`
	TariffAmount decimal.Decimal  `json:"tariffAmount"`
	TotalCost    decimal.Decimal  `json:"totalCost"`
	HasFTA       bool             `json:"hasFTA"`
	Rank         int              `json:"rank"`
}

// ChartData holds the comparison as parallel series, in rank order.
type ChartData struct {
	Countries     []string           `json:"countries"`
	TariffRates   []decimal.Decimal  `json:"tariffRates"`
	TariffAmounts []decimal.Decimal  `json:"tariffAmounts"`
	TotalCosts    []decimal.Decimal  `json:"totalCosts"`
	TariffTypes   []model.TariffType `json:"tariffTypes"`
}

// Comparison is the result of Compare.
type Comparison struct {
	Product            string              `json:"product"`
	Brand              string              `json:"brand"`
	ExportingFrom      string              `json:"exportingFrom"`
	Quantity           decimal.Decimal     `json:"quantity"`
	Unit               string              `json:"unit"`
	ProductCostPerUnit decimal.Decimal     `json:"productCostPerUnit"`
	Currency           string              `json:"currency"`
	ExchangeRate       decimal.Decimal     `json:"exchangeRate"`
	Comparisons        []CountryComparison `json:"comparisons"`
	ChartData          ChartData           `json:"chartData"`
}

// Compare prices req against every listed destination using the global
// rate table, cheapest first. Destinations without a rate row are left
// out; if none remain the result is NotFound. Comparisons are not recorded
// in history.
func (c *Calculator) Compare(ctx context.Context, sessionID string, req CompareRequest) (*Comparison, error) {
	req.Product = strings.TrimSpace(req.Product)
	req.Brand = strings.TrimSpace(req.Brand)
	req.ExportingFrom = strings.TrimSpace(req.ExportingFrom)
	countries := dedupe(req.ImportingTo)

	switch {
	case req.Product == "":
		return nil, errs.Validation("Product is required")
	case req.ExportingFrom == "":
		return nil, errs.Validation("Exporting country is required")
	case len(countries) == 0:
		return nil, errs.Validation("At least one importing country is required")
	case !req.Quantity.IsPositive():
		return nil, errs.Validation("Quantity must be greater than 0")
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
	if req.Brand != "" && !strings.EqualFold(product.Brand, req.Brand) {
		return nil, errs.NotFound("Product not found: " + req.Product + " - " + req.Brand)
	}
	unit := product.UnitCost
	if req.CustomCost.Valid {
		if req.CustomCost.Decimal.IsNegative() {
			return nil, errs.Validation("Custom cost must not be negative")
		}
		unit = req.CustomCost.Decimal
	}
	productCost := unit.Mul(req.Quantity).Mul(fxRate)

	rows := make([]CountryComparison, 0, len(countries))
	for _, country := range countries {
		res, err := c.rates.Resolve(ctx, country, req.ExportingFrom)
		if errs.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		duty := productCost.Mul(res.Rate).Div(hundred)
		rows = append(rows, CountryComparison{
			Country:      country,
			TariffRate:   res.Rate,
			TariffType:   res.Type,
			ProductCost:  productCost,
			TariffAmount: duty,
			TotalCost:    productCost.Add(duty),
			HasFTA:       res.Preferential,
		})
	}
	if len(rows) == 0 {
		return nil, errs.NotFound("No tariff data available for the selected countries")
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalCost.LessThan(rows[j].TotalCost) })
	var chart ChartData
	for i := range rows {
		rows[i].Rank = i + 1
		chart.Countries = append(chart.Countries, rows[i].Country)
		chart.TariffRates = append(chart.TariffRates, rows[i].TariffRate)
		chart.TariffAmounts = append(chart.TariffAmounts, rows[i].TariffAmount)
		chart.TotalCosts = append(chart.TotalCosts, rows[i].TotalCost)
		chart.TariffTypes = append(chart.TariffTypes, rows[i].TariffType)
	}

	out := &Comparison{
		Product:            product.Name,
		Brand:              product.Brand,
		ExportingFrom:      req.ExportingFrom,
		Quantity:           req.Quantity,
		Unit:               product.Unit,
		ProductCostPerUnit: unit.Mul(fxRate),
		Currency:           code,
		ExchangeRate:       fxRate,
		Comparisons:        rows,
		ChartData:          chart,
	}
	events.Emit(ctx, c.publisher, events.Event{Type: events.TypeCompared, SessionID: sessionID, Payload: out})
	metrics.ComparisonsTotal.Inc()
	return out, nil
}

// dedupe trims names and drops blanks and repeats, keeping first order.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
