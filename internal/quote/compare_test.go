package quote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/model"
	"github.com/tariffsim/tariff-engine/internal/quote"
	"github.com/tariffsim/tariff-engine/internal/session"
)

func TestCalculate_ConvertsCurrency(t *testing.T) {
	f := newFixture(t)
	res, err := f.calc.Calculate(context.Background(), "s1", quote.Request{
		Product: "Rice", ExportingFrom: "Japan", ImportingTo: "Singapore", Quantity: d("10"), Currency: "sgd",
	})
	require.NoError(t, err)

	// 20 USD at the fallback rate of 1.34 SGD.
	assert.Equal(t, "SGD", res.Currency)
	assert.True(t, res.ExchangeRate.Equal(d("1.34")))
	assert.True(t, res.ProductCost.Equal(d("26.8")))
	assert.True(t, res.TotalCost.Equal(d("28.14")))
	assert.True(t, res.Breakdown[1].Amount.Equal(d("1.34")))

	list, _ := f.ledger.List(context.Background(), "s1")
	require.Len(t, list, 1)
	assert.Equal(t, "SGD", list[0].Currency)
	assert.True(t, list[0].TariffAmount.Equal(d("1.34")))

	_, err = f.calc.Calculate(context.Background(), "s1", quote.Request{
		Product: "Rice", ExportingFrom: "Japan", ImportingTo: "Singapore", Quantity: d("1"), Currency: "EUR",
	})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestCompare_RanksDestinations(t *testing.T) {
	f := newFixture(t)
	res, err := f.calc.Compare(context.Background(), "s1", quote.CompareRequest{
		Product:       "Rice",
		ExportingFrom: "Japan",
		ImportingTo:   []string{"USA", "Australia", " Singapore ", "USA", ""},
		Quantity:      d("10"),
	})
	require.NoError(t, err)

	require.Len(t, res.Comparisons, 2, "Australia has no rate row and the repeat is dropped")
	first, second := res.Comparisons[0], res.Comparisons[1]
	assert.Equal(t, "Singapore", first.Country)
	assert.Equal(t, 1, first.Rank)
	assert.True(t, first.HasFTA)
	assert.Equal(t, model.AHS, first.TariffType)
	assert.True(t, first.TotalCost.Equal(d("21")))

	assert.Equal(t, "USA", second.Country)
	assert.Equal(t, 2, second.Rank)
	assert.False(t, second.HasFTA)
	assert.True(t, second.TariffRate.Equal(d("12.5")))
	assert.True(t, second.TariffAmount.Equal(d("2.5")))
	assert.True(t, second.TotalCost.Equal(d("22.5")))

	assert.Equal(t, []string{"Singapore", "USA"}, res.ChartData.Countries)
	assert.Equal(t, []model.TariffType{model.AHS, model.MFN}, res.ChartData.TariffTypes)
	assert.Equal(t, "USD", res.Currency)
	assert.True(t, res.ProductCostPerUnit.Equal(d("2")))
	assert.Equal(t, "kg", res.Unit)

	list, _ := f.ledger.List(context.Background(), "s1")
	assert.Empty(t, list, "comparisons are not recorded")
}

func TestCompare_CustomCostAndCurrency(t *testing.T) {
	f := newFixture(t)
	res, err := f.calc.Compare(context.Background(), "s1", quote.CompareRequest{
		Product:       "Rice",
		Brand:         "golden",
		ExportingFrom: "Japan",
		ImportingTo:   []string{"USA"},
		Quantity:      d("2"),
		CustomCost:    decimal.NewNullDecimal(d("10")),
		Currency:      "JPY",
	})
	require.NoError(t, err)
	// 20 USD at 149.50 JPY.
	assert.True(t, res.Comparisons[0].ProductCost.Equal(d("2990")))
	assert.True(t, res.ProductCostPerUnit.Equal(d("1495")))
	assert.Equal(t, "JPY", res.Currency)
}

func TestCompare_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := quote.CompareRequest{Product: "Rice", ExportingFrom: "Japan", ImportingTo: []string{"USA"}, Quantity: d("1")}

	cases := map[string]struct {
		mutate func(r *quote.CompareRequest)
		want   error
		msg    string
	}{
		"blank product":   {func(r *quote.CompareRequest) { r.Product = "" }, errs.ErrValidation, "Product is required"},
		"blank exporter":  {func(r *quote.CompareRequest) { r.ExportingFrom = " " }, errs.ErrValidation, "Exporting country is required"},
		"no destinations": {func(r *quote.CompareRequest) { r.ImportingTo = []string{" "} }, errs.ErrValidation, "At least one importing country is required"},
		"zero quantity":   {func(r *quote.CompareRequest) { r.Quantity = decimal.Zero }, errs.ErrValidation, "Quantity must be greater than 0"},
		"bad currency":    {func(r *quote.CompareRequest) { r.Currency = "XYZ" }, errs.ErrValidation, "Unsupported currency"},
		"unknown product": {func(r *quote.CompareRequest) { r.Product = "Gold" }, errs.ErrNotFound, "Product not found"},
		"wrong brand":     {func(r *quote.CompareRequest) { r.Brand = "Other" }, errs.ErrNotFound, "Product not found: Rice - Other"},
		"no rate rows": {func(r *quote.CompareRequest) { r.ImportingTo = []string{"Brazil", "Chile"} },
			errs.ErrNotFound, "No tariff data available for the selected countries"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := f.calc.Compare(ctx, "s1", req)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestHandler_Compare(t *testing.T) {
	f := newFixture(t)
	r := chi.NewRouter()
	r.Use(session.Middleware)
	r.Route("/api", quote.NewHandler(f.calc).Mount)

	body := `{"product":"Rice","exportingFrom":"Japan","importingToCountries":["USA","Singapore"],"quantity":10}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/tariffs/compare", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool             `json:"success"`
		Data    quote.Comparison `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"Singapore", "USA"}, resp.Data.ChartData.Countries)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/tariffs/compare", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
