package currency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tariffsim/tariff-engine/internal/errs"
)

type stubSource struct {
	rates map[string]decimal.Decimal
	err   error
	calls int
}

func (s *stubSource) Latest(context.Context) (map[string]decimal.Decimal, error) {
	s.calls++
	return s.rates, s.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestConverter_FallbackOnly(t *testing.T) {
	c := NewConverter(nil, 0)
	ctx := context.Background()

	rate, err := c.Rate(ctx, "sgd")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("1.34")))

	rate, err = c.Rate(ctx, "")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	_, err = c.Rate(ctx, "EUR")
	assert.ErrorIs(t, err, errs.ErrValidation)

	list := c.Supported(ctx)
	require.Len(t, list, 10)
	assert.Equal(t, "USD", list[0].Code)
	assert.Equal(t, "Vietnamese Dong", list[9].Name)
	assert.Nil(t, list[0].LastUpdated)
}

func TestConverter_CachesAndRefreshes(t *testing.T) {
	src := &stubSource{rates: map[string]decimal.Decimal{"JPY": dec("150"), "AUD": dec("1.6")}}
	c := NewConverter(src, time.Hour)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	ctx := context.Background()

	rate, _ := c.Rate(ctx, "JPY")
	assert.True(t, rate.Equal(dec("150")))
	// Codes missing from the fetched table use the fallback value.
	rate, _ = c.Rate(ctx, "INR")
	assert.True(t, rate.Equal(dec("83.12")))
	assert.Equal(t, 1, src.calls)

	clock = clock.Add(2 * time.Hour)
	src.rates = nil
	src.err = errors.New("upstream down")
	rate, _ = c.Rate(ctx, "JPY")
	assert.True(t, rate.Equal(dec("150")), "last good table is kept")
	assert.Equal(t, 2, src.calls)

	rate, _ = c.Rate(ctx, "JPY")
	assert.True(t, rate.Equal(dec("150")))
	assert.Equal(t, 2, src.calls, "failed refresh is not retried within ttl")
}

func TestConverter_FailedFirstFetchUsesFallback(t *testing.T) {
	c := NewConverter(&stubSource{err: errors.New("boom")}, time.Hour)
	rate, err := c.Rate(context.Background(), "MYR")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("4.48")))
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok/latest/USD":
			w.Write([]byte(`{"result":"success","conversion_rates":{"USD":1,"SGD":1.35}}`))
		case "/bad/latest/USD":
			w.Write([]byte(`{"result":"error","error-type":"invalid-key"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	rates, err := NewHTTPSource(srv.URL+"/ok/latest/USD", time.Second).Latest(ctx)
	require.NoError(t, err)
	assert.True(t, rates["SGD"].Equal(dec("1.35")))

	_, err = NewHTTPSource(srv.URL+"/bad/latest/USD", time.Second).Latest(ctx)
	assert.ErrorContains(t, err, "error")

	_, err = NewHTTPSource(srv.URL+"/down", time.Second).Latest(ctx)
	assert.ErrorContains(t, err, "status 500")
}

func TestHandler(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(NewConverter(nil, 0)).Mount(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tariffs/exchange-rate/php", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Currency     string          `json:"currency"`
		Rate         decimal.Decimal `json:"rate"`
		BaseCurrency string          `json:"baseCurrency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PHP", body.Currency)
	assert.True(t, body.Rate.Equal(dec("56.5")))
	assert.Equal(t, "USD", body.BaseCurrency)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tariffs/exchange-rate/XYZ", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tariffs/currencies", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Currency []Info `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Currency, 10)
}
