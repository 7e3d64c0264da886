package history_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tariffsim/tariff-engine/internal/history"
	"github.com/tariffsim/tariff-engine/internal/model"
	"github.com/tariffsim/tariff-engine/internal/session"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func calc(product string) *history.Envelope {
	return &history.Envelope{Success: true, Data: &history.Calculation{
		Product:       product,
		ExportingFrom: "Japan",
		ImportingTo:   "Singapore",
		Quantity:      d(10),
		Unit:          "kg",
		ProductCost:   d(20),
		TariffRate:    d(15),
		TotalCost:     d(23),
		TariffType:    "AHS (with FTA)",
	}}
}

func TestAppend_DerivesTariffAmount(t *testing.T) {
	l := history.NewLedger(session.NewMemoryStore())
	env := calc("Rice")
	env.Data.TariffAmount = d(999)

	entry, err := l.Append(context.Background(), "s1", env)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.TariffAmount.Equal(d(3)), "tariffAmount = %s", entry.TariffAmount)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, history.SourceGlobal, entry.Source)

	stored, err := l.Get(context.Background(), "s1", entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.TariffAmount.Equal(d(3)))
}

func TestAppend_MissingPayloadIsNoop(t *testing.T) {
	ctx := context.Background()
	l := history.NewLedger(session.NewMemoryStore())

	entry, err := l.Append(ctx, "s1", nil)
	assert.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = l.Append(ctx, "s1", &history.Envelope{Success: true})
	assert.NoError(t, err)
	assert.Nil(t, entry)

	list, _ := l.List(ctx, "s1")
	assert.Empty(t, list)
}

func TestAppend_CapAndOrder(t *testing.T) {
	ctx := context.Background()
	l := history.NewLedger(session.NewMemoryStore())

	var first, last *model.CalculationHistoryEntry
	for i := 0; i < 101; i++ {
		e, err := l.Append(ctx, "s1", calc(fmt.Sprintf("p%03d", i)))
		require.NoError(t, err)
		if i == 0 {
			first = e
		}
		last = e
	}

	list, err := l.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, history.MaxEntries)
	assert.Equal(t, last.ID, list[0].ID)
	assert.Equal(t, "p100", list[0].Product)
	assert.Equal(t, "p001", list[99].Product)

	gone, err := l.Get(ctx, "s1", first.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRemoveAndDiscard(t *testing.T) {
	ctx := context.Background()
	l := history.NewLedger(session.NewMemoryStore())
	e, _ := l.Append(ctx, "s1", calc("Rice"))

	removed, err := l.Remove(ctx, "s1", "nope")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, l.Discard(ctx, "s1", "nope"))

	removed, err = l.Remove(ctx, "s1", e.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	require.NoError(t, l.Discard(ctx, "s1", e.ID))
	list, _ := l.List(ctx, "s1")
	assert.Empty(t, list)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	l := history.NewLedger(session.NewMemoryStore())
	_, _ = l.Append(ctx, "s1", calc("Rice"))
	_, _ = l.Append(ctx, "s2", calc("Rice"))

	require.NoError(t, l.Clear(ctx, "s1"))
	a, _ := l.List(ctx, "s1")
	b, _ := l.List(ctx, "s2")
	assert.Empty(t, a)
	assert.Len(t, b, 1)
}

// --- HTTP ---

func newRouter() chi.Router {
	h := history.NewHandler(history.NewLedger(session.NewMemoryStore()))
	r := chi.NewRouter()
	r.Use(session.Middleware)
	r.Route("/api", h.Mount)
	return r
}

func send(r http.Handler, method, path, sid string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(session.HeaderName, sid)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_SaveStatuses(t *testing.T) {
	r := newRouter()

	w := send(r, "POST", "/api/tariff/history/save", "s1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send(r, "POST", "/api/tariff/history/save", "s1", map[string]any{
		"calculationData": map[string]any{"success": false},
	})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = send(r, "POST", "/api/tariff/history/save", "s1", history.SaveRequest{CalculationData: calc("Rice")})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var entry model.CalculationHistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.True(t, entry.TariffAmount.Equal(d(3)))
}

func TestHandler_CrossSessionAccess(t *testing.T) {
	r := newRouter()
	w := send(r, "POST", "/api/tariff/history/save", "owner", history.SaveRequest{CalculationData: calc("Rice")})
	require.Equal(t, http.StatusCreated, w.Code)
	var entry model.CalculationHistoryEntry
	json.Unmarshal(w.Body.Bytes(), &entry)

	// Another caller can only see it by naming the owning session.
	w = send(r, "GET", "/api/tariff/history/"+entry.ID, "other", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = send(r, "GET", "/api/tariff/history/"+entry.ID+"?sessionId=owner", "other", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Cross-service removal of an absent id is a no-op.
	w = send(r, "DELETE", "/api/tariff/history/missing?sessionId=owner", "other", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	// Direct removal of an absent id is a 404.
	w = send(r, "DELETE", "/api/tariff/history/missing", "owner", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = send(r, "DELETE", "/api/tariff/history/"+entry.ID, "owner", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = send(r, "GET", "/api/tariff/history", "owner", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandler_Clear(t *testing.T) {
	r := newRouter()
	send(r, "POST", "/api/tariff/history/save", "s1", history.SaveRequest{CalculationData: calc("Rice")})

	w := send(r, "DELETE", "/api/tariff/history/clear", "s1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = send(r, "GET", "/api/tariff/history", "s1", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}
