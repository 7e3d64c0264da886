package cart_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tariffsim/tariff-engine/internal/cart"
	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/events"
	"github.com/tariffsim/tariff-engine/internal/history"
	"github.com/tariffsim/tariff-engine/internal/model"
	"github.com/tariffsim/tariff-engine/internal/session"
)

func record(t *testing.T, l *history.Ledger, sid, product string) *model.CalculationHistoryEntry {
	t.Helper()
	e, err := l.Append(context.Background(), sid, &history.Envelope{Success: true, Data: &history.Calculation{
		Product:       product,
		ExportingFrom: "Japan",
		ImportingTo:   "Singapore",
		Quantity:      decimal.NewFromInt(10),
		Unit:          "kg",
		ProductCost:   decimal.NewFromInt(20),
		TariffRate:    decimal.NewFromInt(15),
		TotalCost:     decimal.NewFromInt(23),
		TariffType:    "AHS (with FTA)",
	}})
	require.NoError(t, err)
	return e
}

// flakySource serves reads from the ledger but fails every discard.
type flakySource struct {
	*history.Ledger
}

func (flakySource) Discard(context.Context, string, string) error {
	return errors.New("history service unavailable")
}

// brokenSource fails every read.
type brokenSource struct{}

func (brokenSource) Get(context.Context, string, string) (*model.CalculationHistoryEntry, error) {
	return nil, errors.New("connection refused")
}

func (brokenSource) Discard(context.Context, string, string) error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func TestAddToCart_MovesEntry(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	ledger := history.NewLedger(store)
	pub := &recordingPublisher{}
	c := cart.NewCoordinator(ledger, store, pub)
	e := record(t, ledger, "s1", "Rice")

	res, err := c.AddToCart(ctx, "s1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, cart.Cleaned, res.Outcome)
	assert.Equal(t, e.ID, res.Entry.ID)

	items, err := c.GetCart(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Rice", items[0].Product)

	hist, _ := ledger.List(ctx, "s1")
	assert.Empty(t, hist)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypeCartAdded, pub.events[0].Type)
}

func TestAddToCart_Dedup(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	ledger := history.NewLedger(store)
	// Keep the entry in history so the second fetch succeeds.
	c := cart.NewCoordinator(flakySource{ledger}, store, nil)
	e := record(t, ledger, "s1", "Rice")

	_, err := c.AddToCart(ctx, "s1", e.ID)
	require.NoError(t, err)

	_, err = c.AddToCart(ctx, "s1", e.ID)
	require.Error(t, err)
	assert.True(t, errs.IsClientError(err))
	assert.ErrorIs(t, err, errs.ErrBadRequest)
	assert.Equal(t, "Item already in cart", err.Error())

	items, _ := c.GetCart(ctx, "s1")
	assert.Len(t, items, 1)
}

func TestAddToCart_CleanupFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	ledger := history.NewLedger(store)
	c := cart.NewCoordinator(flakySource{ledger}, store, nil)
	e := record(t, ledger, "s1", "Rice")

	res, err := c.AddToCart(ctx, "s1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, cart.CleanupFailed, res.Outcome)

	items, _ := c.GetCart(ctx, "s1")
	require.Len(t, items, 1)
	assert.Equal(t, e.ID, items[0].ID)

	// The entry is visible in both places.
	hist, _ := ledger.List(ctx, "s1")
	require.Len(t, hist, 1)
	assert.Equal(t, e.ID, hist[0].ID)
}

func TestAddToCart_NotFound(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	c := cart.NewCoordinator(history.NewLedger(store), store, nil)

	_, err := c.AddToCart(ctx, "s1", "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, "Calculation not found in history", err.Error())

	items, _ := c.GetCart(ctx, "s1")
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestAddToCart_FetchFailureAborts(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	c := cart.NewCoordinator(brokenSource{}, store, nil)

	_, err := c.AddToCart(ctx, "s1", "c1")
	var de *errs.DataAccessError
	require.ErrorAs(t, err, &de)
	assert.False(t, errs.IsClientError(err))

	items, _ := c.GetCart(ctx, "s1")
	assert.Empty(t, items)
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	ledger := history.NewLedger(store)
	c := cart.NewCoordinator(ledger, store, nil)
	a := record(t, ledger, "s1", "Rice")
	b := record(t, ledger, "s1", "Wheat")
	_, _ = c.AddToCart(ctx, "s1", a.ID)
	_, _ = c.AddToCart(ctx, "s1", b.ID)

	err := c.RemoveFromCart(ctx, "s1", "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, c.RemoveFromCart(ctx, "s1", a.ID))
	items, _ := c.GetCart(ctx, "s1")
	require.Len(t, items, 1)
	assert.Equal(t, b.ID, items[0].ID)

	require.NoError(t, c.ClearCart(ctx, "s1"))
	items, _ = c.GetCart(ctx, "s1")
	assert.Empty(t, items)
}

// --- HTTP ---

type archive struct {
	mu    sync.Mutex
	names []string
	done  chan struct{}
}

func (a *archive) Archive(_ context.Context, name string, _ []byte) error {
	a.mu.Lock()
	a.names = append(a.names, name)
	a.mu.Unlock()
	close(a.done)
	return nil
}

func TestHandler_Flow(t *testing.T) {
	store := session.NewMemoryStore()
	ledger := history.NewLedger(store)
	arch := &archive{done: make(chan struct{})}
	h := cart.NewHandler(cart.NewCoordinator(ledger, store, nil), arch)
	r := chi.NewRouter()
	r.Use(session.Middleware)
	r.Route("/api", h.Mount)
	e := record(t, ledger, "s1", "Rice")

	do := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set(session.HeaderName, "s1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do("GET", "/api/export-cart/export")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do("GET", "/api/export-cart")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do("POST", "/api/export-cart/add/"+e.ID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Success bool   `json:"success"`
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "cleaned", body.Outcome)

	w = do("POST", "/api/export-cart/add/"+e.ID)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do("GET", "/api/export-cart/export")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "export_cart_")
	assert.True(t, strings.HasPrefix(w.Body.String(), "ID,Product,Brand"))
	assert.Contains(t, w.Body.String(), "Rice")
	<-arch.done
	arch.mu.Lock()
	assert.Len(t, arch.names, 1)
	arch.mu.Unlock()

	w = do("DELETE", "/api/export-cart/remove/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do("DELETE", "/api/export-cart/remove/"+e.ID)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do("DELETE", "/api/export-cart/clear")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
