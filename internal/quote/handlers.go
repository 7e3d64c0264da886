package quote

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/httpx"
	"github.com/tariffsim/tariff-engine/internal/session"
)

// Handler serves GET /api/tariff and POST /api/tariffs/compare.
type Handler struct {
	calc *Calculator
}

// NewHandler creates the quote endpoint.
func NewHandler(calc *Calculator) *Handler {
	return &Handler{calc: calc}
}

// Mount registers the route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/tariff", h.Quote)
	r.Post("/tariffs/compare", h.Compare)
}

// Quote handles GET /api/tariff?product=&exportingFrom=&importingTo=&quantity=&currency=
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty, err := decimal.NewFromString(strings.TrimSpace(q.Get("quantity")))
	if err != nil {
		httpx.Fail(w, r, errs.Validation("Quantity must be greater than 0"))
		return
	}

	res, err := h.calc.Calculate(r.Context(), session.ID(r.Context()), Request{
		Product:       q.Get("product"),
		ExportingFrom: q.Get("exportingFrom"),
		ImportingTo:   q.Get("importingTo"),
		Quantity:      qty,
		CustomCost:    q.Get("customCost"),
		Mode:          q.Get("mode"),
		UserTariffID:  q.Get("userTariffId"),
		Currency:      q.Get("currency"),
	})
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": res})
}

// Compare handles POST /api/tariffs/compare.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	res, err := h.calc.Compare(r.Context(), session.ID(r.Context()), req)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": res})
}
