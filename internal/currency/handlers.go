package currency

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tariffsim/tariff-engine/internal/httpx"
)

// Handler serves the currency listing and single-rate lookups.
type Handler struct {
	conv *Converter
}

// NewHandler creates the currency endpoints.
func NewHandler(conv *Converter) *Handler {
	return &Handler{conv: conv}
}

// Mount registers the routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/tariffs/currencies", h.List)
	r.Get("/tariffs/exchange-rate/{currency}", h.ExchangeRate)
}

// List handles GET /api/tariffs/currencies.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"currency": h.conv.Supported(r.Context())})
}

// ExchangeRate handles GET /api/tariffs/exchange-rate/{currency}.
func (h *Handler) ExchangeRate(w http.ResponseWriter, r *http.Request) {
	code, err := Normalize(chi.URLParam(r, "currency"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	rate, err := h.conv.Rate(r.Context(), code)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"currency":     code,
		"rate":         rate,
		"baseCurrency": Base,
	})
}
