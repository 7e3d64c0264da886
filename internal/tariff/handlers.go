package tariff

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/httpx"
	"github.com/tariffsim/tariff-engine/internal/store"
)

// Handler exposes the registry over HTTP.
type Handler struct {
	registry *Registry
	products store.ProductStore
}

// NewHandler creates the rate endpoints.
func NewHandler(registry *Registry, products store.ProductStore) *Handler {
	return &Handler{registry: registry, products: products}
}

// Mount registers the rate routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/tariff-rate", h.Resolve)
	r.Get("/countries", h.Countries)
	r.Get("/partners", h.Partners)
	r.Route("/tariff-definitions", func(r chi.Router) {
		r.Get("/global", h.ListGlobal)
		r.Get("/modified", h.ListModified)
		r.Post("/modified", h.AddModified)
		r.Put("/modified/{id}", h.UpdateModified)
		r.Delete("/modified/{id}", h.DeleteModified)
	})
}

// Resolve handles GET /api/tariff-rate?reporter=&partner=
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	reporter := strings.TrimSpace(r.URL.Query().Get("reporter"))
	partner := strings.TrimSpace(r.URL.Query().Get("partner"))
	if reporter == "" || partner == "" {
		httpx.WriteError(w, "reporter and partner are required", http.StatusBadRequest)
		return
	}

	res, err := h.registry.Resolve(r.Context(), reporter, partner)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// ListGlobal handles GET /api/tariff-definitions/global
func (h *Handler) ListGlobal(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.DistinctProducts(r.Context())
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	defs, err := h.registry.ListDefinitions(r.Context(), products)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": defs})
}

// ListModified handles GET /api/tariff-definitions/modified
func (h *Handler) ListModified(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": h.registry.AdminOverrides()})
}

// AddModified handles POST /api/tariff-definitions/modified
func (h *Handler) AddModified(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	def, err := h.registry.AddAdminOverride(r.Context(), req)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "data": def})
}

// UpdateModified handles PUT /api/tariff-definitions/modified/{id}
func (h *Handler) UpdateModified(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	def, err := h.registry.UpdateAdminOverride(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": def})
}

// DeleteModified handles DELETE /api/tariff-definitions/modified/{id}
func (h *Handler) DeleteModified(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteAdminOverride(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Countries handles GET /api/countries
func (h *Handler) Countries(w http.ResponseWriter, r *http.Request) {
	h.writeStrings(w, r, h.registry.Countries)
}

// Partners handles GET /api/partners
func (h *Handler) Partners(w http.ResponseWriter, r *http.Request) {
	h.writeStrings(w, r, h.registry.Partners)
}

func (h *Handler) writeStrings(w http.ResponseWriter, r *http.Request, load func(ctx context.Context) ([]string, error)) {
	out, err := load(r.Context())
	if err != nil {
		httpx.Fail(w, r, errs.DataAccess("list", err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
