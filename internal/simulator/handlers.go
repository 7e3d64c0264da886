package simulator

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tariffsim/tariff-engine/internal/httpx"
	"github.com/tariffsim/tariff-engine/internal/model"
	"github.com/tariffsim/tariff-engine/internal/session"
)

// Handler exposes the session's user-defined tariffs.
type Handler struct {
	store *Store
}

// NewHandler creates the simulator endpoints.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Mount registers the routes under /tariff-definitions/user.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/tariff-definitions/user", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Save)
		r.Delete("/", h.Clear)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// List handles GET /api/tariff-definitions/user
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	defs, err := h.store.List(r.Context(), session.ID(r.Context()))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": defs})
}

// Save handles POST /api/tariff-definitions/user
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var def model.TariffDefinition
	if err := httpx.DecodeJSON(r, &def); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	saved, err := h.store.Save(r.Context(), session.ID(r.Context()), def)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": saved})
}

// Get handles GET /api/tariff-definitions/user/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	def, err := h.store.Get(r.Context(), session.ID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": def})
}

// Update handles PUT /api/tariff-definitions/user/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var def model.TariffDefinition
	if err := httpx.DecodeJSON(r, &def); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	updated, err := h.store.Update(r.Context(), session.ID(r.Context()), chi.URLParam(r, "id"), def)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": updated})
}

// Delete handles DELETE /api/tariff-definitions/user/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), session.ID(r.Context()), chi.URLParam(r, "id")); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/tariff-definitions/user
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context(), session.ID(r.Context())); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
