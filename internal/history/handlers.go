package history

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tariffsim/tariff-engine/internal/httpx"
	"github.com/tariffsim/tariff-engine/internal/session"
)

// Handler exposes the ledger over HTTP. The {id} routes accept a
// sessionId query parameter so another service can address a session it
// does not hold.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates the history endpoints.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// SaveRequest is the body of POST /api/tariff/history/save.
type SaveRequest struct {
	CalculationData *Envelope `json:"calculationData"`
}

// Mount registers the routes under /tariff/history.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/tariff/history", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/save", h.Save)
		r.Delete("/clear", h.Clear)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Remove)
	})
}

// Save handles POST /api/tariff/history/save
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if req.CalculationData == nil {
		httpx.WriteError(w, "calculationData is required", http.StatusBadRequest)
		return
	}
	entry, err := h.ledger.Append(r.Context(), session.ID(r.Context()), req.CalculationData)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if entry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, entry)
}

// List handles GET /api/tariff/history
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.List(r.Context(), session.ID(r.Context()))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// Get handles GET /api/tariff/history/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ledger.Get(r.Context(), targetSession(r), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if entry == nil {
		httpx.WriteError(w, "Calculation not found", http.StatusNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entry)
}

// Remove handles DELETE /api/tariff/history/{id}. A direct deletion of an
// absent entry is a 404; a cross-service removal (sessionId given) is not.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	removed, err := h.ledger.Remove(r.Context(), targetSession(r), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if !removed && r.URL.Query().Get("sessionId") == "" {
		httpx.WriteError(w, "Calculation not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/tariff/history/clear
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Clear(r.Context(), session.ID(r.Context())); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func targetSession(r *http.Request) string {
	if id := r.URL.Query().Get("sessionId"); id != "" {
		return id
	}
	return session.ID(r.Context())
}
