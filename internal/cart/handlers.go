package cart

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tariffsim/tariff-engine/internal/export"
	"github.com/tariffsim/tariff-engine/internal/httpx"
	"github.com/tariffsim/tariff-engine/internal/session"
)

// Handler serves the export cart endpoints.
type Handler struct {
	coord    *Coordinator
	archiver export.Archiver
	now      func() time.Time
}

// NewHandler creates the cart endpoints. archiver may be nil.
func NewHandler(coord *Coordinator, archiver export.Archiver) *Handler {
	return &Handler{coord: coord, archiver: archiver, now: time.Now}
}

// Mount registers the routes under /export-cart.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/export-cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/add/{calculationId}", h.Add)
		r.Delete("/remove/{calculationId}", h.Remove)
		r.Delete("/clear", h.Clear)
		r.Get("/export", h.Export)
	})
}

// GetCart handles GET /api/export-cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	list, err := h.coord.GetCart(r.Context(), session.ID(r.Context()))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// Add handles POST /api/export-cart/add/{calculationId}
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	res, err := h.coord.AddToCart(r.Context(), session.ID(r.Context()), chi.URLParam(r, "calculationId"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    res.Entry,
		"outcome": res.Outcome,
	})
}

// Remove handles DELETE /api/export-cart/remove/{calculationId}
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.RemoveFromCart(r.Context(), session.ID(r.Context()), chi.URLParam(r, "calculationId")); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/export-cart/clear
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.ClearCart(r.Context(), session.ID(r.Context())); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export handles GET /api/export-cart/export. An empty cart yields 204.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	list, err := h.coord.GetCart(r.Context(), session.ID(r.Context()))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if len(list) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, list); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	name := export.Filename(h.now())

	if h.archiver != nil {
		// Archived in the background; a failure is only logged.
		data := bytes.Clone(buf.Bytes())
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.archiver.Archive(ctx, name, data); err != nil {
				slog.Warn("export archive failed", "file", name, "err", err)
			}
		}()
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
