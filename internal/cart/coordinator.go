// Package cart moves calculations out of a session's history into its
// export cart. The move is not atomic: once the cart is written the move
// has succeeded, and a failure to remove the source entry from history is
// logged rather than rolled back.
package cart

import (
	"context"
	"log/slog"

	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/events"
	"github.com/tariffsim/tariff-engine/internal/metrics"
	"github.com/tariffsim/tariff-engine/internal/model"
	"github.com/tariffsim/tariff-engine/internal/session"
)

// HistorySource reads and removes history entries by raw id for a session
// the caller names explicitly. The ledger may live in another process.
type HistorySource interface {
	// Get returns the entry, or (nil, nil) when it is absent.
	Get(ctx context.Context, sessionID, id string) (*model.CalculationHistoryEntry, error)
	// Discard removes the entry; absence is not an error.
	Discard(ctx context.Context, sessionID, id string) error
}

// Outcome is the terminal state of a successful move.
type Outcome string

const (
	Cleaned       Outcome = "cleaned"
	CleanupFailed Outcome = "cleanup_failed"
)

// MoveResult describes a completed AddToCart.
type MoveResult struct {
	Entry   model.CalculationHistoryEntry
	Outcome Outcome
}

// Coordinator owns the per-session cart.
type Coordinator struct {
	history   HistorySource
	cart      session.Attribute[[]model.CalculationHistoryEntry]
	publisher events.Publisher
}

// NewCoordinator creates a coordinator. publisher may be nil.
func NewCoordinator(history HistorySource, store session.Store, publisher events.Publisher) *Coordinator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Coordinator{
		history:   history,
		cart:      session.NewAttribute[[]model.CalculationHistoryEntry](store, session.AttrCart),
		publisher: publisher,
	}
}

// AddToCart copies history entry calcID into the cart and then removes it
// from history. Errors before the cart write abort the move with no state
// change; the history cleanup never fails the call.
func (c *Coordinator) AddToCart(ctx context.Context, sessionID, calcID string) (*MoveResult, error) {
	entry, err := c.history.Get(ctx, sessionID, calcID)
	if err != nil {
		metrics.CartMoves.WithLabelValues("fetch_failed").Inc()
		return nil, errs.DataAccess("fetch calculation", err)
	}
	if entry == nil {
		metrics.CartMoves.WithLabelValues("not_found").Inc()
		return nil, errs.NotFound("Calculation not found in history")
	}

	list, err := c.cart.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, e := range list {
		if e.ID == calcID {
			metrics.CartMoves.WithLabelValues("duplicate").Inc()
			return nil, errs.BadRequest("Item already in cart")
		}
	}
	if err := c.cart.Put(ctx, sessionID, append(list, *entry)); err != nil {
		return nil, err
	}

	res := &MoveResult{Entry: *entry, Outcome: Cleaned}
	if err := c.history.Discard(ctx, sessionID, calcID); err != nil {
		res.Outcome = CleanupFailed
		slog.Warn("cart: history cleanup failed, entry remains in history",
			"session", sessionID, "calculation", calcID, "err", err)
	}
	metrics.CartMoves.WithLabelValues(string(res.Outcome)).Inc()

	events.Emit(ctx, c.publisher, events.Event{
		Type:      events.TypeCartAdded,
		SessionID: sessionID,
		Payload:   map[string]string{"calculationId": calcID, "outcome": string(res.Outcome)},
	})
	return res, nil
}

// RemoveFromCart drops the cart entry with the given id.
func (c *Coordinator) RemoveFromCart(ctx context.Context, sessionID, id string) error {
	list, err := c.cart.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	kept := make([]model.CalculationHistoryEntry, 0, len(list))
	for _, e := range list {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(list) {
		return errs.NotFound("Item not found in cart")
	}
	if err := c.cart.Put(ctx, sessionID, kept); err != nil {
		return err
	}
	events.Emit(ctx, c.publisher, events.Event{
		Type:      events.TypeCartRemoved,
		SessionID: sessionID,
		Payload:   map[string]string{"calculationId": id},
	})
	return nil
}

// ClearCart drops the whole cart.
func (c *Coordinator) ClearCart(ctx context.Context, sessionID string) error {
	if err := c.cart.Clear(ctx, sessionID); err != nil {
		return err
	}
	events.Emit(ctx, c.publisher, events.Event{Type: events.TypeCartCleared, SessionID: sessionID})
	return nil
}

// GetCart returns a copy of the cart; never nil.
func (c *Coordinator) GetCart(ctx context.Context, sessionID string) ([]model.CalculationHistoryEntry, error) {
	list, err := c.cart.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.CalculationHistoryEntry{}
	}
	return list, nil
}
