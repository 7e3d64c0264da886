// Package history is the per-session calculation ledger: a newest-first
// list capped at MaxEntries.
package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tariffsim/tariff-engine/internal/metrics"
	"github.com/tariffsim/tariff-engine/internal/model"
	"github.com/tariffsim/tariff-engine/internal/session"
)

// MaxEntries caps a session's history; the oldest entries are evicted.
const MaxEntries = 100

// SourceGlobal is recorded when a calculation does not name its source.
const SourceGlobal = "global"

// Envelope is the calculation response as posted to the save endpoint.
type Envelope struct {
	Success bool         `json:"success"`
	Data    *Calculation `json:"data"`
}

// Calculation is the payload of a completed quote. TariffAmount is
// accepted but ignored; the ledger derives it from the costs.
type Calculation struct {
	Product       string          `json:"product"`
	Brand         string          `json:"brand"`
	ExportingFrom string          `json:"exportingFrom"`
	ImportingTo   string          `json:"importingTo"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit"`
	ProductCost   decimal.Decimal `json:"productCost"`
	TariffRate    decimal.Decimal `json:"tariffRate"`
	TariffAmount  decimal.Decimal `json:"tariffAmount"`
	TotalCost     decimal.Decimal `json:"totalCost"`
	TariffType    string          `json:"tariffType"`
	Source        string          `json:"source"`
	Currency      string          `json:"currency,omitempty"`
}

// Ledger stores calculation history in the shared session store.
type Ledger struct {
	entries session.Attribute[[]model.CalculationHistoryEntry]
	now     func() time.Time
}

// NewLedger creates a ledger over the shared session store.
func NewLedger(s session.Store) *Ledger {
	return &Ledger{
		entries: session.NewAttribute[[]model.CalculationHistoryEntry](s, session.AttrHistory),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append records a calculation and returns the stored entry. A nil
// envelope or one without data records nothing and returns (nil, nil).
func (l *Ledger) Append(ctx context.Context, sessionID string, env *Envelope) (*model.CalculationHistoryEntry, error) {
	if env == nil || env.Data == nil {
		return nil, nil
	}
	c := env.Data
	source := c.Source
	if source == "" {
		source = SourceGlobal
	}
	entry := model.CalculationHistoryEntry{
		ID:            uuid.New().String(),
		Product:       c.Product,
		Brand:         c.Brand,
		ExportingFrom: c.ExportingFrom,
		ImportingTo:   c.ImportingTo,
		Quantity:      c.Quantity,
		Unit:          c.Unit,
		ProductCost:   c.ProductCost,
		TariffRate:    c.TariffRate,
		TariffAmount:  c.TotalCost.Sub(c.ProductCost),
		TotalCost:     c.TotalCost,
		TariffType:    c.TariffType,
		Source:        source,
		Currency:      c.Currency,
		CreatedAt:     l.now(),
	}

	list, err := l.entries.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	list = append([]model.CalculationHistoryEntry{entry}, list...)
	if n := len(list) - MaxEntries; n > 0 {
		list = list[:MaxEntries]
		metrics.HistoryEvictions.Add(float64(n))
		slog.Debug("history trimmed", "session", sessionID, "evicted", n)
	}
	if err := l.entries.Put(ctx, sessionID, list); err != nil {
		return nil, err
	}
	metrics.HistoryAppends.Inc()
	return &entry, nil
}

// List returns the session's history, newest first; never nil.
func (l *Ledger) List(ctx context.Context, sessionID string) ([]model.CalculationHistoryEntry, error) {
	list, err := l.entries.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.CalculationHistoryEntry{}
	}
	return list, nil
}

// Get returns the entry with the given id, or (nil, nil) when absent.
func (l *Ledger) Get(ctx context.Context, sessionID, id string) (*model.CalculationHistoryEntry, error) {
	list, err := l.entries.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, nil
}

// Remove deletes the entry with the given id and reports whether it was
// present. The list is only rewritten when something was removed.
func (l *Ledger) Remove(ctx context.Context, sessionID, id string) (bool, error) {
	list, err := l.entries.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	kept := make([]model.CalculationHistoryEntry, 0, len(list))
	for _, e := range list {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(list) {
		return false, nil
	}
	return true, l.entries.Put(ctx, sessionID, kept)
}

// Discard removes the entry if present. Absence is not an error.
func (l *Ledger) Discard(ctx context.Context, sessionID, id string) error {
	_, err := l.Remove(ctx, sessionID, id)
	return err
}

// Clear drops the session's history.
func (l *Ledger) Clear(ctx context.Context, sessionID string) error {
	return l.entries.Clear(ctx, sessionID)
}
