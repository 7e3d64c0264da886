package tariff

import (
	"sync"

	"github.com/tariffsim/tariff-engine/internal/model"
)

// OverrideIndex is the process-local list of admin overrides written
// through this instance. It is not shared between replicas and is empty
// after a restart; the rate table remains the source of truth.
type OverrideIndex struct {
	mu   sync.RWMutex
	defs []model.TariffDefinition
}

// NewOverrideIndex creates an empty index.
func NewOverrideIndex() *OverrideIndex {
	return &OverrideIndex{}
}

// Upsert removes any definition with the same id, then appends def.
func (x *OverrideIndex) Upsert(def model.TariffDefinition) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.defs = append(x.without(def.ID), def)
}

// Remove drops the definition with the given id and reports whether one
// was present.
func (x *OverrideIndex) Remove(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	before := len(x.defs)
	x.defs = x.without(id)
	return len(x.defs) != before
}

// List returns a copy in insertion order.
func (x *OverrideIndex) List() []model.TariffDefinition {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]model.TariffDefinition, len(x.defs))
	copy(out, x.defs)
	return out
}

// without must be called with x.mu held.
func (x *OverrideIndex) without(id string) []model.TariffDefinition {
	out := make([]model.TariffDefinition, 0, len(x.defs)+1)
	for _, d := range x.defs {
		if d.ID != id {
			out = append(out, d)
		}
	}
	return out
}
