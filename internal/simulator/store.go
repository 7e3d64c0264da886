// Package simulator keeps per-session tariff definitions used in simulator
// mode. It never reads or writes the rate table.
package simulator

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/model"
	"github.com/tariffsim/tariff-engine/internal/session"
)

// Store is the session-scoped registry of user-defined tariffs. Each call
// rewrites the whole list attribute.
type Store struct {
	defs session.Attribute[[]model.TariffDefinition]
}

// NewStore creates a simulator store over the shared session store.
func NewStore(s session.Store) *Store {
	return &Store{defs: session.NewAttribute[[]model.TariffDefinition](s, session.AttrOverrides)}
}

// Save assigns an id when def has none, then replaces the entry with the
// same id or appends it.
func (s *Store) Save(ctx context.Context, sessionID string, def model.TariffDefinition) (model.TariffDefinition, error) {
	if strings.TrimSpace(def.ID) == "" {
		def.ID = uuid.New().String()
	}
	list, err := s.defs.Get(ctx, sessionID)
	if err != nil {
		return model.TariffDefinition{}, err
	}

	replaced := false
	for i := range list {
		if list[i].ID == def.ID {
			list[i] = def
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, def)
	}
	if err := s.defs.Put(ctx, sessionID, list); err != nil {
		return model.TariffDefinition{}, err
	}
	return def, nil
}

// List returns the definitions in storage order; never nil.
func (s *Store) List(ctx context.Context, sessionID string) ([]model.TariffDefinition, error) {
	list, err := s.defs.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.TariffDefinition{}
	}
	return list, nil
}

// Get returns the definition with the given id.
func (s *Store) Get(ctx context.Context, sessionID, id string) (model.TariffDefinition, error) {
	list, err := s.defs.Get(ctx, sessionID)
	if err != nil {
		return model.TariffDefinition{}, err
	}
	for _, d := range list {
		if d.ID == id {
			return d, nil
		}
	}
	return model.TariffDefinition{}, notFound(id)
}

// Update replaces an existing definition, keeping its id.
func (s *Store) Update(ctx context.Context, sessionID, id string, def model.TariffDefinition) (model.TariffDefinition, error) {
	list, err := s.defs.Get(ctx, sessionID)
	if err != nil {
		return model.TariffDefinition{}, err
	}
	def.ID = id
	for i := range list {
		if list[i].ID == id {
			list[i] = def
			if err := s.defs.Put(ctx, sessionID, list); err != nil {
				return model.TariffDefinition{}, err
			}
			return def, nil
		}
	}
	return model.TariffDefinition{}, notFound(id)
}

// Delete removes the definition with the given id.
func (s *Store) Delete(ctx context.Context, sessionID, id string) error {
	list, err := s.defs.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, d := range list {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(list) {
		return notFound(id)
	}
	return s.defs.Put(ctx, sessionID, kept)
}

// Clear drops every definition in the session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.defs.Clear(ctx, sessionID)
}

func notFound(id string) error {
	return errs.NotFound("Tariff definition not found in session: " + id)
}
