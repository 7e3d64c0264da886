// Package session is the shared per-user state store. State is kept as
// whole named attributes per session id; every mutation is a full
// read-modify-write of one attribute, and concurrent writers to the same
// attribute are last-writer-wins.
package session

import (
	"context"
	"encoding/json"

	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/metrics"
)

// Attribute names shared by every service that reads the store.
const (
	AttrHistory   = "CALCULATION_HISTORY"
	AttrCart      = "EXPORT_CART"
	AttrOverrides = "SESSION_USER_TARIFFS"
)

// Store persists opaque attribute blobs keyed by session id.
type Store interface {
	// Load returns the attribute, or nil with no error when it is absent.
	Load(ctx context.Context, sessionID, attr string) ([]byte, error)
	// Save replaces the attribute.
	Save(ctx context.Context, sessionID, attr string, data []byte) error
	// Remove drops the attribute. Removing an absent attribute is not an error.
	Remove(ctx context.Context, sessionID, attr string) error
}

// Attribute is a typed view of one named attribute.
type Attribute[T any] struct {
	store Store
	name  string
}

// NewAttribute binds a typed view of attribute name to store.
func NewAttribute[T any](store Store, name string) Attribute[T] {
	return Attribute[T]{store: store, name: name}
}

// Get loads and decodes the attribute. An absent attribute yields the zero T.
func (a Attribute[T]) Get(ctx context.Context, sessionID string) (T, error) {
	var v T
	data, err := a.store.Load(ctx, sessionID, a.name)
	if err != nil {
		return v, errs.DataAccess("load "+a.name, err)
	}
	if data == nil {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errs.DataAccess("decode "+a.name, err)
	}
	return v, nil
}

// Put encodes v and replaces the attribute.
func (a Attribute[T]) Put(ctx context.Context, sessionID string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errs.DataAccess("encode "+a.name, err)
	}
	return errs.DataAccess("save "+a.name, a.store.Save(ctx, sessionID, a.name, data))
}

// Clear drops the attribute.
func (a Attribute[T]) Clear(ctx context.Context, sessionID string) error {
	return errs.DataAccess("remove "+a.name, a.store.Remove(ctx, sessionID, a.name))
}

// Instrumented wraps a Store and counts its calls by backend and result.
type Instrumented struct {
	Store
	backend string
}

// Instrument wraps s so each call increments metrics.SessionOps.
func Instrument(s Store, backend string) *Instrumented {
	return &Instrumented{Store: s, backend: backend}
}

func (i *Instrumented) Load(ctx context.Context, sessionID, attr string) ([]byte, error) {
	data, err := i.Store.Load(ctx, sessionID, attr)
	i.observe("load", err)
	return data, err
}

func (i *Instrumented) Save(ctx context.Context, sessionID, attr string, data []byte) error {
	err := i.Store.Save(ctx, sessionID, attr, data)
	i.observe("save", err)
	return err
}

func (i *Instrumented) Remove(ctx context.Context, sessionID, attr string) error {
	err := i.Store.Remove(ctx, sessionID, attr)
	i.observe("remove", err)
	return err
}

func (i *Instrumented) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.SessionOps.WithLabelValues(i.backend, op, result).Inc()
}
