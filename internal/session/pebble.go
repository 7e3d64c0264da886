package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// PebbleStore keeps attributes in a local Pebble database. It suits a
// single node that wants sessions to survive restarts without Redis.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) the database in dir.
func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func (p *PebbleStore) Load(_ context.Context, sessionID, attr string) ([]byte, error) {
	v, closer, err := p.db.Get(pebbleKey(sessionID, attr))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (p *PebbleStore) Save(_ context.Context, sessionID, attr string, data []byte) error {
	return p.db.Set(pebbleKey(sessionID, attr), data, pebble.NoSync)
}

func (p *PebbleStore) Remove(_ context.Context, sessionID, attr string) error {
	return p.db.Delete(pebbleKey(sessionID, attr), pebble.NoSync)
}

func pebbleKey(sessionID, attr string) []byte {
	return []byte(sessionID + "\x00" + attr)
}
