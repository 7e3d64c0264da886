package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps attributes in process memory. Used for tests and for a
// single process that mounts every service. With a TTL, a session expires
// ttl after its last write, like the Redis backend.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
	ttl      time.Duration
	now      func() time.Time
}

type memSession struct {
	attrs   map[string][]byte
	expires time.Time // zero when the store has no TTL
}

// NewMemoryStore creates an in-memory session store whose sessions never
// expire.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithTTL(0)
}

// NewMemoryStoreWithTTL creates an in-memory session store. Expired
// sessions read as empty and are dropped by Sweep.
func NewMemoryStoreWithTTL(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *memSession) expired(now time.Time) bool {
	return !s.expires.IsZero() && !now.Before(s.expires)
}

func (m *MemoryStore) Load(_ context.Context, sessionID, attr string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessionID]
	if !ok || sess.expired(m.now()) {
		return nil, nil
	}
	data, ok := sess.attrs[attr]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Save(_ context.Context, sessionID, attr string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	sess, ok := m.sessions[sessionID]
	if !ok || sess.expired(now) {
		sess = &memSession{attrs: make(map[string][]byte)}
		m.sessions[sessionID] = sess
	}
	sess.attrs[attr] = append([]byte(nil), data...)
	if m.ttl > 0 {
		sess.expires = now.Add(m.ttl)
	}
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, sessionID, attr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[sessionID]; ok {
		delete(sess.attrs, attr)
		if len(sess.attrs) == 0 {
			delete(m.sessions, sessionID)
		}
	}
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for id, sess := range m.sessions {
		if sess.expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of sessions held, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RunSweeper calls Sweep every interval until done is closed.
func (m *MemoryStore) RunSweeper(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
