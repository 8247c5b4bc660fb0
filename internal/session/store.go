package session

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/promptd/internal/prompterr"
)

// Store is durable key->value persistence for Session records. Must provide
// read-your-writes consistency within a request; operations on the same
// session id are serialized by the caller.
type Store interface {
	// Get retrieves a session by id, or a KindNotFound error.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Put persists a session.
	Put(ctx context.Context, s *Session) error

	// FindActiveByChain returns the most recently active session bound to
	// chainID, or nil when none exists.
	FindActiveByChain(ctx context.Context, chainID string) (*Session, error)

	// Delete removes a session. Unknown ids are a no-op.
	Delete(ctx context.Context, sessionID string) error

	// Close releases store resources.
	Close() error
}

// MemoryStore is an in-process Store for tests and single-shot runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Get retrieves a session by id.
func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, prompterr.NotFound("session", sessionID)
	}
	cp := *s
	return &cp, nil
}

// Put persists a session.
func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

// FindActiveByChain returns the most recently active session for chainID.
func (m *MemoryStore) FindActiveByChain(ctx context.Context, chainID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Session
	for _, s := range m.sessions {
		if s.ChainID != chainID || !s.IsActive() {
			continue
		}
		if best == nil || s.LastActivityAt.After(best.LastActivityAt) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
