package session

import (
	"context"
	"sync"
)

// Store is the single credential slot. Implementations store any string
// without validation; an empty string reads back as absent, so Set("") is a
// Clear. Clear is idempotent.
type Store interface {
	// Get returns the stored credential and whether one is present.
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the credential in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Get(context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != "", nil
}

func (m *MemoryStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return m.Clear(ctx)
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

// Present reports whether s currently holds a credential. Read errors count
// as anonymous.
func Present(ctx context.Context, s Store) bool {
	_, ok, err := s.Get(ctx)
	return err == nil && ok
}
