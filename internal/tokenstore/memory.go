package tokenstore

import (
	"sync"

	"artai-go/internal/artai"
)

// MemoryStore keeps the token in memory. Nothing survives the process, which
// makes it useful for testing and for one-shot scripted sessions.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *MemoryStore) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// Compile-time check that MemoryStore implements artai.TokenStore interface
var _ artai.TokenStore = (*MemoryStore)(nil)
