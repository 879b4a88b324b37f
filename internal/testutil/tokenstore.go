package testutil

import (
	"artai-go/internal/tokenstore"
)

// NewTestTokenStore creates a new in-memory token store for testing.
func NewTestTokenStore() *tokenstore.MemoryStore {
	return tokenstore.NewMemoryStore()
}
