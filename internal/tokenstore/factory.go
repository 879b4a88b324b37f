// Package tokenstore persists the session token between runs.
package tokenstore

import (
	"fmt"
	"path/filepath"

	"artai-go/internal/artai"
	"artai-go/internal/config"
)

// Key is the fixed storage key of the session token.
const Key = "artai_token"

// NewTokenStoreFromConfig creates a TokenStore based on the token store config type.
func NewTokenStoreFromConfig(cfg config.TokenStoreConfig) (artai.TokenStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "file", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file token store requires path to be set")
		}
		return NewFileStore(cfg.Path), nil
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite token store")
		}
		s, err := NewSQLiteStore(filepath.Join(cfg.DataDir, "artai.db"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "age":
		if cfg.Path == "" || cfg.IdentityPath == "" {
			return nil, fmt.Errorf("age token store requires path and identity_path to be set")
		}
		return NewAgeStore(cfg.Path, cfg.IdentityPath), nil
	default:
		return nil, fmt.Errorf("unknown token store type: %s", cfg.Type)
	}
}
