package tokenstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"artai-go/internal/artai"
)

// AgeStore keeps the token in a file encrypted with filippo.io/age to an
// X25519 identity. The identity is generated on first save and stored in
// plaintext, readable only by the owner.
type AgeStore struct {
	path         string
	identityPath string
}

func NewAgeStore(path, identityPath string) *AgeStore {
	return &AgeStore{path: path, identityPath: identityPath}
}

// Load decrypts the stored token. It returns "" when no token is stored.
func (a *AgeStore) Load() (string, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}

	identity, err := a.loadIdentity()
	if err != nil {
		return "", fmt.Errorf("loading identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return "", fmt.Errorf("decrypting token: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading decrypted token: %w", err)
	}
	return strings.TrimSpace(string(plain)), nil
}

// Save encrypts token to the identity, creating the identity if needed.
func (a *AgeStore) Save(token string) error {
	identity, err := a.loadOrCreateIdentity()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, identity.Recipient())
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, token+"\n"); err != nil {
		return fmt.Errorf("encrypting token: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return writeFileAtomic(a.path, buf.Bytes())
}

// Clear removes the encrypted token. The identity is kept.
func (a *AgeStore) Clear() error {
	return removeIfExists(a.path)
}

// IsConfigured returns true if the identity file exists.
func (a *AgeStore) IsConfigured() bool {
	_, err := os.Stat(a.identityPath)
	return err == nil
}

func (a *AgeStore) loadIdentity() (*age.X25519Identity, error) {
	data, err := os.ReadFile(a.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity found in %s", a.identityPath)
}

func (a *AgeStore) loadOrCreateIdentity() (*age.X25519Identity, error) {
	identity, err := a.loadIdentity()
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading identity: %w", err)
	}

	identity, err = age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(a.identityPath), 0700); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}
	content := "# artai token identity\n" + identity.String() + "\n"
	if err := os.WriteFile(a.identityPath, []byte(content), 0600); err != nil {
		return nil, fmt.Errorf("writing identity: %w", err)
	}
	return identity, nil
}

var _ artai.TokenStore = (*AgeStore)(nil)
