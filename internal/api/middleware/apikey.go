package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// APIKeyLength is the number of random bytes in a key (hex encoded on disk)
const APIKeyLength = 32

const apiKeyFile = "api_key.txt"

// APIKeyManager holds the shared key the caseworker front end sends on every
// /api request. The key lives in the data dir so the CLI and server agree on it.
type APIKeyManager struct {
	mu   sync.RWMutex
	path string
	key  string
}

// NewAPIKeyManager loads the key from dataDir, generating one on first run
func NewAPIKeyManager(dataDir string) (*APIKeyManager, error) {
	m := &APIKeyManager{path: filepath.Join(dataDir, apiKeyFile)}

	raw, err := os.ReadFile(m.path)
	switch {
	case err == nil && strings.TrimSpace(string(raw)) != "":
		m.key = strings.TrimSpace(string(raw))
		return m, nil
	case err != nil && !os.IsNotExist(err):
		return nil, fmt.Errorf("read api key: %w", err)
	}

	if _, err := m.rotate(); err != nil {
		return nil, err
	}
	return m, nil
}

// rotate writes a fresh key next to the old one and renames it into place,
// so a crash never leaves an empty key file. Caller must not hold mu.
func (m *APIKeyManager) rotate() (string, error) {
	buf := make([]byte, APIKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	key := hex.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(key+"\n"), 0600); err != nil {
		return "", fmt.Errorf("write api key: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("install api key: %w", err)
	}

	m.mu.Lock()
	m.key = key
	m.mu.Unlock()
	return key, nil
}

// GetCurrentKey returns the active key
func (m *APIKeyManager) GetCurrentKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.key
}

// ValidateKey compares in constant time. Empty keys never match.
func (m *APIKeyManager) ValidateKey(candidate string) bool {
	current := m.GetCurrentKey()
	if current == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(current), []byte(candidate)) == 1
}

// ResetKey replaces the key. Requests carrying the old one fail immediately.
func (m *APIKeyManager) ResetKey() (string, error) {
	return m.rotate()
}
