package storage

import (
	"encoding/base64"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// memCredentials is an in-memory CredentialStore with injectable failures
type memCredentials struct {
	mu      sync.Mutex
	entries map[string]string
	getErr  error
	setErr  error
}

func newMemCredentials() *memCredentials {
	return &memCredentials{entries: make(map[string]string)}
}

func (m *memCredentials) Get(service, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	secret, ok := m.entries[service+"/"+account]
	if !ok {
		return "", ErrCredentialNotFound
	}
	return secret, nil
}

func (m *memCredentials) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[service+"/"+account] = secret
	return nil
}

func (m *memCredentials) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// testConfig returns a valid config rooted in a fresh temp directory
func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "data")
	cfg.AutoBackupHours = 0
	return cfg
}

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	return key
}

func encodedKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// openTestEngine opens an engine that never touches the OS keyring
func openTestEngine(t *testing.T, cfg Config) (*Engine, *memCredentials) {
	t.Helper()
	creds := newMemCredentials()
	e, err := Open(cfg, WithCredentialStore(creds))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, creds
}
