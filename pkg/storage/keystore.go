package storage

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/asMODhias/VerseGuy-sub000/pkg/log"
	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the credential store service all storage keys live under
	KeyringService = "verseguy-storage"

	keyNamePrefix   = "storage-key-"
	keyFileName     = "encryption.key"
	keyNameHexChars = 12
)

// ErrCredentialNotFound is returned by a CredentialStore when no entry exists
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore is the subset of an OS secret store the KeyStore needs
type CredentialStore interface {
	Get(service, account string) (string, error)
	Set(service, account, secret string) error
}

// KeyringStore is the OS-native credential store (Keychain, Secret Service,
// Windows Credential Manager)
type KeyringStore struct{}

func (KeyringStore) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrCredentialNotFound
	}
	return secret, err
}

func (KeyringStore) Set(service, account, secret string) error {
	return keyring.Set(service, account, secret)
}

// KeySource records where an engine's key came from
type KeySource string

const (
	KeySourceNone       KeySource = "none"
	KeySourceConfig     KeySource = "config"
	KeySourceCredential KeySource = "credential-store"
	KeySourceFile       KeySource = "file"
	KeySourceGenerated  KeySource = "generated"
)

// KeyName derives the credential entry name for a database path:
// "storage-key-" + the first 12 hex chars of sha256(path).
func KeyName(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return keyNamePrefix + hex.EncodeToString(sum[:])[:keyNameHexChars]
}

// KeyFilePath is the fallback key file, adjacent to the database directory
func KeyFilePath(path string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(path)), keyFileName)
}

// KeyStore resolves and persists engine encryption keys
type KeyStore struct {
	credentials CredentialStore
	logger      zerolog.Logger
}

// NewKeyStore creates a KeyStore backed by the given credential store.
// A nil store means the OS keyring.
func NewKeyStore(credentials CredentialStore) *KeyStore {
	if credentials == nil {
		credentials = KeyringStore{}
	}
	return &KeyStore{
		credentials: credentials,
		logger:      log.WithComponent("keystore"),
	}
}

// GetKey looks for a persisted key, credential store first, then the fallback
// file. Candidates that are not base64 of exactly 32 bytes are skipped.
// Returns KeySourceNone with a nil key when nothing valid exists.
func (ks *KeyStore) GetKey(cfg *Config) ([]byte, KeySource, error) {
	path := cfg.ExpandedPath()
	name := KeyName(path)

	secret, err := ks.credentials.Get(KeyringService, name)
	switch {
	case err == nil:
		key, derr := decodeKey(secret)
		if derr == nil {
			return key, KeySourceCredential, nil
		}
		ks.logger.Warn().Str("entry", name).Err(derr).Msg("Ignoring malformed key in credential store")
	case errors.Is(err, ErrCredentialNotFound):
	default:
		ks.logger.Debug().Str("entry", name).Err(err).Msg("Credential store unavailable")
	}

	file := KeyFilePath(path)
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		key, derr := decodeKey(string(data))
		if derr == nil {
			return key, KeySourceFile, nil
		}
		ks.logger.Warn().Str("file", file).Err(derr).Msg("Ignoring malformed key file")
	case errors.Is(err, os.ErrNotExist):
	default:
		ks.logger.Warn().Str("file", file).Err(err).Msg("Key file unreadable")
	}

	return nil, KeySourceNone, nil
}

// StoreKey persists key in the credential store, falling back to the key file.
// It fails only when both destinations fail.
func (ks *KeyStore) StoreKey(cfg *Config, key []byte) (KeySource, error) {
	if len(key) != KeySize {
		return KeySourceNone, fmt.Errorf("%w: key must be %d bytes, got %d", ErrEncryption, KeySize, len(key))
	}

	path := cfg.ExpandedPath()
	encoded := base64.StdEncoding.EncodeToString(key)

	credErr := ks.credentials.Set(KeyringService, KeyName(path), encoded)
	if credErr == nil {
		return KeySourceCredential, nil
	}
	ks.logger.Debug().Err(credErr).Msg("Credential store rejected key, using key file")

	file := KeyFilePath(path)
	fileErr := writeKeyFile(file, encoded)
	if fileErr == nil {
		return KeySourceFile, nil
	}

	return KeySourceNone, fmt.Errorf("%w: persist key: %w", ErrEncryption,
		errors.Join(fmt.Errorf("credential store: %w", credErr), fmt.Errorf("key file %s: %w", file, fileErr)))
}

// ResolveKey applies the full precedence: explicit config key, credential
// store, key file, and finally a freshly generated key that is persisted.
func (ks *KeyStore) ResolveKey(cfg *Config) ([]byte, KeySource, error) {
	if cfg.EncryptionKey != "" {
		key, err := decodeKey(cfg.EncryptionKey)
		if err != nil {
			return nil, KeySourceNone, fmt.Errorf("%w: encryption_key: %v", ErrConfiguration, err)
		}
		return key, KeySourceConfig, nil
	}

	key, source, err := ks.GetKey(cfg)
	if err != nil {
		return nil, KeySourceNone, err
	}
	if key != nil {
		return key, source, nil
	}

	key, err = GenerateKey()
	if err != nil {
		return nil, KeySourceNone, err
	}

	stored, err := ks.StoreKey(cfg, key)
	if err != nil {
		if cfg.RequireKeyPersistence {
			return nil, KeySourceNone, err
		}
		ks.logger.Warn().Err(err).Str("path", cfg.ExpandedPath()).
			Msg("Encryption key could not be persisted; data written by this process will be unreadable after restart")
		return key, KeySourceGenerated, nil
	}

	ks.logger.Info().Str("stored_in", string(stored)).Msg("Generated new storage encryption key")
	return key, KeySourceGenerated, nil
}

func writeKeyFile(file, encoded string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return err
	}
	return os.WriteFile(file, []byte(encoded+"\n"), 0600)
}
