package storage

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const (
	// KeySize is the required encryption key length in bytes
	KeySize = 32

	maxCacheSizeMB = 8192
	dbFileName     = "store.db"
)

// Config holds storage engine configuration
type Config struct {
	// Path is the database directory
	Path string `yaml:"path"`

	EncryptionEnabled bool `yaml:"encryption_enabled"`
	// EncryptionKey optionally overrides key resolution (base64, 32 bytes)
	EncryptionKey    string `yaml:"encryption_key,omitempty"`
	EncryptionCipher string `yaml:"encryption_cipher,omitempty"`

	// RequireKeyPersistence makes Open fail when a freshly generated key
	// cannot be stored anywhere. Off by default: the engine opens and logs.
	RequireKeyPersistence bool `yaml:"require_key_persistence"`

	WALEnabled         bool `yaml:"wal_enabled"`
	CacheSizeMB        int  `yaml:"cache_size_mb"`
	MaxOpenFiles       int  `yaml:"max_open_files"`
	CompressionEnabled bool `yaml:"compression_enabled"`

	BackupDir       string `yaml:"backup_dir,omitempty"`
	AutoBackupHours int    `yaml:"auto_backup_hours"`
	BackupRetention int    `yaml:"backup_retention"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() Config {
	return Config{
		Path:               "~/.verseguy/data",
		EncryptionEnabled:  true,
		EncryptionCipher:   CipherAES256GCM,
		WALEnabled:         true,
		CacheSizeMB:        64,
		MaxOpenFiles:       1000,
		CompressionEnabled: true,
		AutoBackupHours:    24,
		BackupRetention:    7,
	}
}

// LoadConfig reads a YAML config file over the defaults
func LoadConfig(file string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(file)
	if err != nil {
		return cfg, fmt.Errorf("%w: read %s: %v", ErrConfiguration, file, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, file, err)
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once
func (c *Config) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(c.Path) == "" {
		result = multierror.Append(result, fmt.Errorf("path: must not be empty"))
	}
	if c.CacheSizeMB == 0 {
		result = multierror.Append(result, fmt.Errorf("cache_size_mb: must be greater than 0"))
	} else if c.CacheSizeMB < 0 || c.CacheSizeMB > maxCacheSizeMB {
		result = multierror.Append(result, fmt.Errorf("cache_size_mb: %d out of range (1-%d)", c.CacheSizeMB, maxCacheSizeMB))
	}
	if c.MaxOpenFiles < 0 {
		result = multierror.Append(result, fmt.Errorf("max_open_files: must not be negative"))
	}
	if c.EncryptionKey != "" {
		if _, err := decodeKey(c.EncryptionKey); err != nil {
			result = multierror.Append(result, fmt.Errorf("encryption_key: %w", err))
		}
	}
	if c.EncryptionCipher != "" {
		if _, err := CipherByName(c.EncryptionCipher); err != nil {
			result = multierror.Append(result, fmt.Errorf("encryption_cipher: %w", err))
		}
	}
	if c.BackupRetention < 1 {
		result = multierror.Append(result, fmt.Errorf("backup_retention: must be greater than 0"))
	}
	if c.AutoBackupHours < 0 {
		result = multierror.Append(result, fmt.Errorf("auto_backup_hours: must not be negative"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

// ExpandedPath returns Path with ~ expanded and cleaned.
// The result is a pure function of the config.
func (c *Config) ExpandedPath() string {
	p, err := homedir.Expand(c.Path)
	if err != nil {
		p = c.Path
	}
	return filepath.Clean(p)
}

// DatabaseFile is the bbolt file inside the database directory
func (c *Config) DatabaseFile() string {
	return filepath.Join(c.ExpandedPath(), dbFileName)
}

// BackupDirectory returns BackupDir or <parent(path)>/backups
func (c *Config) BackupDirectory() string {
	if c.BackupDir != "" {
		p, err := homedir.Expand(c.BackupDir)
		if err != nil {
			p = c.BackupDir
		}
		return filepath.Clean(p)
	}
	return filepath.Join(filepath.Dir(c.ExpandedPath()), "backups")
}

// cipherName returns the configured cipher or the default
func (c *Config) cipherName() string {
	if c.EncryptionCipher == "" {
		return CipherAES256GCM
	}
	return c.EncryptionCipher
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("not valid base64: %v", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("must decode to %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}
