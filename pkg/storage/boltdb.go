package storage

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asMODhias/VerseGuy-sub000/pkg/events"
	"github.com/asMODhias/VerseGuy-sub000/pkg/log"
	"github.com/asMODhias/VerseGuy-sub000/pkg/metrics"
	"github.com/awnumar/memguard"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var bucketKV = []byte("kv")

// Option customizes Open
type Option func(*openOptions)

type openOptions struct {
	credentials CredentialStore
	events      events.Publisher
}

// WithCredentialStore replaces the OS keyring used for key persistence
func WithCredentialStore(cs CredentialStore) Option {
	return func(o *openOptions) {
		o.credentials = cs
	}
}

// WithEvents publishes backup events on p
func WithEvents(p events.Publisher) Option {
	return func(o *openOptions) {
		o.events = p
	}
}

// Engine is the encrypted key/value store backed by a single bbolt file.
// It is safe for concurrent use; bbolt serializes writers and lets readers
// run on consistent snapshots.
type Engine struct {
	cfg    Config
	db     *bolt.DB
	logger zerolog.Logger
	events events.Publisher

	cipher    Cipher
	key       *memguard.LockedBuffer // nil when encryption is disabled
	keySource KeySource
	comp      *compressor // nil when compression is disabled

	closed    atomic.Bool
	closeOnce sync.Once

	backupMu       sync.Mutex
	backupInterval time.Duration
	backupStop     chan struct{}
	backupDone     chan struct{}
}

// Open validates cfg, opens (or creates) the database and resolves the
// encryption key when encryption is enabled.
func Open(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := openOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.WithComponent("storage")
	dir := cfg.ExpandedPath()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory %s: %v", ErrOpen, dir, err)
	}

	db, err := bolt.Open(cfg.DatabaseFile(), 0600, &bolt.Options{
		Timeout:         time.Second,
		NoSync:          !cfg.WALEnabled,
		InitialMmapSize: cfg.CacheSizeMB << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, cfg.DatabaseFile(), err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create bucket %s: %v", ErrOpen, bucketKV, err)
	}

	e := &Engine{
		cfg:            cfg,
		db:             db,
		logger:         logger,
		events:         o.events,
		keySource:      KeySourceNone,
		backupInterval: time.Duration(cfg.AutoBackupHours) * time.Hour,
	}

	if cfg.CompressionEnabled {
		if e.comp, err = newCompressor(); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %v", ErrOpen, err)
		}
	}

	if cfg.EncryptionEnabled {
		if err := e.initEncryption(o.credentials); err != nil {
			metrics.RegisterComponent("keystore", false, err.Error())
			e.releaseCodecs()
			db.Close()
			return nil, err
		}
		metrics.RegisterComponent("keystore", true, string(e.keySource))
	} else {
		metrics.RegisterComponent("keystore", true, "encryption disabled")
	}

	if cfg.MaxOpenFiles > 0 {
		logger.Debug().Int("max_open_files", cfg.MaxOpenFiles).Msg("bbolt keeps a single file handle; max_open_files has no effect")
	}

	metrics.RegisterComponent("storage", true, "")
	logger.Info().
		Str("path", dir).
		Bool("encryption", cfg.EncryptionEnabled).
		Bool("compression", cfg.CompressionEnabled).
		Bool("wal", cfg.WALEnabled).
		Str("key_source", string(e.keySource)).
		Msg("Storage engine opened")

	return e, nil
}

func (e *Engine) initEncryption(credentials CredentialStore) error {
	c, err := CipherByName(e.cfg.cipherName())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	key, source, err := NewKeyStore(credentials).ResolveKey(&e.cfg)
	if err != nil {
		return err
	}

	e.cipher = c
	e.keySource = source
	// NewBufferFromBytes wipes key
	e.key = memguard.NewBufferFromBytes(key)
	return nil
}

// Config returns the configuration the engine was opened with
func (e *Engine) Config() Config {
	return e.cfg
}

// Path returns the database directory
func (e *Engine) Path() string {
	return e.cfg.ExpandedPath()
}

// KeySource reports where the encryption key was resolved from
func (e *Engine) KeySource() KeySource {
	return e.keySource
}

// Get returns the decoded value for key. found is false when the key is absent.
func (e *Engine) Get(key string) (value []byte, found bool, err error) {
	timer := metrics.NewTimer()
	defer func() { e.observe("get", timer, err) }()

	if e.closed.Load() {
		return nil, false, ErrClosed
	}

	err = e.db.View(func(tx *bolt.Tx) error {
		raw, ok := getRaw(tx.Bucket(bucketKV), []byte(key))
		if !ok {
			return nil
		}
		found = true
		value, err = e.decode(raw)
		return err
	})
	if err != nil {
		return nil, false, e.wrap("get", key, err)
	}
	return value, found, nil
}

// Put encodes and writes value under key
func (e *Engine) Put(key string, value []byte) (err error) {
	timer := metrics.NewTimer()
	defer func() { e.observe("put", timer, err) }()

	if e.closed.Load() {
		return ErrClosed
	}

	encoded, err := e.encode(value)
	if err != nil {
		return e.wrap("put", key, err)
	}

	err = e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), encoded)
	})
	if err != nil {
		return e.wrap("put", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (e *Engine) Delete(key string) (err error) {
	timer := metrics.NewTimer()
	defer func() { e.observe("delete", timer, err) }()

	if e.closed.Load() {
		return ErrClosed
	}

	err = e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Delete([]byte(key))
	})
	if err != nil {
		return e.wrap("delete", key, err)
	}
	return nil
}

// Exists reports whether Get would return a value for key. The value is
// decoded, so a record Get cannot read is an error here too.
func (e *Engine) Exists(key string) (found bool, err error) {
	timer := metrics.NewTimer()
	defer func() { e.observe("exists", timer, err) }()

	if e.closed.Load() {
		return false, ErrClosed
	}

	err = e.db.View(func(tx *bolt.Tx) error {
		raw, ok := getRaw(tx.Bucket(bucketKV), []byte(key))
		if !ok {
			return nil
		}
		if _, err := e.decode(raw); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, e.wrap("exists", key, err)
	}
	return found, nil
}

// ScanPrefix returns every pair whose key starts with prefix, in
// lexicographic key order, with values decoded individually.
func (e *Engine) ScanPrefix(prefix string) (kvs []KV, err error) {
	timer := metrics.NewTimer()
	defer func() { e.observe("scan", timer, err) }()

	if e.closed.Load() {
		return nil, ErrClosed
	}

	err = e.db.View(func(tx *bolt.Tx) error {
		return forEachPrefix(tx.Bucket(bucketKV), []byte(prefix), func(k, v []byte) error {
			value, err := e.decode(v)
			if err != nil {
				return fmt.Errorf("key %s: %w", k, err)
			}
			kvs = append(kvs, KV{Key: string(k), Value: value})
			return nil
		})
	})
	if err != nil {
		return nil, e.wrap("scan", prefix, err)
	}
	return kvs, nil
}

// CountPrefix counts keys starting with prefix without decoding values
func (e *Engine) CountPrefix(prefix string) (n int, err error) {
	timer := metrics.NewTimer()
	defer func() { e.observe("count", timer, err) }()

	if e.closed.Load() {
		return 0, ErrClosed
	}

	err = e.db.View(func(tx *bolt.Tx) error {
		return forEachPrefix(tx.Bucket(bucketKV), []byte(prefix), func(_, _ []byte) error {
			n++
			return nil
		})
	})
	if err != nil {
		return 0, e.wrap("count", prefix, err)
	}
	return n, nil
}

// Update runs a read-modify-write of key inside a single write transaction.
// Writers are serialized by bbolt, so fn observes and replaces the value
// atomically. Errors returned by fn are passed through unchanged.
func (e *Engine) Update(key string, fn UpdateFunc) (err error) {
	timer := metrics.NewTimer()
	defer func() { e.observe("update", timer, err) }()

	if e.closed.Load() {
		return ErrClosed
	}

	var fnErr error
	err = e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)

		var current []byte
		raw, found := getRaw(b, []byte(key))
		if found {
			var err error
			if current, err = e.decode(raw); err != nil {
				return err
			}
		}

		next, err := fn(current, found)
		if err != nil {
			fnErr = err
			return err
		}

		encoded, err := e.encode(next)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), encoded)
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return e.wrap("update", key, err)
	}
	return nil
}

// Flush forces buffered writes to disk
func (e *Engine) Flush() (err error) {
	timer := metrics.NewTimer()
	defer func() { e.observe("flush", timer, err) }()

	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.db.Sync(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrDatabase, err)
	}
	return nil
}

// Stats returns human-readable diagnostics. Best effort: not meant to be parsed.
func (e *Engine) Stats() string {
	if e.closed.Load() {
		return "storage engine closed"
	}

	var sb strings.Builder
	dbStats := e.db.Stats()

	fmt.Fprintf(&sb, "path: %s\n", e.cfg.DatabaseFile())
	if fi, err := os.Stat(e.cfg.DatabaseFile()); err == nil {
		fmt.Fprintf(&sb, "file_size_bytes: %d\n", fi.Size())
	}
	fmt.Fprintf(&sb, "encryption: %t\n", e.key != nil)
	if e.cipher != nil {
		fmt.Fprintf(&sb, "cipher: %s\n", e.cipher.Name())
	}
	fmt.Fprintf(&sb, "key_source: %s\n", e.keySource)
	fmt.Fprintf(&sb, "compression: %t\n", e.comp != nil)
	fmt.Fprintf(&sb, "tx_read_total: %d\n", dbStats.TxN)
	fmt.Fprintf(&sb, "tx_open: %d\n", dbStats.OpenTxN)
	fmt.Fprintf(&sb, "free_pages: %d\n", dbStats.FreePageN)
	fmt.Fprintf(&sb, "pending_pages: %d\n", dbStats.PendingPageN)
	fmt.Fprintf(&sb, "free_alloc_bytes: %d\n", dbStats.FreeAlloc)

	_ = e.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(bucketKV).Stats()
		fmt.Fprintf(&sb, "keys: %d\n", bs.KeyN)
		fmt.Fprintf(&sb, "btree_depth: %d\n", bs.Depth)
		fmt.Fprintf(&sb, "branch_pages: %d\n", bs.BranchPageN)
		fmt.Fprintf(&sb, "leaf_pages: %d\n", bs.LeafPageN)
		fmt.Fprintf(&sb, "leaf_inuse_bytes: %d\n", bs.LeafInuse)
		return nil
	})

	return sb.String()
}

// Close flushes and releases the database. Flush failures are logged, not
// returned. Close is idempotent.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.StopAutoBackup()
		e.closed.Store(true)

		if ferr := e.db.Sync(); ferr != nil {
			e.logger.Warn().Err(ferr).Msg("Flush on close failed")
		}
		if cerr := e.db.Close(); cerr != nil {
			err = fmt.Errorf("%w: close: %v", ErrDatabase, cerr)
		}

		if e.key != nil {
			e.key.Destroy()
		}
		e.releaseCodecs()

		metrics.UnregisterComponent("storage")
		metrics.UnregisterComponent("keystore")
		e.logger.Info().Str("path", e.Path()).Msg("Storage engine closed")
	})
	return err
}

func (e *Engine) releaseCodecs() {
	if e.comp != nil {
		e.comp.close()
	}
}

// encode turns a plaintext value into its stored form: compression frame
// first, then encryption.
func (e *Engine) encode(value []byte) ([]byte, error) {
	out := value
	if e.comp != nil {
		out = e.comp.compress(out)
	}
	if e.key != nil {
		return e.cipher.Encrypt(out, e.key.Bytes())
	}
	return bytes.Clone(out), nil
}

// decode reverses encode. The result never aliases bbolt memory.
func (e *Engine) decode(stored []byte) ([]byte, error) {
	out := stored
	if e.key != nil {
		plain, err := e.cipher.Decrypt(out, e.key.Bytes())
		if err != nil {
			return nil, err
		}
		out = plain
	}
	if e.comp != nil {
		return e.comp.decompress(out)
	}
	if e.key != nil {
		return out, nil
	}
	return append([]byte{}, out...), nil
}

// wrap attaches the operation and key, classifying bare bbolt errors as
// database errors while keeping codec kinds intact.
func (e *Engine) wrap(op, key string, err error) error {
	if isKind(err) {
		return fmt.Errorf("%s %q: %w", op, key, err)
	}
	return fmt.Errorf("%w: %s %q: %v", ErrDatabase, op, key, err)
}

func (e *Engine) observe(op string, timer *metrics.Timer, err error) {
	metrics.StorageOperationsTotal.WithLabelValues(op).Inc()
	timer.ObserveDurationVec(metrics.StorageOperationDuration, op)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues(op).Inc()
	}
}

// getRaw distinguishes a missing key from a present empty value
func getRaw(b *bolt.Bucket, key []byte) ([]byte, bool) {
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	return v, true
}

func forEachPrefix(b *bolt.Bucket, prefix []byte, fn func(k, v []byte) error) error {
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}
