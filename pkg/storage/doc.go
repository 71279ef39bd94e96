/*
Package storage provides the encrypted, embedded key/value engine shared by every
VerseGuy service (identity, organizations, fleets, operations, audit, licensing,
plugin trust records).

The package owns durability, encryption at rest, key lifecycle, batched writes,
migrations and backups. Higher layers (pkg/repository, pkg/cache) build typed and
cached access on top of the Store interface and never touch bbolt directly.

# Architecture

	┌──────────────────── STORAGE ENGINE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │               Engine                        │          │
	│  │  - File: <path>/store.db (bbolt)            │          │
	│  │  - Bucket: kv (flat, ordered byte keys)     │          │
	│  │  - Key: memguard LockedBuffer               │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Value Pipeline                   │          │
	│  │  write: plaintext → zstd frame → AEAD seal  │          │
	│  │  read:  AEAD open → zstd frame → plaintext  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              KeyStore                       │          │
	│  │  1. encryption_key from config              │          │
	│  │  2. OS credential store                     │          │
	│  │     service  verseguy-storage               │          │
	│  │     account  storage-key-<sha256(path)[:12]>│          │
	│  │  3. <parent(path)>/encryption.key           │          │
	│  │  4. generate + persist (2, else 3)          │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

# Encryption

Values are sealed with AES-256-GCM (default) or XChaCha20-Poly1305, selected by
encryption_cipher. Each value gets a fresh random nonce which is prepended to the
ciphertext. Tampered or truncated values fail with ErrDecryption; the engine never
returns unauthenticated plaintext. Keys are not encrypted: prefix scans need them
in order.

Changing encryption_enabled, encryption_cipher or compression_enabled on an existing
database makes existing values unreadable. Migrate by exporting and re-importing.

# Key Persistence

A freshly generated key that cannot be stored in either the credential store or the
key file is still used for the lifetime of the process, and a warning is logged.
Set require_key_persistence to make Open fail instead.

# Concurrency

bbolt serializes write transactions and gives readers consistent snapshots. The
engine adds no locking of its own around single operations.

Update runs read-modify-write of one key inside one write transaction, which makes
it a compare-and-swap primitive: pkg/repository builds its optimistic version check
on it, so two concurrent saves of the same entity cannot both succeed.

Transaction buffers operations and applies them in order inside a single write
transaction on Commit. Either all operations land or none do. Readers never see a
partially applied batch.

# Usage

	cfg := storage.DefaultConfig()
	cfg.Path = "/var/lib/verseguy/data"

	engine, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Put("user:1", payload); err != nil {
		return err
	}
	value, found, err := engine.Get("user:1")

	tx := engine.Begin()
	defer tx.Rollback()
	tx.Put("ship:1", shipBytes)
	tx.Delete("ship:0")
	if err := tx.Commit(); err != nil {
		return err
	}

Migrations:

	mm := storage.NewMigrationManager()
	mm.Register(1, "seed defaults", func(s storage.Store) error {
		return s.Put("meta:format", []byte("1"))
	})
	applied, err := mm.Run(engine)

Markers are stored under "migration:applied:<version>" with the UTC application
time, so running again is a no-op.

# Backups

Backup writes a consistent snapshot of the bbolt file to backup_dir (default
<parent(path)>/backups) named store-<UTC timestamp>.db, then keeps the newest
backup_retention copies. StartAutoBackup repeats this every auto_backup_hours.
RestoreBackup copies a verified backup over the database file of a closed store.

# Errors

Every error wraps one kind: ErrConfiguration, ErrOpen, ErrDatabase,
ErrSerialization, ErrDeserialization, ErrEncryption, ErrDecryption,
ErrVersionConflict, ErrNotFound, ErrMigration (plus ErrTxDone, ErrClosed).
Use errors.Is to branch on them.
*/
package storage
