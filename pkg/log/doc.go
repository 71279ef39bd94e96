/*
Package log provides structured logging for VerseGuy using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance (stderr until Init)     │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("storage")                 │          │
	│  │  - WithKey("repository", "user:42")         │          │
	│  │  - WithTxID("7f0c...")                      │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	logger := log.WithComponent("storage")
	logger.Warn().Str("path", path).Msg("Encryption key could not be persisted")

# Conventions

Components used across the storage subsystem:

  - storage: engine open/close, flush failures, backups
  - keystore: key resolution and persistence fallbacks
  - repository: skipped records on tolerant listing
  - migration: applied migrations
  - transaction: abandoned or failed batches
  - cache: evictions at debug level

Never log key material or decrypted values. Keys (storage keys, not encryption keys)
are safe to log.
*/
package log
