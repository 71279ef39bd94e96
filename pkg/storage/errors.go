package storage

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package (and by pkg/repository)
// wraps exactly one of these, so callers can branch with errors.Is.
var (
	ErrConfiguration   = errors.New("invalid storage configuration")
	ErrOpen            = errors.New("failed to open storage")
	ErrDatabase        = errors.New("database error")
	ErrSerialization   = errors.New("serialization failed")
	ErrDeserialization = errors.New("deserialization failed")
	ErrEncryption      = errors.New("encryption failed")
	ErrDecryption      = errors.New("decryption failed")
	ErrVersionConflict = errors.New("version conflict")
	ErrNotFound        = errors.New("not found")
	ErrMigration       = errors.New("migration failed")

	// ErrTxDone is returned when a committed or rolled back transaction is reused
	ErrTxDone = errors.New("transaction already finished")
	// ErrClosed is returned by every operation on a closed engine
	ErrClosed = errors.New("storage engine closed")
)

// VersionConflictError reports an optimistic-lock violation for a single key.
// Expected is the version carried by the caller, Actual the stored version.
type VersionConflictError struct {
	Key      string
	Expected uint64
	Actual   uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %d, stored %d", e.Key, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrVersionConflict) hold
func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

var kinds = []error{
	ErrConfiguration, ErrOpen, ErrDatabase, ErrSerialization, ErrDeserialization,
	ErrEncryption, ErrDecryption, ErrVersionConflict, ErrNotFound, ErrMigration,
	ErrTxDone, ErrClosed,
}

// isKind reports whether err is already classified
func isKind(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
