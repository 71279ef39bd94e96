package storage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/asMODhias/VerseGuy-sub000/pkg/events"
	"github.com/asMODhias/VerseGuy-sub000/pkg/log"
	"github.com/asMODhias/VerseGuy-sub000/pkg/metrics"
)

// MigrationMarkerPrefix prefixes the marker key written for every applied migration
const MigrationMarkerPrefix = "migration:applied:"

// MigrationFunc applies one schema/data change
type MigrationFunc func(store Store) error

// Migration is a named, versioned change applied at most once per store
type Migration struct {
	Version     uint64
	Description string
	Up          MigrationFunc
}

// MarkerKey is the key recording that version has been applied
func MarkerKey(version uint64) string {
	return MigrationMarkerPrefix + strconv.FormatUint(version, 10)
}

// MigrationManager runs registered migrations in ascending version order.
// It is not safe for concurrent registration.
type MigrationManager struct {
	migrations []Migration
	events     events.Publisher
}

// NewMigrationManager creates an empty manager
func NewMigrationManager() *MigrationManager {
	return &MigrationManager{}
}

// SetPublisher makes Run publish a migration.applied event per migration
func (m *MigrationManager) SetPublisher(p events.Publisher) {
	m.events = p
}

// Register adds a migration. Registration order does not matter; the list is
// kept sorted by version. Registering a version twice is an error.
func (m *MigrationManager) Register(version uint64, description string, up MigrationFunc) error {
	if up == nil {
		return fmt.Errorf("%w: v%d (%s): nil migration function", ErrMigration, version, description)
	}
	for _, existing := range m.migrations {
		if existing.Version == version {
			return fmt.Errorf("%w: v%d already registered as %q", ErrMigration, version, existing.Description)
		}
	}

	m.migrations = append(m.migrations, Migration{Version: version, Description: description, Up: up})
	sort.Slice(m.migrations, func(i, j int) bool { return m.migrations[i].Version < m.migrations[j].Version })
	return nil
}

// Migrations returns a copy of the registered migrations in version order
func (m *MigrationManager) Migrations() []Migration {
	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	return out
}

// Run applies every migration whose marker is absent, in version order, and
// writes the marker after each success. It stops at the first failure,
// leaving that migration unmarked so a later Run retries it.
func (m *MigrationManager) Run(store Store) (int, error) {
	logger := log.WithComponent("migration")
	applied := 0

	for _, migration := range m.migrations {
		key := MarkerKey(migration.Version)
		done, err := store.Exists(key)
		if err != nil {
			return applied, fmt.Errorf("%w: check v%d: %w", ErrMigration, migration.Version, err)
		}
		if done {
			continue
		}

		logger.Info().Uint64("version", migration.Version).Str("description", migration.Description).Msg("Applying migration")
		if err := migration.Up(store); err != nil {
			return applied, fmt.Errorf("%w: v%d (%s): %w", ErrMigration, migration.Version, migration.Description, err)
		}

		if err := store.Put(key, []byte(nowUTCString())); err != nil {
			return applied, fmt.Errorf("%w: record v%d: %w", ErrMigration, migration.Version, err)
		}
		metrics.MigrationsAppliedTotal.Inc()
		events.Emit(m.events, events.EventMigrationApplied, key, migration.Description)
		applied++
	}

	if applied > 0 {
		if err := store.Flush(); err != nil {
			return applied, fmt.Errorf("%w: flush: %w", ErrMigration, err)
		}
	}
	return applied, nil
}

// AppliedMigration is a marker read back from the store
type AppliedMigration struct {
	Version   uint64
	AppliedAt time.Time
}

// Applied lists every migration marker present in store, in version order.
// Markers for versions this manager does not know about are included.
func (m *MigrationManager) Applied(store Store) ([]AppliedMigration, error) {
	kvs, err := store.ScanPrefix(MigrationMarkerPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list markers: %w", ErrMigration, err)
	}

	out := make([]AppliedMigration, 0, len(kvs))
	for _, kv := range kvs {
		version, err := strconv.ParseUint(strings.TrimPrefix(kv.Key, MigrationMarkerPrefix), 10, 64)
		if err != nil {
			continue
		}
		at, _ := time.Parse(time.RFC3339Nano, string(kv.Value))
		out = append(out, AppliedMigration{Version: version, AppliedAt: at})
	}
	// markers sort lexicographically, versions numerically
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Pending lists registered migrations that have not been applied to store
func (m *MigrationManager) Pending(store Store) ([]Migration, error) {
	var out []Migration
	for _, migration := range m.migrations {
		done, err := store.Exists(MarkerKey(migration.Version))
		if err != nil {
			return nil, fmt.Errorf("%w: check v%d: %w", ErrMigration, migration.Version, err)
		}
		if !done {
			out = append(out, migration)
		}
	}
	return out, nil
}

func nowUTCString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
