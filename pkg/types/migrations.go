package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/asMODhias/VerseGuy-sub000/pkg/log"
	"github.com/asMODhias/VerseGuy-sub000/pkg/repository"
	"github.com/asMODhias/VerseGuy-sub000/pkg/storage"
)

// StoreMetadataKey holds the StoreMetadata document written by migration 1
const StoreMetadataKey = "meta:store"

// StoreMetadata describes the store itself
type StoreMetadata struct {
	Application string    `json:"application"`
	CreatedAt   time.Time `json:"created_at"`
}

// Migrations returns a manager with the schema migrations for these types
func Migrations() (*storage.MigrationManager, error) {
	mm := storage.NewMigrationManager()
	if err := mm.Register(1, "write store metadata", writeStoreMetadata); err != nil {
		return nil, err
	}
	if err := mm.Register(2, "normalize user emails", normalizeUserEmails); err != nil {
		return nil, err
	}
	return mm, nil
}

func writeStoreMetadata(s storage.Store) error {
	exists, err := s.Exists(StoreMetadataKey)
	if err != nil || exists {
		return err
	}

	data, err := json.Marshal(StoreMetadata{
		Application: "verseguy",
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: store metadata: %v", storage.ErrSerialization, err)
	}
	return s.Put(StoreMetadataKey, data)
}

func normalizeUserEmails(s storage.Store) error {
	users := repository.New[User](s)

	all, err := users.List()
	if err != nil {
		return err
	}

	changed := 0
	for _, u := range all {
		normalized := NormalizeEmail(u.Email)
		if normalized == u.Email {
			continue
		}
		u.Email = normalized
		u.Touch()
		if err := users.Save(u); err != nil {
			return err
		}
		changed++
	}

	logger := log.WithComponent("migration")
	logger.Info().
		Int("users", len(all)).
		Int("changed", changed).
		Msg("Normalized user emails")
	return nil
}
