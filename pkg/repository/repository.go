package repository

import (
	"errors"
	"fmt"

	"github.com/asMODhias/VerseGuy-sub000/pkg/cache"
	"github.com/asMODhias/VerseGuy-sub000/pkg/events"
	"github.com/asMODhias/VerseGuy-sub000/pkg/log"
	"github.com/asMODhias/VerseGuy-sub000/pkg/metrics"
	"github.com/asMODhias/VerseGuy-sub000/pkg/storage"
	"github.com/rs/zerolog"
)

// Entity is implemented by every type a Repository can store
type Entity interface {
	// EntityType is the key namespace, e.g. "user". It must not depend on
	// the receiver's contents; it is called on zero values.
	EntityType() string
	EntityID() string
	EntityVersion() uint64
	IncrementVersion()
}

// Option configures a Repository
type Option func(*config)

type config struct {
	codec  Codec
	cache  *cache.Cache[string, []byte]
	events events.Publisher
}

// WithCodec overrides the default JSON codec
func WithCodec(c Codec) Option {
	return func(cfg *config) {
		cfg.codec = c
	}
}

// WithCache enables a read-through cache of encoded entities keyed by
// storage key. One cache may be shared by several repositories.
func WithCache(c *cache.Cache[string, []byte]) Option {
	return func(cfg *config) {
		cfg.cache = c
	}
}

// WithEvents publishes saved, deleted and conflict events on p
func WithEvents(p events.Publisher) Option {
	return func(cfg *config) {
		cfg.events = p
	}
}

// Repository stores entities of type T under "{entity_type}:{id}" keys with
// optimistic concurrency on the entity version. Repositories for different
// types can share a single store.
type Repository[T any, PT interface {
	*T
	Entity
}] struct {
	store      storage.Store
	codec      Codec
	cache      *cache.Cache[string, []byte]
	events     events.Publisher
	entityType string
	logger     zerolog.Logger
}

// New creates a repository for T backed by store
func New[T any, PT interface {
	*T
	Entity
}](store storage.Store, opts ...Option) *Repository[T, PT] {
	cfg := config{codec: JSONCodec{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	entityType := PT(new(T)).EntityType()
	return &Repository[T, PT]{
		store:      store,
		codec:      cfg.codec,
		cache:      cfg.cache,
		events:     cfg.events,
		entityType: entityType,
		logger: log.WithComponent("repository").With().
			Str("entity_type", entityType).
			Logger(),
	}
}

// EntityType returns the namespace this repository writes under
func (r *Repository[T, PT]) EntityType() string {
	return r.entityType
}

// Key returns the storage key for id
func (r *Repository[T, PT]) Key(id string) string {
	return r.prefix() + id
}

func (r *Repository[T, PT]) prefix() string {
	return r.entityType + ":"
}

// Save writes entity if the stored copy, when there is one, carries the same
// version. On success the entity's version is incremented in place. The check
// and the write happen in one storage transaction, so concurrent saves of the
// same id cannot both succeed.
func (r *Repository[T, PT]) Save(entity PT) error {
	if entity == nil {
		return fmt.Errorf("%w: nil %s", storage.ErrSerialization, r.entityType)
	}

	id := entity.EntityID()
	key := r.Key(id)
	expected := entity.EntityVersion()

	var written []byte
	err := r.store.Update(key, func(current []byte, found bool) ([]byte, error) {
		if found {
			stored := PT(new(T))
			if err := r.codec.Unmarshal(current, stored); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", storage.ErrDeserialization, key, err)
			}
			if actual := stored.EntityVersion(); actual != expected {
				return nil, &storage.VersionConflictError{Key: key, Expected: expected, Actual: actual}
			}
		}

		// Encode a copy so the caller's value only changes once the write lands
		next := *entity
		PT(&next).IncrementVersion()
		data, err := r.codec.Marshal(PT(&next))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", storage.ErrSerialization, key, err)
		}
		written = data
		return data, nil
	})
	if err != nil {
		var conflict *storage.VersionConflictError
		if errors.As(err, &conflict) {
			metrics.VersionConflictsTotal.WithLabelValues(r.entityType).Inc()
			r.logger.Debug().
				Str("id", id).
				Uint64("expected", conflict.Expected).
				Uint64("actual", conflict.Actual).
				Msg("Version conflict on save")
			events.Emit(r.events, events.EventVersionConflict, key, conflict.Error())
		}
		if r.cache != nil {
			r.cache.Invalidate(key)
		}
		return err
	}

	entity.IncrementVersion()
	if r.cache != nil {
		// Invalidating first fails any fill that read the previous bytes
		r.cache.Invalidate(key)
		r.cache.Put(key, written)
	}
	events.Emit(r.events, events.EventEntitySaved, key, "")
	return nil
}

// Get returns the entity with id. A stored value that cannot be decoded is
// an error.
func (r *Repository[T, PT]) Get(id string) (PT, bool, error) {
	key := r.Key(id)

	data, found, err := r.load(key)
	if err != nil || !found {
		return nil, false, err
	}

	entity := PT(new(T))
	if err := r.codec.Unmarshal(data, entity); err != nil {
		if r.cache != nil {
			r.cache.Invalidate(key)
		}
		return nil, false, fmt.Errorf("%w: %s: %v", storage.ErrDeserialization, key, err)
	}
	return entity, true, nil
}

// GetRequired is Get that treats absence as ErrNotFound
func (r *Repository[T, PT]) GetRequired(id string) (PT, error) {
	entity, found, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, r.Key(id))
	}
	return entity, nil
}

// Delete removes id regardless of its version
func (r *Repository[T, PT]) Delete(id string) error {
	key := r.Key(id)
	err := r.store.Delete(key)
	if r.cache != nil {
		r.cache.Invalidate(key)
	}
	if err != nil {
		return err
	}
	events.Emit(r.events, events.EventEntityDeleted, key, "")
	return nil
}

func (r *Repository[T, PT]) Exists(id string) (bool, error) {
	key := r.Key(id)
	if r.cache != nil {
		if _, ok := r.cache.Get(key); ok {
			return true, nil
		}
	}
	return r.store.Exists(key)
}

// List returns every entity of this type in key order. Records that fail
// to decode are logged and skipped.
func (r *Repository[T, PT]) List() ([]PT, error) {
	kvs, err := r.store.ScanPrefix(r.prefix())
	if err != nil {
		return nil, err
	}

	entities := make([]PT, 0, len(kvs))
	for _, kv := range kvs {
		entity := PT(new(T))
		if err := r.codec.Unmarshal(kv.Value, entity); err != nil {
			metrics.SkippedRecordsTotal.WithLabelValues(r.entityType).Inc()
			r.logger.Warn().
				Str("key", kv.Key).
				Str("codec", r.codec.Name()).
				Err(err).
				Msg("Skipping undecodable record")
			continue
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// Count returns the number of stored keys of this type without decoding
// them. It can exceed len(List()) when records are corrupt.
func (r *Repository[T, PT]) Count() (int, error) {
	return r.store.CountPrefix(r.prefix())
}

// Find returns every listed entity matching pred. A nil pred matches
// everything.
func (r *Repository[T, PT]) Find(pred func(PT) bool) ([]PT, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	if pred == nil {
		return all, nil
	}

	var matched []PT
	for _, e := range all {
		if pred(e) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// FindOne returns the first entity in key order matching pred, or the
// first entity when pred is nil
func (r *Repository[T, PT]) FindOne(pred func(PT) bool) (PT, bool, error) {
	all, err := r.List()
	if err != nil {
		return nil, false, err
	}

	for _, e := range all {
		if pred == nil || pred(e) {
			return e, true, nil
		}
	}
	return nil, false, nil
}

func (r *Repository[T, PT]) load(key string) ([]byte, bool, error) {
	var gen uint64
	if r.cache != nil {
		if data, ok := r.cache.Get(key); ok {
			return data, true, nil
		}
		gen = r.cache.Generation()
	}

	data, found, err := r.store.Get(key)
	if err != nil || !found {
		return nil, found, err
	}
	if r.cache != nil {
		r.cache.PutIfCurrent(key, data, gen)
	}
	return data, true, nil
}
