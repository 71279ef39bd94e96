/*
Package repository provides typed, versioned access to the storage engine.

A Repository[T] maps entities to keys of the form "{entity_type}:{id}" and
enforces optimistic concurrency: Save succeeds only when the stored copy has
the same version as the one being saved, then bumps the version. The check
and write run inside storage.Engine.Update, a single bbolt write transaction,
so two concurrent saves of the same version cannot both win.

	users := repository.New[types.User](engine)

	u := types.NewUser("u-1", "alice", "Alice@Example.com")
	if err := users.Save(u); err != nil { // u.Version is now 1
		return err
	}

	stale := *u
	u.DisplayName = "Alice"
	_ = users.Save(u)      // ok, version 2
	err := users.Save(&stale) // errors.Is(err, storage.ErrVersionConflict)

Reads are strict and listings are tolerant: Get returns
storage.ErrDeserialization for a record that does not decode, while List
logs and skips it. Count counts keys without decoding.

Entities are encoded with JSON unless WithCodec(CBORCodec{}) is given. An
optional WithCache keeps encoded entities in a pkg/cache LRU to spare the
decrypt and decompress on hot reads.
*/
package repository
