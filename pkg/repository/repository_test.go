package repository

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asMODhias/VerseGuy-sub000/pkg/cache"
	"github.com/asMODhias/VerseGuy-sub000/pkg/events"
	"github.com/asMODhias/VerseGuy-sub000/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pilot struct {
	ID      string `json:"id" cbor:"id"`
	Version uint64 `json:"version" cbor:"version"`
	Name    string `json:"name" cbor:"name"`
	Rank    int    `json:"rank" cbor:"rank"`
}

func (*pilot) EntityType() string      { return "user" }
func (p *pilot) EntityID() string      { return p.ID }
func (p *pilot) EntityVersion() uint64 { return p.Version }
func (p *pilot) IncrementVersion()     { p.Version++ }

type vessel struct {
	ID      string `json:"id"`
	Version uint64 `json:"version"`
	Model   string `json:"model"`
}

func (*vessel) EntityType() string      { return "ship" }
func (v *vessel) EntityID() string      { return v.ID }
func (v *vessel) EntityVersion() uint64 { return v.Version }
func (v *vessel) IncrementVersion()     { v.Version++ }

type memCredentials struct {
	mu      sync.Mutex
	secrets map[string]string
}

func (m *memCredentials) Get(service, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.secrets[service+"/"+account]
	if !ok {
		return "", storage.ErrCredentialNotFound
	}
	return v, nil
}

func (m *memCredentials) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[service+"/"+account] = secret
	return nil
}

func openEngine(t *testing.T) *storage.Engine {
	t.Helper()

	cfg := storage.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "data")
	cfg.AutoBackupHours = 0

	e, err := storage.Open(cfg, storage.WithCredentialStore(&memCredentials{secrets: map[string]string{}}))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func codecs() []Codec {
	return []Codec{JSONCodec{}, CBORCodec{}}
}

func TestSaveGetRoundTrip(t *testing.T) {
	for _, codec := range codecs() {
		t.Run(codec.Name(), func(t *testing.T) {
			repo := New[pilot](openEngine(t), WithCodec(codec))

			p := &pilot{ID: "p-1", Version: 0, Name: "Ace", Rank: 3}
			require.NoError(t, repo.Save(p))
			assert.Equal(t, uint64(1), p.Version, "save bumps the caller's version")

			got, found, err := repo.Get("p-1")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, &pilot{ID: "p-1", Version: 1, Name: "Ace", Rank: 3}, got)

			p.Rank = 4
			require.NoError(t, repo.Save(p))
			assert.Equal(t, uint64(2), p.Version)

			got, err = repo.GetRequired("p-1")
			require.NoError(t, err)
			assert.Equal(t, 4, got.Rank)
			assert.Equal(t, uint64(2), got.Version)
		})
	}
}

func TestSaveVersionConflict(t *testing.T) {
	e := openEngine(t)
	repo := New[pilot](e)

	p := &pilot{ID: "p-1", Name: "Ace"}
	require.NoError(t, repo.Save(p))
	require.NoError(t, repo.Save(p))
	require.Equal(t, uint64(2), p.Version)

	before, _, err := e.Get(repo.Key("p-1"))
	require.NoError(t, err)

	for _, claimed := range []uint64{0, 1, 3, 99} {
		stale := &pilot{ID: "p-1", Version: claimed, Name: "Impostor"}
		err := repo.Save(stale)

		assert.ErrorIs(t, err, storage.ErrVersionConflict, "claimed version %d", claimed)
		var conflict *storage.VersionConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "user:p-1", conflict.Key)
		assert.Equal(t, claimed, conflict.Expected)
		assert.Equal(t, uint64(2), conflict.Actual)
		assert.Equal(t, claimed, stale.Version, "caller's version untouched on conflict")
	}

	after, _, err := e.Get(repo.Key("p-1"))
	require.NoError(t, err)
	assert.Equal(t, before, after, "stored state unchanged")
}

func TestSaveNewEntityIgnoresInitialVersion(t *testing.T) {
	repo := New[pilot](openEngine(t))

	p := &pilot{ID: "fresh", Version: 41}
	require.NoError(t, repo.Save(p))
	assert.Equal(t, uint64(42), p.Version)

	got, err := repo.GetRequired("fresh")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.Version)
}

func TestSaveIsCompareAndSwap(t *testing.T) {
	repo := New[pilot](openEngine(t))
	require.NoError(t, repo.Save(&pilot{ID: "p-1"}))

	const writers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := &pilot{ID: "p-1", Version: 1, Name: fmt.Sprint(i)}
			err := repo.Save(p)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, storage.ErrVersionConflict)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one writer wins a version")
	got, err := repo.GetRequired("p-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
}

func TestGetErrors(t *testing.T) {
	e := openEngine(t)
	repo := New[pilot](e)

	got, found, err := repo.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)

	_, err = repo.GetRequired("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, e.Put("user:broken", []byte("{not json")))
	_, _, err = repo.Get("broken")
	assert.ErrorIs(t, err, storage.ErrDeserialization)
}

func TestSaveOverUndecodableRecordFails(t *testing.T) {
	e := openEngine(t)
	repo := New[pilot](e)
	require.NoError(t, e.Put("user:broken", []byte("{not json")))

	err := repo.Save(&pilot{ID: "broken"})
	assert.ErrorIs(t, err, storage.ErrDeserialization)
}

func TestDeleteAndExists(t *testing.T) {
	repo := New[pilot](openEngine(t))

	require.NoError(t, repo.Save(&pilot{ID: "p-1"}))
	exists, err := repo.Exists("p-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.Delete("p-1"))
	require.NoError(t, repo.Delete("p-1"))

	exists, err = repo.Exists("p-1")
	require.NoError(t, err)
	assert.False(t, exists)

	// delete is unconditional, so a recreated id starts over
	p := &pilot{ID: "p-1", Version: 7}
	require.NoError(t, repo.Save(p))
	assert.Equal(t, uint64(8), p.Version)
}

func TestListSkipsUndecodable(t *testing.T) {
	e := openEngine(t)
	repo := New[pilot](e)

	require.NoError(t, repo.Save(&pilot{ID: "a", Name: "Ace"}))
	require.NoError(t, repo.Save(&pilot{ID: "c", Name: "Cat"}))
	require.NoError(t, e.Put("user:b", []byte("{corrupt")))

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[1].ID)

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n, "count does not decode")
}

func TestPrefixIsolation(t *testing.T) {
	e := openEngine(t)
	pilots := New[pilot](e)
	vessels := New[vessel](e)

	require.NoError(t, pilots.Save(&pilot{ID: "42", Name: "Ace"}))
	require.NoError(t, vessels.Save(&vessel{ID: "42", Model: "Carrack"}))
	require.NoError(t, vessels.Save(&vessel{ID: "43", Model: "Cutlass"}))

	ships, err := vessels.List()
	require.NoError(t, err)
	require.Len(t, ships, 2)
	for _, s := range ships {
		assert.NotEmpty(t, s.Model)
	}

	users, err := pilots.List()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Ace", users[0].Name)

	n, err := vessels.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, "ship", vessels.EntityType())
	assert.Equal(t, "ship:42", vessels.Key("42"))
}

func TestFind(t *testing.T) {
	repo := New[pilot](openEngine(t))
	for i, name := range []string{"Ace", "Bolt", "Cat", "Dash"} {
		require.NoError(t, repo.Save(&pilot{ID: fmt.Sprintf("p-%d", i), Name: name, Rank: i}))
	}

	senior, err := repo.Find(func(p *pilot) bool { return p.Rank >= 2 })
	require.NoError(t, err)
	require.Len(t, senior, 2)
	assert.Equal(t, "Cat", senior[0].Name)

	first, found, err := repo.FindOne(func(p *pilot) bool { return p.Rank >= 1 })
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Bolt", first.Name)

	_, found, err = repo.FindOne(func(p *pilot) bool { return p.Rank > 10 })
	require.NoError(t, err)
	assert.False(t, found)

	none, err := repo.Find(func(p *pilot) bool { return false })
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := repo.Find(nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	first, found, err = repo.FindOne(nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Ace", first.Name)
}

func TestRepositoryWithCache(t *testing.T) {
	e := openEngine(t)
	c, err := cache.New[string, []byte](16, time.Minute, cache.WithName("repository-test"))
	require.NoError(t, err)
	repo := New[pilot](e, WithCache(c))

	p := &pilot{ID: "p-1", Name: "Ace"}
	require.NoError(t, repo.Save(p))
	assert.Equal(t, 1, c.Len(), "save populates the cache")

	got, err := repo.GetRequired("p-1")
	require.NoError(t, err)
	assert.Equal(t, "Ace", got.Name)
	assert.Equal(t, uint64(1), c.Stats().Hits)

	// a stale cached copy never lets a conflicting save through
	require.NoError(t, repo.Save(p))
	err = repo.Save(&pilot{ID: "p-1", Version: 1})
	assert.ErrorIs(t, err, storage.ErrVersionConflict)

	got, err = repo.GetRequired("p-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)

	require.NoError(t, repo.Delete("p-1"))
	assert.Zero(t, c.Len())
	_, found, err := repo.Get("p-1")
	require.NoError(t, err)
	assert.False(t, found)
}

// slowReadStore runs afterGet once, between reading a value and returning it
type slowReadStore struct {
	storage.Store
	afterGet func()
}

func (s *slowReadStore) Get(key string) ([]byte, bool, error) {
	data, found, err := s.Store.Get(key)
	if hook := s.afterGet; hook != nil {
		s.afterGet = nil
		hook()
	}
	return data, found, err
}

func TestCacheFillDoesNotOverwriteNewerSave(t *testing.T) {
	e := openEngine(t)
	c, err := cache.New[string, []byte](16, time.Minute, cache.WithName("repository-race"))
	require.NoError(t, err)

	slow := &slowReadStore{Store: e}
	reader := New[pilot](slow, WithCache(c))
	writer := New[pilot](e, WithCache(c))

	p := &pilot{ID: "p-1", Name: "Ace"}
	require.NoError(t, writer.Save(p))
	c.Clear()

	slow.afterGet = func() {
		p.Name = "Ace II"
		require.NoError(t, writer.Save(p))
	}

	got, err := reader.GetRequired("p-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version, "the read itself saw the older value")

	got, err = reader.GetRequired("p-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, "Ace II", got.Name)
}

func TestRepositoriesShareStore(t *testing.T) {
	e := openEngine(t)
	a := New[pilot](e)
	b := New[pilot](e)

	p := &pilot{ID: "p-1"}
	require.NoError(t, a.Save(p))

	got, err := b.GetRequired("p-1")
	require.NoError(t, err)
	require.NoError(t, b.Save(got))

	assert.ErrorIs(t, a.Save(p), storage.ErrVersionConflict)
}

func TestRepositoryEvents(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	repo := New[pilot](openEngine(t), WithEvents(broker))

	p := &pilot{ID: "p-1"}
	require.NoError(t, repo.Save(p))
	assert.Error(t, repo.Save(&pilot{ID: "p-1", Version: 0}))
	require.NoError(t, repo.Delete("p-1"))

	var got []events.EventType
	for len(got) < 3 {
		select {
		case ev := <-sub:
			assert.Equal(t, "user:p-1", ev.Key)
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []events.EventType{
		events.EventEntitySaved,
		events.EventVersionConflict,
		events.EventEntityDeleted,
	}, got)
}
