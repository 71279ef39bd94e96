package storage

// KV is a single key/value pair returned by prefix scans
type KV struct {
	Key   string
	Value []byte
}

// UpdateFunc receives the current decoded value of a key (found reports
// whether it exists) and returns the value to write. Returning an error
// aborts the update and leaves the key untouched.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

// Store defines the key/value operations shared by the engine and its
// consumers (repositories, migrations). Values passed in and returned are
// plaintext; encryption and compression are the implementation's concern.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Exists(key string) (bool, error)
	ScanPrefix(prefix string) ([]KV, error)
	CountPrefix(prefix string) (int, error)
	Update(key string, fn UpdateFunc) error
	Flush() error
}

var _ Store = (*Engine)(nil)
