package persistence

import "database/sql"

// Persistence bundles the store interfaces so callers can depend on a
// single abstraction.
type Persistence struct {
	Jobs JobStore
	KV   KVStore
}

// NewInMemory returns a Persistence backed by maps.
func NewInMemory() Persistence {
	return Persistence{
		Jobs: NewInMemoryJobStore(),
		KV:   NewInMemoryKVStore(),
	}
}

// NewSQLite initializes both schemas in db.
func NewSQLite(db *sql.DB) (Persistence, error) {
	jobs, err := NewSQLiteJobStore(db)
	if err != nil {
		return Persistence{}, err
	}
	kv, err := NewSQLiteKVStore(db)
	if err != nil {
		return Persistence{}, err
	}
	return Persistence{Jobs: jobs, KV: kv}, nil
}
