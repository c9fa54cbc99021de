package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteKVStore stores opaque values in SQLite.
type SQLiteKVStore struct {
	db *sql.DB
}

// Ensure SQLiteKVStore implements KVStore.
var _ KVStore = (*SQLiteKVStore)(nil)

func NewSQLiteKVStore(db *sql.DB) (*SQLiteKVStore, error) {
	s := &SQLiteKVStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteKVStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

func (s *SQLiteKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	return v, err
}

func (s *SQLiteKVStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixNano(),
	)
	return err
}
