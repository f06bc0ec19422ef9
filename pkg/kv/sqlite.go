package kv

import (
	"context"
	"database/sql"

	"github.com/japaniel/readmark/pkg/db"
)

// SQLite stores values in the kv table of the application database.
type SQLite struct {
	DB *sql.DB
}

// NewSQLite wraps an already migrated database.
func NewSQLite(conn *sql.DB) *SQLite {
	return &SQLite{DB: conn}
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return db.KVGet(ctx, s.DB, key)
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	return db.KVSet(ctx, s.DB, key, value)
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	return db.KVDelete(ctx, s.DB, key)
}

func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	return db.KVKeys(ctx, s.DB, prefix)
}
