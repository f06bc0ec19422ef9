package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the SQLite database at path and runs migrations.
// ":memory:" is pinned to a single connection so every query sees the same database.
func Open(path string) (*sql.DB, error) {
	dsn := path
	switch {
	case path == ":memory:":
		dsn = path + "?_foreign_keys=on"
	case !strings.Contains(path, "?"):
		dsn = path + "?_busy_timeout=5000&_foreign_keys=on"
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

// InitDB runs migrations on the given DB connection.
func InitDB(db *sql.DB) error {
	stmts := strings.Split(migrationsSQL, ";")
	for _, s := range stmts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

const migrationsSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	author      TEXT,
	site        TEXT,
	url         TEXT UNIQUE,
	language    TEXT NOT NULL DEFAULT '',
	level       TEXT,
	topic       TEXT,
	excerpt     TEXT,
	content     TEXT NOT NULL,
	added_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_added_at ON documents(added_at);
CREATE INDEX IF NOT EXISTS idx_documents_level ON documents(level);

CREATE TABLE IF NOT EXISTS vocabulary (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id      TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	word             TEXT NOT NULL,
	reading          TEXT,
	part_of_speech   TEXT,
	definitions      TEXT,
	article          TEXT,
	english          TEXT,
	plural           TEXT,
	occurrence_count INTEGER NOT NULL DEFAULT 1,
	UNIQUE(document_id, word)
);

CREATE TABLE IF NOT EXISTS grammar_patterns (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	pattern     TEXT NOT NULL,
	example     TEXT,
	explanation TEXT,
	UNIQUE(document_id, position)
);

CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
