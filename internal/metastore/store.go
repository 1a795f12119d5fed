// Package metastore provides the SQLite-backed metadata index: file and
// note records, tag associations, the note search index, and auth
// token/challenge state.
package metastore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	path        TEXT NOT NULL UNIQUE,
	hash        TEXT NOT NULL,
	size        INTEGER NOT NULL,
	mtime       INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	is_deleted  INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS notes (
	id          TEXT PRIMARY KEY,
	path        TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL,
	hash        TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	is_deleted  INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tags (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	name    TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS note_tags (
	note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	tag_id  INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (note_id, tag_id)
);

CREATE TABLE IF NOT EXISTS auth_tokens (
	token       TEXT PRIMARY KEY,
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL,
	last_used   INTEGER
);

CREATE TABLE IF NOT EXISTS auth_challenges (
	challenge   TEXT PRIMARY KEY,
	public_key  TEXT NOT NULL,
	expires_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
CREATE INDEX IF NOT EXISTS idx_files_updated ON files(updated_at);
CREATE INDEX IF NOT EXISTS idx_notes_path ON notes(path);
CREATE INDEX IF NOT EXISTS idx_note_tags_note ON note_tags(note_id);
CREATE INDEX IF NOT EXISTS idx_note_tags_tag ON note_tags(tag_id);
`

// Store wraps a sql.DB with metadata-index operations. A single open
// connection serializes all writers; readers queue behind it, which is
// the intended single-writer discipline for the embedded database.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Schema creation is idempotent and runs on every startup.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("metastore: open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("metastore: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("metastore: apply core schema: %w", err)
	}
	if err := initSearchSchema(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("metastore: apply search schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.conn.Ping()
}

// nowMillis returns the current wall clock in Unix milliseconds, the
// timestamp unit for file and note records.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// nowSeconds returns the current wall clock in Unix seconds, the
// timestamp unit for auth tokens and challenges.
func nowSeconds() int64 {
	return time.Now().Unix()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
