package metastore

import "fmt"

// FileMeta represents a row in the files table. Timestamps are Unix
// milliseconds. IsDeleted is a tombstone: the row survives deletion so
// that delta sync can propagate it.
type FileMeta struct {
	Path      string `json:"path"`
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
	Mtime     int64  `json:"mtime"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	IsDeleted bool   `json:"is_deleted"`
}

const fileColumns = "path, hash, size, mtime, created_at, updated_at, is_deleted"

// GetFile returns the record for path, or nil if the path was never
// written. Tombstoned records are returned too; visibility is the
// caller's decision.
func (s *Store) GetFile(path string) (*FileMeta, error) {
	row := s.conn.QueryRow(`SELECT `+fileColumns+` FROM files WHERE path = ?`, path)
	var m FileMeta
	var deleted int64
	err := row.Scan(&m.Path, &m.Hash, &m.Size, &m.Mtime, &m.CreatedAt, &m.UpdatedAt, &deleted)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("metastore: get file: %w", err)
	}
	m.IsDeleted = deleted != 0
	return &m, nil
}

// ListFiles returns every file record, or only those with
// updated_at > *since when since is non-nil. Tombstones are included;
// no ordering is guaranteed.
func (s *Store) ListFiles(since *int64) ([]FileMeta, error) {
	query := `SELECT ` + fileColumns + ` FROM files`
	var args []any
	if since != nil {
		query += ` WHERE updated_at > ?`
		args = append(args, *since)
	}
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("metastore: list files: %w", err)
	}
	defer rows.Close()

	var out []FileMeta
	for rows.Next() {
		var m FileMeta
		var deleted int64
		if err := rows.Scan(&m.Path, &m.Hash, &m.Size, &m.Mtime, &m.CreatedAt, &m.UpdatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("metastore: scan file: %w", err)
		}
		m.IsDeleted = deleted != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertFile inserts or replaces a record keyed by path. created_at is
// preserved on conflict; a reused path clears the tombstone.
func (s *Store) UpsertFile(m FileMeta) error {
	_, err := s.conn.Exec(`
		INSERT INTO files (path, hash, size, mtime, created_at, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash       = excluded.hash,
			size       = excluded.size,
			mtime      = excluded.mtime,
			updated_at = excluded.updated_at,
			is_deleted = excluded.is_deleted
	`, m.Path, m.Hash, m.Size, m.Mtime, m.CreatedAt, m.UpdatedAt, boolToInt(m.IsDeleted))
	if err != nil {
		return fmt.Errorf("metastore: upsert file: %w", err)
	}
	return nil
}

// MarkDeleted sets the tombstone and refreshes updated_at so the
// deletion propagates through delta sync. Hash and size are untouched.
func (s *Store) MarkDeleted(path string) error {
	_, err := s.conn.Exec(`UPDATE files SET is_deleted = 1, updated_at = ? WHERE path = ?`, nowMillis(), path)
	if err != nil {
		return fmt.Errorf("metastore: mark deleted: %w", err)
	}
	return nil
}

// RemoveFile physically removes a record. Only explicit purge paths use
// this; ordinary deletion goes through MarkDeleted.
func (s *Store) RemoveFile(path string) error {
	_, err := s.conn.Exec(`DELETE FROM files WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("metastore: remove file: %w", err)
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
