//go:build !sqlite_fts5

package metastore

import (
	"database/sql"
	"fmt"
)

func initSearchSchema(conn *sql.DB) error {
	// FTS5 not compiled in; search falls back to LIKE over a plain table
	// with the same shape, so UpdateFTS/RemoveFTS work unchanged.
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS notes_search (
			note_id TEXT PRIMARY KEY,
			title   TEXT NOT NULL DEFAULT '',
			body    TEXT NOT NULL DEFAULT ''
		);
	`)
	return err
}

// SearchNotes runs a LIKE-based search over note titles and bodies
// (fallback when FTS5 is not compiled in). Tombstoned notes are excluded.
func (s *Store) SearchNotes(query string) ([]NoteMeta, error) {
	like := "%" + query + "%"
	rows, err := s.conn.Query(`
		SELECT n.id, n.path, n.title, n.hash, n.created_at, n.updated_at, n.is_deleted,
		       GROUP_CONCAT(t.name) AS tags
		FROM notes n
		JOIN notes_search ns ON n.id = ns.note_id
		LEFT JOIN note_tags nt ON n.id = nt.note_id
		LEFT JOIN tags t ON nt.tag_id = t.id
		WHERE (ns.title LIKE ? OR ns.body LIKE ?) AND n.is_deleted = 0
		GROUP BY n.id
		ORDER BY n.updated_at DESC
	`, like, like)
	if err != nil {
		return nil, fmt.Errorf("metastore: search notes: %w", err)
	}
	return collectNotes(rows)
}
