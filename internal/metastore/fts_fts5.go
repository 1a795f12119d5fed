//go:build sqlite_fts5

package metastore

import (
	"database/sql"
	"fmt"
)

func initSearchSchema(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_search USING fts5(
			note_id,
			title,
			body,
			tokenize = 'porter unicode61'
		);
	`)
	return err
}

// SearchNotes runs a full-text query against note titles and bodies,
// ranked by FTS5 relevance. Tombstoned notes are excluded.
func (s *Store) SearchNotes(query string) ([]NoteMeta, error) {
	rows, err := s.conn.Query(`
		SELECT n.id, n.path, n.title, n.hash, n.created_at, n.updated_at, n.is_deleted,
		       GROUP_CONCAT(t.name) AS tags
		FROM notes n
		JOIN notes_search ON n.id = notes_search.note_id
		LEFT JOIN note_tags nt ON n.id = nt.note_id
		LEFT JOIN tags t ON nt.tag_id = t.id
		WHERE notes_search MATCH ? AND n.is_deleted = 0
		GROUP BY n.id
		ORDER BY notes_search.rank
	`, query)
	if err != nil {
		return nil, fmt.Errorf("metastore: search notes: %w", err)
	}
	return collectNotes(rows)
}
