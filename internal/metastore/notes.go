package metastore

import (
	"database/sql"
	"fmt"
	"strings"
)

// NoteMeta represents a row in the notes table plus its resolved tags.
// Timestamps are Unix milliseconds. Tags are fully replaced, never
// merged, on every upsert.
type NoteMeta struct {
	ID        string   `json:"id"`
	Path      string   `json:"path"`
	Title     string   `json:"title"`
	Tags      []string `json:"tags"`
	Hash      string   `json:"hash"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
	IsDeleted bool     `json:"is_deleted"`
}

// TagInfo is an aggregated tag with its count of non-deleted notes.
type TagInfo struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

const noteSelectSQL = `
	SELECT n.id, n.path, n.title, n.hash, n.created_at, n.updated_at, n.is_deleted,
	       GROUP_CONCAT(t.name) AS tags
	FROM notes n
	LEFT JOIN note_tags nt ON n.id = nt.note_id
	LEFT JOIN tags t ON nt.tag_id = t.id
`

// GetNote returns the note with the given id, or nil if unknown.
// Tombstoned notes are returned; visibility is the caller's decision.
func (s *Store) GetNote(id string) (*NoteMeta, error) {
	row := s.conn.QueryRow(noteSelectSQL+` WHERE n.id = ? GROUP BY n.id`, id)
	m, err := scanNote(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("metastore: get note: %w", err)
	}
	return m, nil
}

// GetNoteByPath resolves a note by its derived path.
func (s *Store) GetNoteByPath(path string) (*NoteMeta, error) {
	var id string
	err := s.conn.QueryRow(`SELECT id FROM notes WHERE path = ?`, path).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("metastore: get note by path: %w", err)
	}
	return s.GetNote(id)
}

// AllNotes returns every non-tombstoned note, most recently updated first.
func (s *Store) AllNotes() ([]NoteMeta, error) {
	rows, err := s.conn.Query(noteSelectSQL + `
		WHERE n.is_deleted = 0
		GROUP BY n.id
		ORDER BY n.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("metastore: all notes: %w", err)
	}
	return collectNotes(rows)
}

// NotesByTag returns non-tombstoned notes carrying the given tag, most
// recently updated first. Each result still resolves its full tag set.
func (s *Store) NotesByTag(tag string) ([]NoteMeta, error) {
	rows, err := s.conn.Query(`
		SELECT n.id, n.path, n.title, n.hash, n.created_at, n.updated_at, n.is_deleted,
		       GROUP_CONCAT(t2.name) AS tags
		FROM notes n
		JOIN note_tags nt ON n.id = nt.note_id
		JOIN tags t ON nt.tag_id = t.id
		LEFT JOIN note_tags nt2 ON n.id = nt2.note_id
		LEFT JOIN tags t2 ON nt2.tag_id = t2.id
		WHERE t.name = ? AND n.is_deleted = 0
		GROUP BY n.id
		ORDER BY n.updated_at DESC
	`, tag)
	if err != nil {
		return nil, fmt.Errorf("metastore: notes by tag: %w", err)
	}
	return collectNotes(rows)
}

// UpsertNote inserts or replaces a note keyed by id and fully replaces
// its tag associations, both within one transaction. created_at is
// preserved on conflict. The search entry is NOT refreshed here; callers
// follow up with UpdateFTS, accepting the crash window between the two.
func (s *Store) UpsertNote(m NoteMeta) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("metastore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO notes (id, path, title, hash, created_at, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path       = excluded.path,
			title      = excluded.title,
			hash       = excluded.hash,
			updated_at = excluded.updated_at,
			is_deleted = excluded.is_deleted
	`, m.ID, m.Path, m.Title, m.Hash, m.CreatedAt, m.UpdatedAt, boolToInt(m.IsDeleted))
	if err != nil {
		return fmt.Errorf("metastore: upsert note: %w", err)
	}

	// Replace tag links: delete all, then insert, creating tag rows as needed.
	if _, err := tx.Exec(`DELETE FROM note_tags WHERE note_id = ?`, m.ID); err != nil {
		return fmt.Errorf("metastore: clear note tags: %w", err)
	}
	for _, tag := range m.Tags {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO tags (name) VALUES (?)`, tag); err != nil {
			return fmt.Errorf("metastore: insert tag: %w", err)
		}
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO note_tags (note_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?
		`, m.ID, tag)
		if err != nil {
			return fmt.Errorf("metastore: link tag: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteNote tombstones a note and removes its search entry. Tag links
// are intentionally left in place; AllTags filters tombstoned notes when
// counting so the stale links never surface.
func (s *Store) DeleteNote(id string) error {
	_, err := s.conn.Exec(`UPDATE notes SET is_deleted = 1, updated_at = ? WHERE id = ?`, nowMillis(), id)
	if err != nil {
		return fmt.Errorf("metastore: delete note: %w", err)
	}
	return s.RemoveFTS(id)
}

// AllTags returns tag counts aggregated over non-tombstoned notes only.
// Tags with no surviving links are omitted.
func (s *Store) AllTags() ([]TagInfo, error) {
	rows, err := s.conn.Query(`
		SELECT t.name, COUNT(n.id) AS count
		FROM tags t
		LEFT JOIN note_tags nt ON t.id = nt.tag_id
		LEFT JOIN notes n ON nt.note_id = n.id AND n.is_deleted = 0
		GROUP BY t.id
		HAVING count > 0
		ORDER BY count DESC, t.name
	`)
	if err != nil {
		return nil, fmt.Errorf("metastore: all tags: %w", err)
	}
	defer rows.Close()

	var out []TagInfo
	for rows.Next() {
		var info TagInfo
		if err := rows.Scan(&info.Name, &info.Count); err != nil {
			return nil, fmt.Errorf("metastore: scan tag: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// UpdateFTS replaces the single search entry for a note id.
func (s *Store) UpdateFTS(id, title, body string) error {
	if err := s.RemoveFTS(id); err != nil {
		return err
	}
	_, err := s.conn.Exec(`INSERT INTO notes_search (note_id, title, body) VALUES (?, ?, ?)`, id, title, body)
	if err != nil {
		return fmt.Errorf("metastore: update fts: %w", err)
	}
	return nil
}

// RemoveFTS removes the search entry for a note id.
func (s *Store) RemoveFTS(id string) error {
	_, err := s.conn.Exec(`DELETE FROM notes_search WHERE note_id = ?`, id)
	if err != nil {
		return fmt.Errorf("metastore: remove fts: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*NoteMeta, error) {
	var m NoteMeta
	var deleted int64
	var tags sql.NullString
	err := row.Scan(&m.ID, &m.Path, &m.Title, &m.Hash, &m.CreatedAt, &m.UpdatedAt, &deleted, &tags)
	if err != nil {
		return nil, err
	}
	m.IsDeleted = deleted != 0
	m.Tags = []string{}
	if tags.Valid && tags.String != "" {
		m.Tags = strings.Split(tags.String, ",")
	}
	return &m, nil
}

func collectNotes(rows *sql.Rows) ([]NoteMeta, error) {
	defer rows.Close()
	var out []NoteMeta
	for rows.Next() {
		m, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("metastore: scan note: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
