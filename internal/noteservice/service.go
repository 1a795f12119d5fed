// Package noteservice coordinates note content and the metadata index:
// front-matter parsing and serialization, tag associations, and the
// full-text entry maintained on every create and update.
package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tlindqvist/syncbox/internal/apperr"
	"github.com/tlindqvist/syncbox/internal/checksum"
	"github.com/tlindqvist/syncbox/internal/metastore"
	"github.com/tlindqvist/syncbox/internal/noteparse"
	"github.com/tlindqvist/syncbox/internal/storage"
)

const (
	noteExt      = ".md"
	defaultLimit = 50
	previewLen   = 200
)

// NoteDetail is the full representation of a note. Content is the body
// without the front-matter block.
type NoteDetail struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Tags      []string `json:"tags"`
	Preview   string   `json:"preview"`
	UpdatedAt int64    `json:"updated_at"`
}

// CreateRequest holds the fields of a new note.
type CreateRequest struct {
	Title   string
	Tags    []string
	Content string
}

// UpdateRequest holds partial updates; nil fields keep the current value.
type UpdateRequest struct {
	Title   *string
	Tags    *[]string
	Content *string
}

// ListOptions selects and pages a note listing. Search takes precedence
// over Tag when both are set.
type ListOptions struct {
	Tag    string
	Search string
	Limit  int
	Offset int
}

// Service coordinates note storage and indexing.
type Service struct {
	store storage.Provider
	meta  *metastore.Store
}

// NewService creates a new note service.
func NewService(store storage.Provider, meta *metastore.Store) *Service {
	return &Service{store: store, meta: meta}
}

// notePath derives the content path for a note id. The mapping is
// deterministic for the life of the note.
func notePath(id string) string {
	return id + noteExt
}

// Get returns a note by id, or ErrNotFound for unknown or tombstoned ids.
func (s *Service) Get(_ context.Context, id string) (*NoteDetail, error) {
	m, err := s.meta.GetNote(id)
	if err != nil {
		return nil, err
	}
	if m == nil || m.IsDeleted {
		return nil, fmt.Errorf("%w: note %s", apperr.ErrNotFound, id)
	}
	return s.loadDetail(m)
}

// Create writes a new note with a generated id, then indexes it: note
// row + tag associations, followed by the full-text entry.
func (s *Service) Create(_ context.Context, req CreateRequest) (*NoteDetail, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}

	id := uuid.NewString()
	path := notePath(id)
	content, err := noteparse.Serialize(&noteparse.Note{
		Title: req.Title,
		Tags:  req.Tags,
		Body:  req.Content,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	m := metastore.NoteMeta{
		ID:        id,
		Path:      path,
		Title:     req.Title,
		Tags:      req.Tags,
		Hash:      checksum.Sum(content),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.meta.UpsertNote(m); err != nil {
		return nil, err
	}
	if err := s.meta.UpdateFTS(id, req.Title, req.Content); err != nil {
		return nil, err
	}
	slog.Debug("note created", slog.String("id", id), slog.String("title", req.Title))

	return &NoteDetail{
		ID: id, Title: req.Title, Content: req.Content,
		Tags: nonNilSlice(req.Tags), CreatedAt: now, UpdatedAt: now,
	}, nil
}

// Update applies a partial update: unspecified fields keep their current
// values, but a specified tag list fully replaces the previous one.
func (s *Service) Update(_ context.Context, id string, req UpdateRequest) (*NoteDetail, error) {
	existing, err := s.meta.GetNote(id)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.IsDeleted {
		return nil, fmt.Errorf("%w: note %s", apperr.ErrNotFound, id)
	}

	raw, err := s.store.Read(existing.Path)
	if err != nil {
		return nil, err
	}
	parsed, err := noteparse.Parse(raw)
	if err != nil {
		return nil, err
	}

	title := existing.Title
	if req.Title != nil {
		title = *req.Title
	}
	tags := existing.Tags
	if req.Tags != nil {
		tags = *req.Tags
	}
	body := parsed.Body
	if req.Content != nil {
		body = *req.Content
	}

	content, err := noteparse.Serialize(&noteparse.Note{Title: title, Tags: tags, Body: body})
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(existing.Path, content); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	m := metastore.NoteMeta{
		ID:        id,
		Path:      existing.Path,
		Title:     title,
		Tags:      tags,
		Hash:      checksum.Sum(content),
		CreatedAt: existing.CreatedAt,
		UpdatedAt: now,
	}
	if err := s.meta.UpsertNote(m); err != nil {
		return nil, err
	}
	if err := s.meta.UpdateFTS(id, title, body); err != nil {
		return nil, err
	}
	slog.Debug("note updated", slog.String("id", id), slog.String("title", title))

	return &NoteDetail{
		ID: id, Title: title, Content: body,
		Tags: nonNilSlice(tags), CreatedAt: existing.CreatedAt, UpdatedAt: now,
	}, nil
}

// Delete removes note content best-effort, then tombstones the record
// and drops its search entry. Stale tag links are left behind; tag
// counting filters tombstoned notes.
func (s *Service) Delete(_ context.Context, id string) error {
	m, err := s.meta.GetNote(id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: note %s", apperr.ErrNotFound, id)
	}
	if err := s.store.Remove(m.Path); err != nil {
		slog.Warn("physical remove failed", slog.String("path", m.Path), slog.String("error", err.Error()))
	}
	if err := s.meta.DeleteNote(id); err != nil {
		return err
	}
	slog.Debug("note deleted", slog.String("id", id))
	return nil
}

// List returns paginated note summaries. Search takes precedence over
// tag filtering; without either, all live notes are listed most recently
// updated first. total is the match count before pagination.
func (s *Service) List(_ context.Context, opts ListOptions) ([]NoteListItem, int, error) {
	var (
		notes []metastore.NoteMeta
		err   error
	)
	switch {
	case opts.Search != "":
		notes, err = s.meta.SearchNotes(opts.Search)
	case opts.Tag != "":
		notes, err = s.meta.NotesByTag(opts.Tag)
	default:
		notes, err = s.meta.AllNotes()
	}
	if err != nil {
		return nil, 0, err
	}

	total := len(notes)
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	items := make([]NoteListItem, 0, end-start)
	for _, m := range notes[start:end] {
		items = append(items, s.toListItem(m))
	}
	return items, total, nil
}

// Tags returns aggregated tag counts over live notes.
func (s *Service) Tags(_ context.Context) ([]metastore.TagInfo, error) {
	return s.meta.AllTags()
}

// GetAllMetadata returns every live note's metadata, newest first.
func (s *Service) GetAllMetadata(_ context.Context) ([]metastore.NoteMeta, error) {
	return s.meta.AllNotes()
}

// ScanAndIndex rebuilds note metadata from content: every .md file is
// parsed and upserted, preserving created_at for known ids. Used for
// bootstrap and repair. Metadata for content deleted out-of-band is not
// tombstoned by this pass.
func (s *Service) ScanAndIndex(_ context.Context) (int, error) {
	paths, err := s.store.ListRecursive()
	if err != nil {
		return 0, err
	}
	indexed := 0
	for _, path := range paths {
		if !strings.HasSuffix(path, noteExt) {
			continue
		}
		content, err := s.store.Read(path)
		if err != nil {
			slog.Warn("scan: read failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		if err := s.indexNote(path, content); err != nil {
			slog.Warn("scan: index failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		indexed++
	}
	slog.Info("notes indexed", slog.Int("count", indexed))
	return indexed, nil
}

// indexNote parses raw note content and upserts its metadata and search
// entry. The note id is the path without the extension; created_at is
// preserved when the id is already known. Shared by the bootstrap scan
// and the watcher.
func (s *Service) indexNote(path string, content []byte) error {
	parsed, err := noteparse.Parse(content)
	if err != nil {
		return err
	}
	id := strings.TrimSuffix(path, noteExt)

	now := time.Now().UnixMilli()
	createdAt := now
	if existing, err := s.meta.GetNote(id); err == nil && existing != nil {
		createdAt = existing.CreatedAt
	}

	m := metastore.NoteMeta{
		ID:        id,
		Path:      path,
		Title:     parsed.Title,
		Tags:      parsed.Tags,
		Hash:      checksum.Sum(content),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	if err := s.meta.UpsertNote(m); err != nil {
		return err
	}
	return s.meta.UpdateFTS(id, parsed.Title, parsed.Body)
}

// loadDetail reads and parses a note's content to build its full
// representation.
func (s *Service) loadDetail(m *metastore.NoteMeta) (*NoteDetail, error) {
	raw, err := s.store.Read(m.Path)
	if err != nil {
		return nil, err
	}
	parsed, err := noteparse.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{
		ID:        m.ID,
		Title:     m.Title,
		Content:   parsed.Body,
		Tags:      nonNilSlice(m.Tags),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func (s *Service) toListItem(m metastore.NoteMeta) NoteListItem {
	preview := ""
	if raw, err := s.store.Read(m.Path); err == nil {
		if parsed, err := noteparse.Parse(raw); err == nil {
			preview = makePreview(parsed.Body)
		}
	}
	return NoteListItem{
		ID:        m.ID,
		Title:     m.Title,
		Tags:      nonNilSlice(m.Tags),
		Preview:   preview,
		UpdatedAt: m.UpdatedAt,
	}
}

// makePreview truncates a body to the first previewLen runes on a single
// line.
func makePreview(body string) string {
	flat := strings.Join(strings.Fields(body), " ")
	runes := []rune(flat)
	if len(runes) <= previewLen {
		return flat
	}
	return string(runes[:previewLen]) + "..."
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
