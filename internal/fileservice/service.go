// Package fileservice coordinates the content store and the metadata
// index for arbitrary files: every mutation is write-then-index, and a
// repair scan can rebuild the index from content.
package fileservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tlindqvist/syncbox/internal/apperr"
	"github.com/tlindqvist/syncbox/internal/checksum"
	"github.com/tlindqvist/syncbox/internal/metastore"
	"github.com/tlindqvist/syncbox/internal/storage"
)

// Service keeps file content and file metadata in agreement.
type Service struct {
	store storage.Provider
	meta  *metastore.Store
}

// NewService creates a new file service.
func NewService(store storage.Provider, meta *metastore.Store) *Service {
	return &Service{store: store, meta: meta}
}

// Get returns the bytes for path. A missing or tombstoned metadata
// record is not-found even if bytes still physically exist.
func (s *Service) Get(_ context.Context, path string) ([]byte, error) {
	m, err := s.meta.GetFile(path)
	if err != nil {
		return nil, err
	}
	if m == nil || m.IsDeleted {
		return nil, fmt.Errorf("%w: file %s", apperr.ErrNotFound, path)
	}
	return s.store.Read(path)
}

// GetMetadata returns the metadata record for path, tombstones included,
// or nil if the path was never written.
func (s *Service) GetMetadata(_ context.Context, path string) (*metastore.FileMeta, error) {
	return s.meta.GetFile(path)
}

// Put writes content and then upserts its metadata. created_at is
// preserved when a record already exists for path. clientMtime, if
// non-nil (Unix ms), is applied to the stored content after the write
// and recorded in the index.
//
// A failed content write leaves the index untouched. A failed upsert
// after a successful write leaves content and index diverged until the
// next repair scan; that gap is deliberate.
func (s *Service) Put(_ context.Context, path string, content []byte, clientMtime *int64) (*metastore.FileMeta, error) {
	createdAt := time.Now().UnixMilli()
	if existing, err := s.meta.GetFile(path); err == nil && existing != nil {
		createdAt = existing.CreatedAt
	}

	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if clientMtime != nil {
		if err := s.store.SetMtime(path, time.UnixMilli(*clientMtime)); err != nil {
			return nil, err
		}
	}

	m := s.buildMeta(path, content)
	m.CreatedAt = createdAt
	if clientMtime != nil {
		m.Mtime = *clientMtime
	}
	if err := s.meta.UpsertFile(m); err != nil {
		return nil, err
	}
	slog.Debug("file stored", slog.String("path", path), slog.Int64("size", m.Size))
	return &m, nil
}

// Delete removes content best-effort and then tombstones the record.
// A failed physical removal is logged and does not abort; a failed
// tombstone write fails the call.
func (s *Service) Delete(_ context.Context, path string) error {
	if err := s.store.Remove(path); err != nil {
		slog.Warn("physical remove failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	if err := s.meta.MarkDeleted(path); err != nil {
		return err
	}
	slog.Debug("file deleted", slog.String("path", path))
	return nil
}

// List returns every file record, tombstones included.
func (s *Service) List(_ context.Context) ([]metastore.FileMeta, error) {
	return s.meta.ListFiles(nil)
}

// ChangedSince returns records with updated_at > since (Unix ms),
// tombstones included.
func (s *Service) ChangedSince(_ context.Context, since int64) ([]metastore.FileMeta, error) {
	return s.meta.ListFiles(&since)
}

// ScanAndIndex enumerates all content recursively and upserts metadata
// for each item. Used for bootstrap and repair. Content deleted
// out-of-band is not tombstoned by this pass.
func (s *Service) ScanAndIndex(_ context.Context) (int, error) {
	paths, err := s.store.ListRecursive()
	if err != nil {
		return 0, err
	}
	indexed := 0
	for _, path := range paths {
		content, err := s.store.Read(path)
		if err != nil {
			slog.Warn("scan: read failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		m := s.buildMeta(path, content)
		if existing, err := s.meta.GetFile(path); err == nil && existing != nil {
			m.CreatedAt = existing.CreatedAt
		}
		if err := s.meta.UpsertFile(m); err != nil {
			slog.Warn("scan: upsert failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		indexed++
	}
	slog.Info("files indexed", slog.Int("count", indexed))
	return indexed, nil
}

// buildMeta computes a fresh metadata record from content. Mtime comes
// from the content store when available.
func (s *Service) buildMeta(path string, content []byte) metastore.FileMeta {
	now := time.Now().UnixMilli()
	mtime := now
	if t, err := s.store.Mtime(path); err == nil {
		mtime = t.UnixMilli()
	}
	return metastore.FileMeta{
		Path:      path,
		Hash:      checksum.Sum(content),
		Size:      int64(len(content)),
		Mtime:     mtime,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
