package noteservice

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tlindqvist/syncbox/internal/checksum"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the notes root and keeps the index
// in agreement with out-of-band edits until ctx is cancelled.
//
// New directories created at runtime are added to the watch list. Rename
// events fire on the old path only, so a short debounced reconciliation
// pass follows them to pick up the new path and drop stale entries.
func (s *Service) Watch(ctx context.Context, notesRoot string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, notesRoot); err != nil {
		return err
	}
	slog.Info("watcher: started", slog.String("root", notesRoot))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			slog.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			s.reconcile()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						slog.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						slog.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Index any notes already in the new directory.
					s.indexNewDir(notesRoot, absPath)
					continue
				}
			}

			if !strings.HasSuffix(absPath, noteExt) {
				continue
			}
			rel, relErr := filepath.Rel(notesRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				content, readErr := s.store.Read(rel)
				if readErr != nil {
					slog.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				if idxErr := s.indexNote(rel, content); idxErr != nil {
					slog.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				slog.Debug("watcher: indexed", slog.String("path", rel))

			case ev.Op&fsnotify.Remove != 0:
				s.tombstoneByPath(rel)

			case ev.Op&fsnotify.Rename != 0:
				// The new path arrives as a separate Create event when it
				// stays under the watched root; reconcile catches stragglers.
				s.tombstoneByPath(rel)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// tombstoneByPath tombstones the note whose content lived at rel, if any.
func (s *Service) tombstoneByPath(rel string) {
	m, err := s.meta.GetNoteByPath(rel)
	if err != nil || m == nil || m.IsDeleted {
		return
	}
	if delErr := s.meta.DeleteNote(m.ID); delErr != nil {
		slog.Warn("watcher: tombstone failed", slog.String("path", rel), slog.String("error", delErr.Error()))
		return
	}
	slog.Debug("watcher: tombstoned", slog.String("path", rel), slog.String("id", m.ID))
}

// reconcile brings the index back in line with the notes root after
// renames: entries without content are tombstoned, content whose hash
// diverged from its entry is reindexed.
func (s *Service) reconcile() {
	notes, err := s.meta.AllNotes()
	if err != nil {
		slog.Warn("reconcile: list notes failed", slog.String("error", err.Error()))
		return
	}
	paths, err := s.store.ListRecursive()
	if err != nil {
		slog.Warn("reconcile: list content failed", slog.String("error", err.Error()))
		return
	}

	onDisk := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if strings.HasSuffix(p, noteExt) {
			onDisk[p] = struct{}{}
		}
	}

	indexed := make(map[string]string, len(notes))
	for _, n := range notes {
		indexed[n.Path] = n.Hash
		if _, ok := onDisk[n.Path]; !ok {
			s.tombstoneByPath(n.Path)
		}
	}

	for p := range onDisk {
		content, readErr := s.store.Read(p)
		if readErr != nil {
			continue
		}
		if indexed[p] == checksum.Sum(content) {
			continue
		}
		if idxErr := s.indexNote(p, content); idxErr != nil {
			slog.Warn("reconcile: index failed", slog.String("path", p), slog.String("error", idxErr.Error()))
			continue
		}
		slog.Debug("reconcile: indexed", slog.String("path", p))
	}
}

// indexNewDir indexes any notes already present in a newly watched
// directory.
func (s *Service) indexNewDir(notesRoot, dirPath string) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, noteExt) {
			return nil
		}
		rel, relErr := filepath.Rel(notesRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		content, readErr := s.store.Read(rel)
		if readErr != nil {
			return nil
		}
		if idxErr := s.indexNote(rel, content); idxErr == nil {
			slog.Debug("watcher: indexed from new dir", slog.String("path", rel))
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
