package vaultsync

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the vault root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after
// each successful change.
//
// fsnotify reports a rename as Rename on the old path followed by Create on
// the new one. The old path is remembered until the matching Create arrives,
// so the document keeps its review history; a debounced Sync pass settles
// whatever is left over.
func (s *Syncer) Watch(ctx context.Context, root string, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	s.logger.Info("watcher: started", slog.String("root", root))

	notify := func(kind, p string) {
		if cb != nil {
			cb(kind, p)
		}
	}

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

	// renamed holds vanished paths by base name until their Create shows up.
	renamed := make(map[string]string)

	apply := func(rel string, created bool) {
		if old, ok := renamed[path.Base(rel)]; ok && old != rel {
			delete(renamed, path.Base(rel))
			if err := s.Rename(old, rel); err == nil {
				s.logger.Debug("watcher: moved", slog.String("from", old), slog.String("to", rel))
				notify("moved", rel)
			}
		}
		applied, err := s.SyncFile(rel)
		if err != nil {
			s.logger.Warn("watcher: apply failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		if !applied {
			return
		}
		kind := "updated"
		if created {
			kind = "created"
		}
		s.logger.Debug("watcher: applied", slog.String("path", rel), slog.String("op", kind))
		notify(kind, rel)
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			s.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			clear(renamed)
			rep, err := s.Sync(ctx)
			if err != nil {
				s.logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
				continue
			}
			if rep.Moved+rep.Removed+rep.Applied > 0 {
				s.logger.Debug("reconcile: done",
					slog.Int("moved", rep.Moved),
					slog.Int("removed", rep.Removed),
					slog.Int("applied", rep.Applied))
				notify("reconciled", "")
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if strings.HasPrefix(filepath.Base(absPath), ".") {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						s.logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					// A directory moved in carries documents that never
					// produced their own events.
					scheduleReconcile()
					continue
				}
			}

			if !storage.IsDocument(absPath) {
				continue
			}
			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				apply(rel, ev.Op&fsnotify.Create != 0)

			case ev.Op&fsnotify.Remove != 0:
				if err := s.Remove(rel); err != nil {
					s.logger.Warn("watcher: remove failed", slog.String("path", rel), slog.String("error", err.Error()))
					continue
				}
				s.logger.Debug("watcher: removed", slog.String("path", rel))
				notify("deleted", rel)

			case ev.Op&fsnotify.Rename != 0:
				renamed[path.Base(rel)] = rel
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
