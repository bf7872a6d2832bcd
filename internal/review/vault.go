package review

import (
	"fmt"
	"log/slog"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/vaultsync"
)

var _ vaultsync.Target = (*Service)(nil)

// TrackedPaths lists documents that still own live items.
func (s *Service) TrackedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, fe := range s.store.Files() {
		if len(fe.File.ItemIDs()) > 0 {
			out = append(out, fe.File.Path)
		}
	}
	return out
}

// ApplyDocument reconciles one document with the store: it tracks the file,
// keeps or tombstones the note item and syncs its flashcards.
func (s *Service) ApplyDocument(d vaultsync.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.Busy() {
		return apperr.ErrBusy
	}

	f, _, known := s.store.File(d.Path)
	if !d.Tracked() {
		if known {
			s.untrack(d.Path)
		}
		return nil
	}

	// Losing the card tag untracks every card.
	syncCards := d.Flashcards || (known && f.IsCardBearing())
	if syncCards {
		if err := s.store.CheckCards(d.Path, d.Cards, s.syncOpts); err != nil {
			s.logger.Warn("review: ambiguous card identity, document left unchanged",
				slog.String("path", d.Path))
			return fmt.Errorf("review: sync cards %s: %w", d.Path, err)
		}
	}

	s.store.TrackFile(d.Path, d.Tags)
	s.dirty = true
	newData := s.reg.Active().DefaultData

	if d.Note {
		if _, _, err := s.store.EnsureNoteItem(d.Path, newData); err != nil {
			return err
		}
	} else if id := s.store.UntrackNoteItem(d.Path); id >= 0 {
		s.queue.Evict(id)
	}

	if syncCards {
		res, err := s.store.SyncCards(d.Path, d.Cards, s.syncOpts, newData)
		if err != nil {
			return fmt.Errorf("review: sync cards %s: %w", d.Path, err)
		}
		for _, id := range res.Untracked {
			s.queue.Evict(id)
		}
	}
	s.emit(EventVaultChanged, map[string]string{"path": d.Path})
	return nil
}

// RemoveDocument tombstones every item of a vanished document.
func (s *Service) RemoveDocument(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.Busy() {
		return apperr.ErrBusy
	}
	if _, _, ok := s.store.File(path); !ok {
		return nil
	}
	s.untrack(path)
	s.emit(EventVaultChanged, map[string]string{"path": path})
	return nil
}

// RenameDocument moves a tracked document, keeping its items.
func (s *Service) RenameDocument(oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.Busy() {
		return apperr.ErrBusy
	}
	if err := s.store.RenameFile(oldPath, newPath); err != nil {
		return err
	}
	s.dirty = true
	s.emit(EventVaultChanged, map[string]string{"path": newPath, "from": oldPath})
	return nil
}

func (s *Service) untrack(path string) {
	for _, id := range s.store.UntrackFile(path) {
		s.queue.Evict(id)
	}
	s.dirty = true
}
