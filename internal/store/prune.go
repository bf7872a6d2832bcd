package store

import (
	"fmt"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/item"
)

// PruneReport counts what a prune pass removed.
type PruneReport struct {
	Items int `json:"items"`
	Files int `json:"files"`
}

// Prune physically removes tombstoned items and tracked files that no longer
// reference any item. Surviving IDs and FileRefs stay valid.
func (s *Store) Prune() PruneReport {
	var rep PruneReport
	for id, it := range s.items {
		if !it.IsTracked() {
			delete(s.items, id)
			rep.Items++
		}
	}
	for idx, sl := range s.slots {
		f := sl.file
		if f == nil {
			continue
		}
		for name, id := range f.Items {
			if _, ok := s.items[id]; id >= 0 && !ok {
				f.Items[name] = -1
			}
		}
		if f.CardItems != nil {
			kept := f.CardItems[:0]
			for _, c := range f.CardItems {
				ids := c.ItemIDs[:0]
				for _, id := range c.ItemIDs {
					if _, ok := s.items[id]; ok {
						ids = append(ids, id)
					}
				}
				c.ItemIDs = ids
				if len(ids) > 0 {
					kept = append(kept, c)
				}
			}
			f.CardItems = kept
		}
		if f.empty() {
			s.freeSlot(idx)
			rep.Files++
		}
	}
	return rep
}

// Verify checks every cross-reference between items and tracked files.
// The first violation is returned wrapped in ErrConsistency.
func (s *Store) Verify() error {
	owner := make(map[int]item.FileRef)
	for idx, sl := range s.slots {
		if sl.file == nil {
			continue
		}
		ref := item.FileRef{Index: idx, Gen: sl.gen}
		if got, ok := s.byPath[sl.file.Path]; !ok || got != idx {
			return fmt.Errorf("%w: path index out of date for %s", apperr.ErrConsistency, sl.file.Path)
		}
		for _, id := range sl.file.ItemIDs() {
			it, ok := s.items[id]
			if !ok {
				return fmt.Errorf("%w: %s references missing item %d", apperr.ErrConsistency, sl.file.Path, id)
			}
			if it.File != ref {
				return fmt.Errorf("%w: %s references item %d owned by %+v", apperr.ErrConsistency, sl.file.Path, id, it.File)
			}
			if prev, dup := owner[id]; dup {
				return fmt.Errorf("%w: item %d referenced by files %d and %d", apperr.ErrConsistency, id, prev.Index, idx)
			}
			owner[id] = ref
		}
	}
	for id, it := range s.items {
		if it.ID != id {
			return fmt.Errorf("%w: item keyed %d carries id %d", apperr.ErrConsistency, id, it.ID)
		}
		if id >= s.nextID {
			return fmt.Errorf("%w: item %d not below next id %d", apperr.ErrConsistency, id, s.nextID)
		}
		if err := it.Data.Check(); err != nil {
			return fmt.Errorf("item %d: %w", id, err)
		}
		if !it.IsTracked() {
			continue
		}
		if _, err := s.FileAt(it.File); err != nil {
			return fmt.Errorf("item %d: %w", id, err)
		}
		if _, ok := owner[id]; !ok {
			return fmt.Errorf("%w: tracked item %d not referenced by its file", apperr.ErrConsistency, id)
		}
	}
	return nil
}
