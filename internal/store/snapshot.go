package store

import (
	"fmt"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/item"
)

// FileSlot is the serialised form of one tracked-file slot. File is nil for
// a free slot; the generation survives so stale handles stay detectable.
type FileSlot struct {
	Gen  uint32       `json:"gen"`
	File *TrackedFile `json:"file"`
}

// Data is the flat serialisable record of a Store.
type Data struct {
	NextID int                    `json:"next_id"`
	Items  []*item.RepetitionItem `json:"items"`
	Files  []FileSlot             `json:"files"`
}

// Snapshot returns a deep copy of the store contents.
func (s *Store) Snapshot() Data {
	d := Data{
		NextID: s.nextID,
		Items:  make([]*item.RepetitionItem, 0, len(s.items)),
		Files:  make([]FileSlot, len(s.slots)),
	}
	for _, it := range s.Items() {
		d.Items = append(d.Items, it.Clone())
	}
	for i, sl := range s.slots {
		d.Files[i].Gen = sl.gen
		if sl.file != nil {
			d.Files[i].File = sl.file.clone()
		}
	}
	return d
}

// Restore replaces the store contents with a deep copy of d.
func (s *Store) Restore(d Data) error {
	items := make(map[int]*item.RepetitionItem, len(d.Items))
	next := d.NextID
	for _, it := range d.Items {
		if it == nil {
			continue
		}
		if _, dup := items[it.ID]; dup {
			return fmt.Errorf("%w: duplicate item id %d", apperr.ErrConsistency, it.ID)
		}
		items[it.ID] = it.Clone()
		if it.ID >= next {
			next = it.ID + 1
		}
	}
	slots := make([]slot, len(d.Files))
	byPath := make(map[string]int)
	var free []int
	for i, fs := range d.Files {
		slots[i].gen = fs.Gen
		if fs.File == nil {
			free = append(free, i)
			continue
		}
		f := fs.File.clone()
		if f.Items == nil {
			f.Items = map[string]int{FileSlotName: -1}
		}
		if _, dup := byPath[f.Path]; dup {
			return fmt.Errorf("%w: path %s tracked twice", apperr.ErrConsistency, f.Path)
		}
		byPath[f.Path] = i
		slots[i].file = f
	}
	s.items, s.nextID = items, next
	s.slots, s.byPath, s.free = slots, byPath, free
	return nil
}
