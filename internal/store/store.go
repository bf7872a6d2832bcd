// Package store holds every repetition item and tracked file, and keeps the
// cross-references between them consistent.
//
// Items are keyed by a monotonic ID that is never reused. Tracked files live
// in a slot map whose slots carry a generation counter, so a FileRef left
// behind by a pruned file is detected instead of silently re-pointed.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
)

// DefaultDeck is used when a file carries no deck tag.
const DefaultDeck = "default"

type slot struct {
	gen  uint32
	file *TrackedFile
}

// Store is the aggregate of all items and tracked files.
// It is not safe for concurrent use; callers serialise access.
type Store struct {
	items  map[int]*item.RepetitionItem
	nextID int

	slots  []slot
	free   []int
	byPath map[string]int

	typeTags    map[string]struct{}
	defaultDeck string

	busy atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithTypeTags sets the tags that mark item types rather than decks.
func WithTypeTags(tags ...string) Option {
	return func(s *Store) {
		for _, t := range tags {
			s.typeTags[strings.TrimPrefix(t, "#")] = struct{}{}
		}
	}
}

// WithDefaultDeck sets the deck of files without a deck tag.
func WithDefaultDeck(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.defaultDeck = name
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		items:       make(map[int]*item.RepetitionItem),
		byPath:      make(map[string]int),
		typeTags:    make(map[string]struct{}),
		defaultDeck: DefaultDeck,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire takes the store-wide exclusive guard. It fails with ErrBusy while
// another holder (an algorithm switch) is active.
func (s *Store) Acquire() (release func(), err error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, apperr.ErrBusy
	}
	return func() { s.busy.Store(false) }, nil
}

// Busy reports whether the guard is held.
func (s *Store) Busy() bool { return s.busy.Load() }

// Len returns the number of items, tombstones included.
func (s *Store) Len() int { return len(s.items) }

// Item returns the item with the given ID.
func (s *Store) Item(id int) (*item.RepetitionItem, bool) {
	it, ok := s.items[id]
	return it, ok
}

// Items returns all items ordered by ID.
func (s *Store) Items() []*item.RepetitionItem {
	out := make([]*item.RepetitionItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TrackedItems returns live items ordered by ID.
func (s *Store) TrackedItems() []*item.RepetitionItem {
	all := s.Items()
	out := all[:0]
	for _, it := range all {
		if it.IsTracked() {
			out = append(out, it)
		}
	}
	return out
}

// CreateItem allocates a new item under ref.
func (s *Store) CreateItem(ref item.FileRef, typ item.Type, deck string, data item.Payload) *item.RepetitionItem {
	it := item.New(s.nextID, ref, typ, deck, data)
	s.items[it.ID] = it
	s.nextID++
	return it
}

// FileEntry pairs a tracked file with its handle.
type FileEntry struct {
	Ref  item.FileRef
	File *TrackedFile
}

// Files returns every tracked file in slot order.
func (s *Store) Files() []FileEntry {
	var out []FileEntry
	for i, sl := range s.slots {
		if sl.file != nil {
			out = append(out, FileEntry{Ref: item.FileRef{Index: i, Gen: sl.gen}, File: sl.file})
		}
	}
	return out
}

// File looks a tracked file up by path.
func (s *Store) File(path string) (*TrackedFile, item.FileRef, bool) {
	idx, ok := s.byPath[path]
	if !ok {
		return nil, item.Untracked, false
	}
	sl := s.slots[idx]
	return sl.file, item.FileRef{Index: idx, Gen: sl.gen}, true
}

// FileAt resolves a handle, rejecting stale generations.
func (s *Store) FileAt(ref item.FileRef) (*TrackedFile, error) {
	if ref.Index < 0 || ref.Index >= len(s.slots) {
		return nil, fmt.Errorf("%w: file index %d out of range", apperr.ErrConsistency, ref.Index)
	}
	sl := s.slots[ref.Index]
	if sl.file == nil || sl.gen != ref.Gen {
		return nil, fmt.Errorf("%w: stale file handle %d/%d", apperr.ErrConsistency, ref.Index, ref.Gen)
	}
	return sl.file, nil
}

// FileOf returns the tracked file owning it.
func (s *Store) FileOf(it *item.RepetitionItem) (*TrackedFile, error) {
	if !it.IsTracked() {
		return nil, fmt.Errorf("store: item %d: %w", it.ID, apperr.ErrNotFound)
	}
	return s.FileAt(it.File)
}

// DeckOf returns the deck name derived from f's tags.
func (s *Store) DeckOf(f *TrackedFile) string {
	if d := f.LastTag(s.typeTags); d != "" {
		return d
	}
	return s.defaultDeck
}

func (s *Store) allocSlot(f *TrackedFile) item.FileRef {
	var idx int
	if len(s.free) > 0 {
		sort.Ints(s.free)
		idx = s.free[0]
		s.free = s.free[1:]
		s.slots[idx].file = f
	} else {
		idx = len(s.slots)
		s.slots = append(s.slots, slot{file: f})
	}
	s.byPath[f.Path] = idx
	return item.FileRef{Index: idx, Gen: s.slots[idx].gen}
}

func (s *Store) freeSlot(idx int) {
	delete(s.byPath, s.slots[idx].file.Path)
	s.slots[idx].file = nil
	s.slots[idx].gen++
	s.free = append(s.free, idx)
}

// TrackFile starts tracking path, or refreshes its tags when already
// tracked. It returns the IDs of live items whose deck changed.
func (s *Store) TrackFile(path string, tags []string) (item.FileRef, []int) {
	f, ref, ok := s.File(path)
	if !ok {
		f = newTrackedFile(path, tags)
		return s.allocSlot(f), nil
	}
	f.Tags = append(f.Tags[:0], tags...)
	return ref, s.redeck(f)
}

func (s *Store) redeck(f *TrackedFile) []int {
	deck := s.DeckOf(f)
	var changed []int
	if id := f.NoteItemID(); id >= 0 {
		if it, ok := s.items[id]; ok && it.UpdateDeckName(deck, false) {
			changed = append(changed, id)
		}
	}
	for _, c := range f.CardItems {
		for _, id := range c.ItemIDs {
			if it, ok := s.items[id]; ok && it.UpdateDeckName(deck, true) {
				changed = append(changed, id)
			}
		}
	}
	return changed
}

// EnsureNoteItem makes sure the whole-document item of path exists and is
// tracked. It reports the item and whether it was created.
func (s *Store) EnsureNoteItem(path string, data func() item.Payload) (*item.RepetitionItem, bool, error) {
	f, ref, ok := s.File(path)
	if !ok {
		return nil, false, fmt.Errorf("store: ensure note %s: %w", path, apperr.ErrNotFound)
	}
	if id := f.NoteItemID(); id >= 0 {
		it, ok := s.items[id]
		if !ok {
			return nil, false, fmt.Errorf("%w: %s references missing item %d", apperr.ErrConsistency, path, id)
		}
		it.UpdateDeckName(s.DeckOf(f), false)
		return it, false, nil
	}
	it := s.CreateItem(ref, item.TypeNote, s.DeckOf(f), data())
	f.Items[FileSlotName] = it.ID
	return it, true, nil
}

// UntrackNoteItem tombstones the whole-document item of path and returns its
// ID, or -1 when there was none.
func (s *Store) UntrackNoteItem(path string) int {
	f, _, ok := s.File(path)
	if !ok {
		return -1
	}
	id := f.NoteItemID()
	if id < 0 {
		return -1
	}
	if it, ok := s.items[id]; ok {
		it.SetUntracked()
	}
	f.Items[FileSlotName] = -1
	return id
}

// UntrackFile tombstones every item of path and detaches them from the file.
// The file slot itself is reclaimed by the next Prune.
func (s *Store) UntrackFile(path string) []int {
	f, _, ok := s.File(path)
	if !ok {
		return nil
	}
	ids := f.ItemIDs()
	for _, id := range ids {
		if it, ok := s.items[id]; ok {
			it.SetUntracked()
		}
	}
	for name := range f.Items {
		f.Items[name] = -1
	}
	if f.CardItems != nil {
		f.CardItems = []*CardInfo{}
	}
	return ids
}

// RenameFile moves a tracked file to a new path.
func (s *Store) RenameFile(oldPath, newPath string) error {
	idx, ok := s.byPath[oldPath]
	if !ok {
		return fmt.Errorf("store: rename %s: %w", oldPath, apperr.ErrNotFound)
	}
	if _, taken := s.byPath[newPath]; taken {
		return fmt.Errorf("store: rename to %s: %w", newPath, apperr.ErrAlreadyExists)
	}
	delete(s.byPath, oldPath)
	s.slots[idx].file.Path = newPath
	s.byPath[newPath] = idx
	return nil
}

// DueHistogram counts live reviewed items per day offset from today.
// Offset 0 is today; overdue items count towards today.
func (s *Store) DueHistogram(now time.Time) map[int]int {
	start := clock.StartOfDay(now).UnixMilli()
	out := make(map[int]int)
	for _, it := range s.items {
		if !it.IsTracked() || it.IsNew() {
			continue
		}
		day := 0
		if it.NextReview > start {
			day = int((it.NextReview - start) / clock.DayMillis)
		}
		out[day]++
	}
	return out
}
