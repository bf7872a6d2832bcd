// Package queue builds and serves the daily review working set.
package queue

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/starford/ansuz/internal/algo"
	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/store"
)

// Unlimited disables a daily new-item quota.
const Unlimited = -1

// DocumentExistence resolves source documents of tracked files.
type DocumentExistence interface {
	Exists(ctx context.Context, path string) (bool, error)
	// FindMoved returns the new path of a document that is no longer at
	// path, or ok=false when it cannot be located.
	FindMoved(ctx context.Context, path string) (newPath string, ok bool, err error)
}

// DeckQueue holds the queued item IDs of one deck.
type DeckQueue struct {
	New []int `json:"new"`
	Due []int `json:"due"`
}

func (d *DeckQueue) empty() bool { return len(d.New) == 0 && len(d.Due) == 0 }

// NewAdded counts today's admitted new items per item class.
type NewAdded struct {
	Cards int `json:"cards"`
	Notes int `json:"notes"`
}

// State is the serialisable queue state.
type State struct {
	Decks       map[string]*DeckQueue `json:"decks"`
	Repeat      []int                 `json:"repeat"`
	ToDayLatter map[int]string        `json:"to_day_latter"`
	NewAdded    NewAdded              `json:"new_added"`
	LastQueue   int64                 `json:"last_queue"`
}

func newState() State {
	return State{Decks: map[string]*DeckQueue{}, ToDayLatter: map[int]string{}}
}

func (s State) clone() State {
	c := State{
		Decks:       make(map[string]*DeckQueue, len(s.Decks)),
		Repeat:      slices.Clone(s.Repeat),
		ToDayLatter: make(map[int]string, len(s.ToDayLatter)),
		NewAdded:    s.NewAdded,
		LastQueue:   s.LastQueue,
	}
	for name, d := range s.Decks {
		c.Decks[name] = &DeckQueue{New: slices.Clone(d.New), Due: slices.Clone(d.Due)}
	}
	for id, deck := range s.ToDayLatter {
		c.ToDayLatter[id] = deck
	}
	return c
}

// Options tunes admission and presentation.
type Options struct {
	MaxNewCards int // per day, Unlimited for no cap
	MaxNewNotes int
	// RepeatItems pushes failed primary reviews onto the repeat queue.
	RepeatItems bool
	DueRun      int
	NewRun      int
	// Concurrency bounds parallel existence checks.
	Concurrency int
}

// DefaultOptions returns the stock options.
func DefaultOptions() Options {
	return Options{
		MaxNewCards: 20,
		MaxNewNotes: 20,
		RepeatItems: true,
		DueRun:      50,
		NewRun:      20,
		Concurrency: 8,
	}
}

// Queue is the per-day scheduler. It is not safe for concurrent use.
type Queue struct {
	st     State
	store  *store.Store
	reg    *algo.Registry
	docs   DocumentExistence
	clock  clock.Clock
	opts   Options
	logger *slog.Logger

	mixers map[string]*Mixer
	shown  map[int]time.Time
}

// New returns an empty queue over s.
func New(s *store.Store, reg *algo.Registry, docs DocumentExistence, c clock.Clock, opts Options, logger *slog.Logger) *Queue {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		st:     newState(),
		store:  s,
		reg:    reg,
		docs:   docs,
		clock:  c,
		opts:   opts,
		logger: logger,
		mixers: map[string]*Mixer{},
		shown:  map[int]time.Time{},
	}
}

// State returns a deep copy of the queue state.
func (q *Queue) State() State { return q.st.clone() }

// Restore replaces the queue state with a copy of st.
func (q *Queue) Restore(st State) {
	c := st.clone()
	q.st = c
	q.mixers = map[string]*Mixer{}
	q.shown = map[int]time.Time{}
}

// ShownAt reports when GetNextID last handed out id.
func (q *Queue) ShownAt(id int) (time.Time, bool) {
	t, ok := q.shown[id]
	return t, ok
}

// Evict removes id from every queue.
func (q *Queue) Evict(id int) {
	for name, d := range q.st.Decks {
		d.New = remove(d.New, id)
		d.Due = remove(d.Due, id)
		if d.empty() {
			delete(q.st.Decks, name)
		}
	}
	q.st.Repeat = remove(q.st.Repeat, id)
	delete(q.st.ToDayLatter, id)
	delete(q.shown, id)
}

// DeckStatus counts the queued items of one deck.
type DeckStatus struct {
	New int `json:"new"`
	Due int `json:"due"`
}

// Status summarises the queue.
type Status struct {
	Decks    map[string]DeckStatus `json:"decks"`
	Repeat   int                   `json:"repeat"`
	Deferred int                   `json:"deferred"`
	NewAdded NewAdded              `json:"new_added"`
	Built    time.Time             `json:"built"`
}

// Status returns queue counts.
func (q *Queue) Status() Status {
	st := Status{
		Decks:    make(map[string]DeckStatus, len(q.st.Decks)),
		Repeat:   len(q.st.Repeat),
		Deferred: len(q.st.ToDayLatter),
		NewAdded: q.st.NewAdded,
	}
	if q.st.LastQueue > 0 {
		st.Built = time.UnixMilli(q.st.LastQueue)
	}
	for name, d := range q.st.Decks {
		st.Decks[name] = DeckStatus{New: len(d.New), Due: len(d.Due)}
	}
	return st
}

// Decks returns the names of decks with queued items, sorted.
func (q *Queue) Decks() []string {
	out := make([]string, 0, len(q.st.Decks))
	for name, d := range q.st.Decks {
		if !d.empty() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (q *Queue) deck(name string) *DeckQueue {
	d, ok := q.st.Decks[name]
	if !ok {
		d = &DeckQueue{}
		q.st.Decks[name] = d
	}
	return d
}

func remove(ids []int, id int) []int {
	return slices.DeleteFunc(ids, func(v int) bool { return v == id })
}

func pushUnique(ids []int, id int) []int {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

func isCard(it *item.RepetitionItem) bool { return it.Type == item.TypeCard }
