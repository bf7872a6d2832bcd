package queue

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
)

// BuildReport summarises one BuildQueue pass. Resolution problems are
// counted here instead of being returned as errors.
type BuildReport struct {
	Admitted  int   `json:"admitted"`
	Due       int   `json:"due"`
	Deferred  int   `json:"deferred"`
	Moved     int   `json:"moved"`
	Missing   int   `json:"missing"`
	Failed    int   `json:"failed"`
	Untracked []int `json:"untracked,omitempty"`
}

// BuildQueue brings the working set up to date. It is idempotent: running it
// again without time passing changes nothing. A cancelled build may leave
// some tombstones applied; a re-run reaches the same result.
func (q *Queue) BuildQueue(ctx context.Context) (BuildReport, error) {
	var rep BuildReport
	now := q.clock.Now()
	if q.st.LastQueue == 0 || !clock.SameDay(now, clock.FromMillis(q.st.LastQueue, now.Location())) {
		q.st.NewAdded = NewAdded{}
	}
	if err := q.resolveFiles(ctx, &rep); err != nil {
		return rep, err
	}
	q.Sweep()
	q.classify(now, &rep)
	q.st.LastQueue = now.UnixMilli()
	return rep, nil
}

type existence struct {
	ok  bool
	err error
}

// resolveFiles checks every tracked document concurrently, then applies the
// outcomes on the calling goroutine.
func (q *Queue) resolveFiles(ctx context.Context, rep *BuildReport) error {
	var paths []string
	for _, fe := range q.store.Files() {
		if len(fe.File.ItemIDs()) > 0 {
			paths = append(paths, fe.File.Path)
		}
	}
	results := make([]existence, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(q.opts.Concurrency)
	for i, p := range paths {
		g.Go(func() error {
			ok, err := q.docs.Exists(gCtx, p)
			results[i] = existence{ok: ok, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, p := range paths {
		r := results[i]
		if r.err != nil {
			rep.Failed++
			q.logger.Warn("queue: existence check failed",
				slog.String("path", p),
				slog.String("error", r.err.Error()))
			continue
		}
		if r.ok {
			continue
		}
		newPath, found, err := q.docs.FindMoved(ctx, p)
		if err == nil && found {
			if err := q.store.RenameFile(p, newPath); err == nil {
				rep.Moved++
				q.logger.Info("queue: document moved",
					slog.String("from", p),
					slog.String("to", newPath))
				continue
			}
		}
		ids := q.store.UntrackFile(p)
		for _, id := range ids {
			q.Evict(id)
		}
		rep.Missing++
		rep.Untracked = append(rep.Untracked, ids...)
	}
	return nil
}

// Sweep drops queued IDs whose items are gone or tombstoned.
func (q *Queue) Sweep() {
	dead := func(id int) bool {
		it, ok := q.store.Item(id)
		return !ok || !it.IsTracked()
	}
	for name, d := range q.st.Decks {
		d.New = deleteIf(d.New, dead)
		d.Due = deleteIf(d.Due, dead)
		if d.empty() {
			delete(q.st.Decks, name)
		}
	}
	q.st.Repeat = deleteIf(q.st.Repeat, dead)
	for id := range q.st.ToDayLatter {
		if dead(id) {
			delete(q.st.ToDayLatter, id)
		}
	}
}

func (q *Queue) classify(now time.Time, rep *BuildReport) {
	queued := make(map[int]string)
	for name, d := range q.st.Decks {
		for _, id := range d.New {
			queued[id] = name
		}
		for _, id := range d.Due {
			queued[id] = name
		}
	}
	nowMs := now.UnixMilli()

	for _, it := range q.store.TrackedItems() {
		name, isQueued := queued[it.ID]
		switch {
		case it.IsNew():
			if isQueued {
				if name != it.Deck {
					q.dropFromDeck(name, it.ID)
					d := q.deck(it.Deck)
					d.New = append(d.New, it.ID)
				}
				continue
			}
			if !q.admit(it) {
				continue
			}
			d := q.deck(it.Deck)
			d.New = append(d.New, it.ID)
			rep.Admitted++
		case it.NextReview <= nowMs:
			q.st.Repeat = remove(q.st.Repeat, it.ID)
			delete(q.st.ToDayLatter, it.ID)
			if isQueued && name != it.Deck {
				q.dropFromDeck(name, it.ID)
			}
			d := q.deck(it.Deck)
			n := len(d.Due)
			if d.Due = pushUnique(d.Due, it.ID); len(d.Due) > n {
				rep.Due++
			}
		case clock.SameDay(now, clock.FromMillis(it.NextReview, now.Location())):
			if _, ok := q.st.ToDayLatter[it.ID]; !ok {
				q.st.ToDayLatter[it.ID] = it.Deck
				rep.Deferred++
			}
		}
	}
	for name, d := range q.st.Decks {
		if d.empty() {
			delete(q.st.Decks, name)
		}
	}
}

// admit charges the daily quota of it's class.
func (q *Queue) admit(it *item.RepetitionItem) bool {
	limit, added := q.opts.MaxNewNotes, &q.st.NewAdded.Notes
	if isCard(it) {
		limit, added = q.opts.MaxNewCards, &q.st.NewAdded.Cards
	}
	if limit != Unlimited && *added >= limit {
		return false
	}
	*added++
	return true
}

// promote moves deferred items that have fallen due into their deck queue.
func (q *Queue) promote(now time.Time) {
	ids := make([]int, 0, len(q.st.ToDayLatter))
	for id := range q.st.ToDayLatter {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		it, ok := q.store.Item(id)
		if !ok || !it.IsTracked() {
			delete(q.st.ToDayLatter, id)
			continue
		}
		if it.NextReview > now.UnixMilli() {
			continue
		}
		delete(q.st.ToDayLatter, id)
		q.st.Repeat = remove(q.st.Repeat, id)
		d := q.deck(it.Deck)
		d.Due = pushUnique(d.Due, id)
	}
}

func (q *Queue) dropFromDeck(name string, id int) {
	d, ok := q.st.Decks[name]
	if !ok {
		return
	}
	d.New = remove(d.New, id)
	d.Due = remove(d.Due, id)
	if d.empty() {
		delete(q.st.Decks, name)
	}
}

func deleteIf(ids []int, f func(int) bool) []int {
	out := ids[:0]
	for _, id := range ids {
		if !f(id) {
			out = append(out, id)
		}
	}
	return out
}
