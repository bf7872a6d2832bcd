package queue

import (
	"fmt"
	"slices"

	"github.com/starford/ansuz/internal/apperr"
)

// GetNextID returns the next item to present. deck "" walks every deck in
// name order. Deck queues come first; the cross-deck repeat queue is the
// fallback.
func (q *Queue) GetNextID(deck string) (int, bool) {
	now := q.clock.Now()
	q.promote(now)

	names := []string{deck}
	if deck == "" {
		names = q.Decks()
	}
	for _, name := range names {
		d, ok := q.st.Decks[name]
		if !ok {
			continue
		}
		cls, ok := q.mixer(name).Peek(len(d.Due), len(d.New))
		if !ok {
			continue
		}
		var id int
		if cls == ClassDue {
			id = d.Due[0]
		} else {
			id = d.New[0]
		}
		q.shown[id] = now
		return id, true
	}
	if len(q.st.Repeat) > 0 {
		id := q.st.Repeat[0]
		q.shown[id] = now
		return id, true
	}
	return 0, false
}

func (q *Queue) mixer(deck string) *Mixer {
	m, ok := q.mixers[deck]
	if !ok {
		m = NewMixer(q.opts.DueRun, q.opts.NewRun)
		q.mixers[deck] = m
	}
	return m
}

// ReviewOutcome reports what ReviewID did.
type ReviewOutcome struct {
	ID         int    `json:"id"`
	Deck       string `json:"deck"`
	Correct    bool   `json:"correct"`
	Repeat     bool   `json:"repeat"` // answered as a same-day repeat pass
	NextReview int64  `json:"next_review"`
	Requeued   bool   `json:"requeued"` // placed on the repeat queue
}

// InRepeat reports whether id waits in the repeat queue.
func (q *Queue) InRepeat(id int) bool {
	return slices.Contains(q.st.Repeat, id)
}

// ReviewID applies option to item id with the active algorithm.
//
// Items in the repeat queue get a repeat pass: only the verdict counts, a
// failure sends the item to the back of the repeat queue. Otherwise the item
// is rescheduled, its counters advance and it leaves the deck queues; a
// failure optionally joins the repeat queue.
func (q *Queue) ReviewID(id int, option string) (ReviewOutcome, error) {
	it, ok := q.store.Item(id)
	if !ok || !it.IsTracked() {
		return ReviewOutcome{}, fmt.Errorf("queue: review %d: %w", id, apperr.ErrNotFound)
	}
	a := q.reg.Active()
	out := ReviewOutcome{ID: id, Deck: it.Deck}

	if q.InRepeat(id) {
		res, err := a.OnSelection(it, option, true)
		if err != nil {
			return out, err
		}
		out.Correct, out.Repeat, out.NextReview = res.Correct, true, it.NextReview
		q.st.Repeat = remove(q.st.Repeat, id)
		if res.Correct {
			it.ErrorStreak = 0
		} else {
			it.ErrorStreak++
			q.st.Repeat = append(q.st.Repeat, id)
			out.Requeued = true
		}
		delete(q.shown, id)
		return out, nil
	}

	res, err := a.OnSelection(it, option, false)
	if err != nil {
		return out, err
	}
	it.NextReview = res.NextReview
	it.Record(res.Correct)
	out.Correct, out.NextReview = res.Correct, res.NextReview

	for name, d := range q.st.Decks {
		switch {
		case slices.Contains(d.Due, id):
			q.mixer(name).Advance(ClassDue)
		case slices.Contains(d.New, id):
			q.mixer(name).Advance(ClassNew)
		}
		q.dropFromDeck(name, id)
	}
	delete(q.st.ToDayLatter, id)
	if !res.Correct && q.opts.RepeatItems {
		q.st.Repeat = pushUnique(q.st.Repeat, id)
		out.Requeued = true
	}
	delete(q.shown, id)
	return out, nil
}
