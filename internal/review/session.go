package review

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/queue"
)

// BuildQueue refreshes the day's working set and persists it.
func (s *Service) BuildQueue(ctx context.Context) (queue.BuildReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.Busy() {
		return queue.BuildReport{}, apperr.ErrBusy
	}

	rep, err := s.queue.BuildQueue(ctx)
	if err != nil {
		return rep, err
	}
	if err := s.saveLocked(ctx); err != nil {
		return rep, err
	}
	s.logger.Info("review: queue built",
		slog.Int("admitted", rep.Admitted),
		slog.Int("due", rep.Due),
		slog.Int("deferred", rep.Deferred),
		slog.Int("missing", rep.Missing))
	s.emit(EventQueueBuilt, rep)
	return rep, nil
}

// Next returns the next item to review in deck ("" for any deck), or
// ok=false when nothing is left today.
func (s *Service) Next(deck string) (next models.NextItem, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.queue.GetNextID(deck)
	if !ok {
		return models.NextItem{}, false, nil
	}
	s.dirty = true
	it, found := s.store.Item(id)
	if !found {
		return models.NextItem{}, false, fmt.Errorf("review: next %d: %w", id, apperr.ErrNotFound)
	}
	opts, err := s.previewLocked(it)
	if err != nil {
		return models.NextItem{}, false, err
	}
	next = models.NextItem{
		Item:    s.view(it),
		Options: opts,
		Repeat:  s.queue.InRepeat(id),
	}
	s.render(it, &next)
	return next, true, nil
}

// Review answers item id with option.
func (s *Service) Review(ctx context.Context, id int, option string) (queue.ReviewOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.Busy() {
		return queue.ReviewOutcome{}, apperr.ErrBusy
	}

	out, err := s.queue.ReviewID(id, option)
	if err != nil {
		return out, err
	}
	if err := s.saveLocked(ctx); err != nil {
		return out, err
	}
	s.emit(EventItemReviewed, out)
	return out, nil
}

// Preview returns the interval every response option would schedule for id,
// without changing it.
func (s *Service) Preview(id int) ([]models.OptionPreview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.store.Item(id)
	if !ok {
		return nil, fmt.Errorf("review: preview %d: %w", id, apperr.ErrNotFound)
	}
	return s.previewLocked(it)
}

func (s *Service) previewLocked(it *item.RepetitionItem) ([]models.OptionPreview, error) {
	a := s.reg.Active()
	days, err := a.CalcAllOptsIntervals(it)
	if err != nil {
		return nil, err
	}
	opts := a.Options()
	out := make([]models.OptionPreview, len(opts))
	for i, o := range opts {
		out[i] = models.OptionPreview{Option: o, Days: days[i]}
	}
	return out, nil
}

// Item returns one item.
func (s *Service) Item(id int) (models.ItemView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.store.Item(id)
	if !ok {
		return models.ItemView{}, fmt.Errorf("review: item %d: %w", id, apperr.ErrNotFound)
	}
	return s.view(it), nil
}

// Decks summarises the queued work per deck, sorted by name.
func (s *Service) Decks() []models.DeckSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.queue.Status()
	out := make([]models.DeckSummary, 0, len(st.Decks))
	for name, d := range st.Decks {
		out = append(out, models.DeckSummary{Name: name, New: d.New, Due: d.Due})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Status returns the queue counters.
func (s *Service) Status() queue.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Status()
}

// Schedule exports the schedule tuples of every reviewed item.
func (s *Service) Schedule(numDue bool) []item.SchedTuple {
	s.mu.Lock()
	defer s.mu.Unlock()
	fsrsShape := s.reg.Active().Kind() == item.KindFSRS
	loc := s.clock.Now().Location()
	var out []item.SchedTuple
	for _, it := range s.store.TrackedItems() {
		if t, ok := it.GetSchedTuple(fsrsShape, numDue, loc); ok {
			out = append(out, t)
		}
	}
	return out
}

// ApplySchedule writes exported schedule tuples back into their items and
// returns how many were applied. Unknown IDs are skipped.
func (s *Service) ApplySchedule(ctx context.Context, tuples []item.SchedTuple) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.Busy() {
		return 0, apperr.ErrBusy
	}
	loc := s.clock.Now().Location()
	n := 0
	for _, t := range tuples {
		it, ok := s.store.Item(t.ID)
		if !ok {
			continue
		}
		if err := it.ApplySchedTuple(t, nil, loc); err != nil {
			return n, fmt.Errorf("review: apply schedule %d: %w", t.ID, err)
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.saveLocked(ctx)
}

func (s *Service) view(it *item.RepetitionItem) models.ItemView {
	v := models.ItemView{
		ID:            it.ID,
		Type:          it.Type,
		Deck:          it.Deck,
		Tracked:       it.IsTracked(),
		TimesReviewed: it.TimesReviewed,
		TimesCorrect:  it.TimesCorrect,
		ErrorStreak:   it.ErrorStreak,
		Algorithm:     it.Data.Kind,
		Data:          it.Data.Clone(),
	}
	if f, err := s.store.FileOf(it); err == nil {
		v.Path = f.Path
	}
	if it.NextReview > 0 {
		t := clock.FromMillis(it.NextReview, s.clock.Now().Location())
		v.NextReview = &t
	}
	return v
}

// render fills the prompt of next from the source document. Failures only
// leave the prompt empty.
func (s *Service) render(it *item.RepetitionItem, next *models.NextItem) {
	if s.files == nil || next.Item.Path == "" {
		return
	}
	data, err := s.files.Read(next.Item.Path)
	if err != nil {
		s.logger.Debug("review: render failed", slog.String("path", next.Item.Path), slog.String("error", err.Error()))
		return
	}
	res, err := parser.Parse(data)
	if err != nil {
		return
	}
	next.Title = res.Title
	if next.Title == "" {
		next.Title = next.Item.Path
	}
	if it.Type != item.TypeCard {
		next.Prompt = next.Title
		return
	}

	f, err := s.store.FileOf(it)
	if err != nil {
		return
	}
	for _, ci := range f.CardItems {
		face := slices.Index(ci.ItemIDs, it.ID)
		if face < 0 {
			continue
		}
		if c, ok := matchCard(res.Cards, ci.CardTextHash, ci.LineNo); ok {
			next.Prompt, next.Answer = c.Face(face)
		}
		return
	}
}

// matchCard finds the parsed card for a stored card: by hash, else by the
// closest line.
func matchCard(cards []parser.Card, hash string, line int) (parser.Card, bool) {
	for _, c := range cards {
		if hash != "" && c.Hash == hash {
			return c, true
		}
	}
	best, dist := -1, math.MaxInt
	for i, c := range cards {
		if d := abs(c.LineNo - line); d < dist {
			best, dist = i, d
		}
	}
	if best < 0 {
		return parser.Card{}, false
	}
	return cards[best], true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
