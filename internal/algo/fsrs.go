package algo

import (
	"log/slog"
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	fsrs "github.com/open-spaced-repetition/go-fsrs/v3"

	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
)

// FSRSOptions map 1:1 onto the FSRS ratings Again..Easy.
var FSRSOptions = []string{"Again", "Hard", "Good", "Easy"}

// FSRSParams tunes the FSRS scheduler.
type FSRSParams struct {
	RequestRetention float64 `yaml:"request_retention"`
	MaximumInterval  float64 `yaml:"maximum_interval"`
	EnableFuzz       bool    `yaml:"enable_fuzz"`
	EnableShortTerm  bool    `yaml:"enable_short_term"`
	// InitialInterval (days) decides how many synthetic Easy passes a legacy
	// item gets when converted.
	InitialInterval float64 `yaml:"initial_interval"`
	// RevlogTags limits review logging to these decks. Empty logs everything.
	RevlogTags []string `yaml:"revlog_tags"`
}

// Validate validates the parameters.
func (p *FSRSParams) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.RequestRetention, validation.Required, validation.Min(0.7), validation.Max(0.99)),
		validation.Field(&p.MaximumInterval, validation.Required, validation.Min(1.0)),
		validation.Field(&p.InitialInterval, validation.Required, validation.Min(1.0)),
	)
}

// DefaultFSRSParams returns the stock parameters.
func DefaultFSRSParams() FSRSParams {
	d := fsrs.DefaultParam()
	return FSRSParams{
		RequestRetention: d.RequestRetention,
		MaximumInterval:  d.MaximumInterval,
		EnableShortTerm:  true,
		InitialInterval:  4,
	}
}

// FSRS schedules with the go-fsrs step function.
type FSRS struct {
	params FSRSParams
	clock  clock.Clock
	f      *fsrs.FSRS
	sink   ReviewLogSink
	shown  ShownTracker
	logger *slog.Logger
}

// FSRSOption configures an FSRS.
type FSRSOption func(*FSRS)

// WithLogSink sends a row per primary review to sink.
func WithLogSink(sink ReviewLogSink) FSRSOption {
	return func(f *FSRS) { f.sink = sink }
}

// WithShownTracker supplies presentation times for review durations.
func WithShownTracker(t ShownTracker) FSRSOption {
	return func(f *FSRS) { f.shown = t }
}

// WithLogger sets the logger used for sink failures.
func WithLogger(l *slog.Logger) FSRSOption {
	return func(f *FSRS) { f.logger = l }
}

// NewFSRS returns an FSRS scheduler.
func NewFSRS(c clock.Clock, p FSRSParams, opts ...FSRSOption) *FSRS {
	fp := fsrs.DefaultParam()
	fp.RequestRetention = p.RequestRetention
	fp.MaximumInterval = p.MaximumInterval
	fp.EnableFuzz = p.EnableFuzz
	fp.EnableShortTerm = p.EnableShortTerm
	f := &FSRS{params: p, clock: c, f: fsrs.NewFSRS(fp), logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FSRS) Kind() item.Kind           { return item.KindFSRS }
func (f *FSRS) Options() []string         { return FSRSOptions }
func (f *FSRS) Settings() Settings        { p := f.params; return &p }
func (f *FSRS) DefaultSettings() Settings { p := DefaultFSRSParams(); return &p }

func (f *FSRS) DefaultData() item.Payload {
	return item.NewFSRSPayload(fromCard(fsrs.NewCard()))
}

func (f *FSRS) OnSelection(it *item.RepetitionItem, option string, repeat bool) (ReviewResult, error) {
	return f.step(it, option, repeat, true)
}

func (f *FSRS) step(it *item.RepetitionItem, option string, repeat, logRow bool) (ReviewResult, error) {
	idx, err := optionIndex(FSRSOptions, option)
	if err != nil {
		return ReviewResult{}, err
	}
	if err := checkKind(it, item.KindFSRS); err != nil {
		return ReviewResult{}, err
	}
	rating := fsrs.Rating(idx + 1)
	correct := rating != fsrs.Again
	if repeat {
		return ReviewResult{Correct: correct, NextReview: NoReschedule}, nil
	}

	now := f.clock.Now()
	stateAt := it.Data.FSRS.State
	next := f.f.Repeat(toCard(it.Data.FSRS), now)[rating].Card
	*it.Data.FSRS = fromCard(next)

	if logRow && f.sink != nil && f.logs(it.Deck) {
		row := LogRow{
			ItemID:    it.ID,
			Timestamp: now.UnixMilli(),
			Rating:    idx,
			State:     stateAt,
			Deck:      it.Deck,
		}
		if f.shown != nil {
			if at, ok := f.shown.ShownAt(it.ID); ok && now.After(at) {
				row.DurationMs = now.Sub(at).Milliseconds()
			}
		}
		if err := f.sink.Append(row); err != nil {
			f.logger.Warn("fsrs: append review log failed",
				slog.Int("item_id", it.ID),
				slog.String("error", err.Error()))
		}
	}
	return ReviewResult{Correct: correct, NextReview: next.Due.UnixMilli()}, nil
}

func (f *FSRS) logs(deck string) bool {
	return len(f.params.RevlogTags) == 0 || slices.Contains(f.params.RevlogTags, deck)
}

func (f *FSRS) CalcAllOptsIntervals(it *item.RepetitionItem) ([]float64, error) {
	return preview(it, FSRSOptions, f.clock.Now(), func(c *item.RepetitionItem, opt string) (ReviewResult, error) {
		return f.step(c, opt, false, false)
	})
}

func (f *FSRS) Import(from item.Kind, items []*item.RepetitionItem) error {
	return importAll(f, from, items)
}

// ReplayPlan returns the synthetic ratings used to rebuild an FSRS memory
// state from a legacy interval: one Easy pass above the initial interval,
// two above three times it, then one Good pass.
func ReplayPlan(interval, initial float64) []fsrs.Rating {
	var plan []fsrs.Rating
	if interval > initial {
		plan = append(plan, fsrs.Easy)
	}
	if interval > 3*initial {
		plan = append(plan, fsrs.Easy)
	}
	return append(plan, fsrs.Good)
}

// fromLegacy rebuilds an FSRS payload for a reviewed legacy item, then pins
// the schedule to the item's real history.
func (f *FSRS) fromLegacy(it *item.RepetitionItem) item.Payload {
	interval := max(1, it.Data.Interval())
	now := f.clock.Now()
	due := now
	if it.NextReview > 0 {
		due = clock.FromMillis(it.NextReview, now.Location())
	}
	lastReview := due.Add(-time.Duration(interval * float64(24*time.Hour)))

	card := fsrs.NewCard()
	at := lastReview
	for _, r := range ReplayPlan(interval, f.params.InitialInterval) {
		card = f.f.Repeat(card, at)[r].Card
		if card.Due.After(at) {
			at = card.Due
		}
	}
	card.Due = due
	card.ScheduledDays = uint64(interval + 0.5)
	card.Reps = uint64(it.TimesReviewed)
	card.LastReview = lastReview
	return item.NewFSRSPayload(fromCard(card))
}

func toCard(d *item.FSRSData) fsrs.Card {
	return fsrs.Card{
		Due:           d.Due,
		Stability:     d.Stability,
		Difficulty:    d.Difficulty,
		ElapsedDays:   d.ElapsedDays,
		ScheduledDays: d.ScheduledDays,
		Reps:          d.Reps,
		Lapses:        d.Lapses,
		State:         fsrs.State(d.State),
		LastReview:    d.LastReview,
	}
}

func fromCard(c fsrs.Card) item.FSRSData {
	return item.FSRSData{
		Due:           c.Due,
		LastReview:    c.LastReview,
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   c.ElapsedDays,
		ScheduledDays: c.ScheduledDays,
		Reps:          c.Reps,
		Lapses:        c.Lapses,
		State:         int(c.State),
	}
}
