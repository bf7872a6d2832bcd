package algo

import (
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
)

// DefaultOptions are the responses of the default algorithm. Hard fails.
var DefaultOptions = []string{"Hard", "Good", "Easy"}

// DefaultParams tunes the default algorithm. Ease values are percentages.
type DefaultParams struct {
	BaseEase             int     `yaml:"base_ease"`
	LapsesIntervalChange float64 `yaml:"lapses_interval_change"`
	EasyBonus            float64 `yaml:"easy_bonus"`
	MaxInterval          int     `yaml:"max_interval"`
}

// Validate validates the parameters.
func (p *DefaultParams) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.BaseEase, validation.Required, validation.Min(130)),
		validation.Field(&p.LapsesIntervalChange, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&p.EasyBonus, validation.Min(1.0)),
		validation.Field(&p.MaxInterval, validation.Required, validation.Min(1)),
	)
}

// DefaultDefaultParams returns the stock parameters.
func DefaultDefaultParams() DefaultParams {
	return DefaultParams{BaseEase: 250, LapsesIntervalChange: 0.5, EasyBonus: 1.3, MaxInterval: 36525}
}

// Default is the percentage-ease scheduler with overdue credit.
type Default struct {
	params DefaultParams
	clock  clock.Clock
}

// NewDefault returns the default scheduler.
func NewDefault(c clock.Clock, p DefaultParams) *Default {
	return &Default{params: p, clock: c}
}

func (a *Default) Kind() item.Kind           { return item.KindDefault }
func (a *Default) Options() []string         { return DefaultOptions }
func (a *Default) Settings() Settings        { p := a.params; return &p }
func (a *Default) DefaultSettings() Settings { p := DefaultDefaultParams(); return &p }

func (a *Default) DefaultData() item.Payload {
	return item.NewDefaultPayload(item.DefaultData{Ease: a.params.BaseEase})
}

func (a *Default) OnSelection(it *item.RepetitionItem, option string, repeat bool) (ReviewResult, error) {
	idx, err := optionIndex(DefaultOptions, option)
	if err != nil {
		return ReviewResult{}, err
	}
	if err := checkKind(it, item.KindDefault); err != nil {
		return ReviewResult{}, err
	}
	correct := idx > 0
	if repeat {
		return ReviewResult{Correct: correct, NextReview: NoReschedule}, nil
	}

	now := a.clock.Now()
	d := it.Data.Default
	// Days the review is late, credited towards the next interval.
	var delay float64
	if it.NextReview > 0 && now.UnixMilli() > it.NextReview {
		delay = float64(now.UnixMilli()-it.NextReview) / float64(clock.DayMillis)
	}
	interval := math.Max(1, d.LastInterval)
	switch idx {
	case 0:
		d.Ease = max(130, d.Ease-20)
		interval = (interval + delay/4) * a.params.LapsesIntervalChange
	case 1:
		interval = (interval + delay/2) * float64(d.Ease) / 100
	case 2:
		d.Ease += 20
		interval = (interval + delay) * float64(d.Ease) / 100 * a.params.EasyBonus
	}
	interval = clamp(math.Round(interval), 1, float64(a.params.MaxInterval))
	d.LastInterval = interval
	return ReviewResult{Correct: correct, NextReview: dueIn(now, interval)}, nil
}

func (a *Default) CalcAllOptsIntervals(it *item.RepetitionItem) ([]float64, error) {
	return preview(it, DefaultOptions, a.clock.Now(), func(c *item.RepetitionItem, opt string) (ReviewResult, error) {
		return a.OnSelection(c, opt, false)
	})
}

func (a *Default) Import(from item.Kind, items []*item.RepetitionItem) error {
	return importAll(a, from, items)
}
