package algo

import (
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
)

// AnkiOptions are the four Anki answer buttons.
var AnkiOptions = []string{"Again", "Hard", "Good", "Easy"}

// AnkiParams mirrors the Anki deck options that drive the scheduler.
type AnkiParams struct {
	StartingEase       float64 `yaml:"starting_ease"`
	EasyBonus          float64 `yaml:"easy_bonus"`
	IntervalModifier   float64 `yaml:"interval_modifier"`
	HardInterval       float64 `yaml:"hard_interval"`
	LapseMultiplier    float64 `yaml:"lapse_multiplier"`
	GraduatingInterval int     `yaml:"graduating_interval"`
	EasyInterval       int     `yaml:"easy_interval"`
	MinInterval        int     `yaml:"min_interval"`
	MaxInterval        int     `yaml:"max_interval"`
}

// Validate validates the parameters.
func (p *AnkiParams) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.StartingEase, validation.Required, validation.Min(MinEase)),
		validation.Field(&p.EasyBonus, validation.Min(1.0)),
		validation.Field(&p.IntervalModifier, validation.Required, validation.Min(0.1)),
		validation.Field(&p.HardInterval, validation.Min(1.0)),
		validation.Field(&p.LapseMultiplier, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&p.GraduatingInterval, validation.Required, validation.Min(1)),
		validation.Field(&p.EasyInterval, validation.Required, validation.Min(p.GraduatingInterval)),
		validation.Field(&p.MinInterval, validation.Required, validation.Min(1)),
		validation.Field(&p.MaxInterval, validation.Required, validation.Min(p.MinInterval)),
	)
}

// DefaultAnkiParams returns Anki's stock deck options.
func DefaultAnkiParams() AnkiParams {
	return AnkiParams{
		StartingEase:       2.5,
		EasyBonus:          1.3,
		IntervalModifier:   1.0,
		HardInterval:       1.2,
		LapseMultiplier:    0,
		GraduatingInterval: 1,
		EasyInterval:       4,
		MinInterval:        1,
		MaxInterval:        36500,
	}
}

// Anki is the Anki-style ease/interval scheduler.
type Anki struct {
	params AnkiParams
	clock  clock.Clock
}

// NewAnki returns an Anki-style scheduler.
func NewAnki(c clock.Clock, p AnkiParams) *Anki {
	return &Anki{params: p, clock: c}
}

func (a *Anki) Kind() item.Kind           { return item.KindAnki }
func (a *Anki) Options() []string         { return AnkiOptions }
func (a *Anki) Settings() Settings        { p := a.params; return &p }
func (a *Anki) DefaultSettings() Settings { p := DefaultAnkiParams(); return &p }

func (a *Anki) DefaultData() item.Payload {
	return item.NewAnkiPayload(item.AnkiData{Ease: a.params.StartingEase})
}

// OnSelection applies one answer. Iteration 0 means the card has not
// graduated yet.
func (a *Anki) OnSelection(it *item.RepetitionItem, option string, repeat bool) (ReviewResult, error) {
	idx, err := optionIndex(AnkiOptions, option)
	if err != nil {
		return ReviewResult{}, err
	}
	if err := checkKind(it, item.KindAnki); err != nil {
		return ReviewResult{}, err
	}
	correct := idx > 0
	if repeat {
		return ReviewResult{Correct: correct, NextReview: NoReschedule}, nil
	}

	p := a.params
	now := a.clock.Now()
	d := it.Data.Anki
	minI := float64(p.MinInterval)
	var interval float64
	if d.Iteration <= 0 {
		switch idx {
		case 0:
			interval = minI
		case 1, 2:
			interval = float64(p.GraduatingInterval)
			d.Iteration = 1
		case 3:
			interval = float64(p.EasyInterval)
			d.Ease += 0.15
			d.Iteration = 1
		}
	} else {
		last := math.Max(minI, d.LastInterval)
		switch idx {
		case 0:
			d.Ease = math.Max(MinEase, d.Ease-0.2)
			interval = last * p.LapseMultiplier
		case 1:
			d.Ease = math.Max(MinEase, d.Ease-0.15)
			interval = math.Max(last*p.HardInterval*p.IntervalModifier, last+1)
		case 2:
			interval = math.Max(last*d.Ease*p.IntervalModifier, last+1)
		case 3:
			d.Ease += 0.15
			interval = math.Max(last*d.Ease*p.EasyBonus*p.IntervalModifier, last+1)
		}
		if correct {
			d.Iteration++
		}
	}
	interval = clamp(math.Round(interval), minI, float64(p.MaxInterval))
	d.LastInterval = interval
	return ReviewResult{Correct: correct, NextReview: dueIn(now, interval)}, nil
}

func (a *Anki) CalcAllOptsIntervals(it *item.RepetitionItem) ([]float64, error) {
	return preview(it, AnkiOptions, a.clock.Now(), func(c *item.RepetitionItem, opt string) (ReviewResult, error) {
		return a.OnSelection(c, opt, false)
	})
}

func (a *Anki) Import(from item.Kind, items []*item.RepetitionItem) error {
	return importAll(a, from, items)
}
