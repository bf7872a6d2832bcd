package algo

import (
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
)

// MinEase is the SM-2 ease floor.
const MinEase = 1.3

// SM2Options are the six SuperMemo grades, q = 0..5.
var SM2Options = []string{"Blackout", "Incorrect", "Incorrect (familiar)", "Hard", "Good", "Easy"}

// SM2Params tunes the SM-2 algorithm.
type SM2Params struct {
	StartingEase float64 `yaml:"starting_ease"`
	MaxInterval  int     `yaml:"max_interval"`
}

// Validate validates the parameters.
func (p *SM2Params) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.StartingEase, validation.Min(MinEase)),
		validation.Field(&p.MaxInterval, validation.Required, validation.Min(1)),
	)
}

// DefaultSM2Params returns the stock parameters.
func DefaultSM2Params() SM2Params {
	return SM2Params{StartingEase: 2.5, MaxInterval: 36500}
}

// SM2 is the SuperMemo-2 scheduler.
type SM2 struct {
	params    SM2Params
	clock     clock.Clock
	balancer  Balancer
	histogram HistogramFunc
}

// SM2Option configures an SM2.
type SM2Option func(*SM2)

// WithBalancer levels multiplicative intervals against the due histogram.
func WithBalancer(b Balancer, h HistogramFunc) SM2Option {
	return func(s *SM2) {
		s.balancer = b
		s.histogram = h
	}
}

// NewSM2 returns an SM-2 scheduler.
func NewSM2(c clock.Clock, p SM2Params, opts ...SM2Option) *SM2 {
	s := &SM2{params: p, clock: c}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SM2) Kind() item.Kind           { return item.KindSM2 }
func (s *SM2) Options() []string         { return SM2Options }
func (s *SM2) Settings() Settings        { p := s.params; return &p }
func (s *SM2) DefaultSettings() Settings { p := DefaultSM2Params(); return &p }

func (s *SM2) DefaultData() item.Payload {
	return item.NewSM2Payload(item.SM2Data{Ease: s.params.StartingEase})
}

// OnSelection applies the SM-2 step. The first two passes use fixed 1 and 6
// day intervals; later ones multiply by the ease and go through the balancer.
func (s *SM2) OnSelection(it *item.RepetitionItem, option string, repeat bool) (ReviewResult, error) {
	q, err := optionIndex(SM2Options, option)
	if err != nil {
		return ReviewResult{}, err
	}
	if err := checkKind(it, item.KindSM2); err != nil {
		return ReviewResult{}, err
	}
	correct := q >= 3
	if repeat {
		return ReviewResult{Correct: correct, NextReview: NoReschedule}, nil
	}

	now := s.clock.Now()
	d := it.Data.SM2
	var interval float64
	switch {
	case !correct:
		d.Iteration = 1
		interval = 1
	case d.Iteration <= 0:
		interval = 1
		d.Iteration = 1
	case d.Iteration == 1:
		interval = 6
		d.Iteration = 2
	default:
		interval = s.balance(math.Round(d.LastInterval*d.Ease), now)
		d.Iteration++
	}
	g := float64(5 - q)
	d.Ease = math.Max(MinEase, d.Ease+0.1-g*(0.08+g*0.02))

	interval = clamp(interval, 1, float64(s.params.MaxInterval))
	d.LastInterval = interval
	return ReviewResult{Correct: correct, NextReview: dueIn(now, interval)}, nil
}

func (s *SM2) balance(days float64, now time.Time) float64 {
	if s.balancer == nil {
		return days
	}
	var hist map[int]int
	if s.histogram != nil {
		hist = s.histogram(now)
	}
	return float64(s.balancer.Balance(int(days), hist))
}

func (s *SM2) CalcAllOptsIntervals(it *item.RepetitionItem) ([]float64, error) {
	return preview(it, SM2Options, s.clock.Now(), func(c *item.RepetitionItem, opt string) (ReviewResult, error) {
		return s.OnSelection(c, opt, false)
	})
}

func (s *SM2) Import(from item.Kind, items []*item.RepetitionItem) error {
	return importAll(s, from, items)
}
