// Package algo implements the pluggable scheduling algorithms.
//
// Every algorithm owns one payload kind. OnSelection turns a response into a
// pass/fail verdict and a new due date, CalcAllOptsIntervals previews every
// response on a copy, and Import converts payloads written by another kind.
package algo

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
)

// NoReschedule is the NextReview sentinel of a repeat pass.
const NoReschedule int64 = -1

// ReviewResult is the verdict for one response.
type ReviewResult struct {
	Correct    bool  `json:"correct"`
	NextReview int64 `json:"next_review"` // epoch millis, NoReschedule on repeat passes
}

// Settings is an algorithm's tunable parameter block.
type Settings interface {
	Validate() error
}

// Algorithm is the scheduling strategy contract.
type Algorithm interface {
	Kind() item.Kind
	DefaultSettings() Settings
	Settings() Settings
	// DefaultData is the payload of a brand-new item.
	DefaultData() item.Payload
	// Options lists the response labels. Index 0 is the failing grade.
	Options() []string
	// OnSelection applies option to it. With repeat set only the verdict is
	// computed: it is left untouched and NextReview is NoReschedule.
	OnSelection(it *item.RepetitionItem, option string, repeat bool) (ReviewResult, error)
	// CalcAllOptsIntervals returns, per option, the interval in days the item
	// would get. it is not modified.
	CalcAllOptsIntervals(it *item.RepetitionItem) ([]float64, error)
	// Import converts the payloads of items from kind from, in place.
	Import(from item.Kind, items []*item.RepetitionItem) error
}

// Balancer nudges an interval away from crowded days.
type Balancer interface {
	Balance(days int, histogram map[int]int) int
}

// HistogramFunc returns the number of reviewed items due per day offset
// from today.
type HistogramFunc func(now time.Time) map[int]int

// LogRow is one review-log entry.
type LogRow struct {
	ItemID     int    `json:"item_id"`
	Timestamp  int64  `json:"timestamp"`
	Rating     int    `json:"rating"`
	DurationMs int64  `json:"duration_ms"`
	State      int    `json:"state"`
	Deck       string `json:"deck"`
}

// ReviewLogSink receives review-log rows.
type ReviewLogSink interface {
	Append(row LogRow) error
}

// ShownTracker reports when an item was last presented.
type ShownTracker interface {
	ShownAt(id int) (time.Time, bool)
}

func optionIndex(options []string, option string) (int, error) {
	i := slices.Index(options, option)
	if i < 0 {
		return -1, fmt.Errorf("%w: %q (want one of %v)", apperr.ErrInvalidOption, option, options)
	}
	return i, nil
}

func checkKind(it *item.RepetitionItem, want item.Kind) error {
	if it.Data.Kind != want {
		return fmt.Errorf("%w: item %d holds %q payload, active algorithm is %q",
			apperr.ErrConsistency, it.ID, it.Data.Kind, want)
	}
	return it.Data.Check()
}

func dueIn(now time.Time, days float64) int64 {
	return now.UnixMilli() + int64(math.Round(days*float64(clock.DayMillis)))
}

// preview runs step for every option on a fresh clone of it and converts the
// resulting due date into days from now.
func preview(it *item.RepetitionItem, options []string, now time.Time,
	step func(*item.RepetitionItem, string) (ReviewResult, error)) ([]float64, error) {
	out := make([]float64, len(options))
	for i, opt := range options {
		res, err := step(it.Clone(), opt)
		if err != nil {
			return nil, err
		}
		days := float64(res.NextReview-now.UnixMilli()) / float64(clock.DayMillis)
		out[i] = math.Round(days*100) / 100
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
