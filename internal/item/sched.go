package item

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/starford/ansuz/internal/clock"
)

const dateLayout = "2006-01-02"

// SchedTuple is the external projection of an item's schedule.
// Due is either a YYYY-MM-DD date or raw epoch millis. With a date, Offset
// holds the milliseconds past local midnight so the due time survives the
// round trip. EaseOrState carries the ease for legacy shapes and the FSRS
// state for the FSRS shape.
type SchedTuple struct {
	ID          int     `json:"id"`
	Due         string  `json:"due"`
	Offset      int64   `json:"offset,omitempty"`
	Interval    float64 `json:"interval"`
	EaseOrState float64 `json:"ease"`
}

// NumDue reports whether Due holds epoch millis rather than a date.
func (t SchedTuple) NumDue() bool {
	_, err := strconv.ParseInt(t.Due, 10, 64)
	return err == nil
}

// GetSchedTuple projects (id, due, interval, ease-or-state). It reports false
// when the item has never been reviewed or when fsrsShape does not match the
// payload.
func (it *RepetitionItem) GetSchedTuple(fsrsShape, numDue bool, loc *time.Location) (SchedTuple, bool) {
	if it.NextReview == 0 || it.TimesReviewed == 0 {
		return SchedTuple{}, false
	}
	if fsrsShape != (it.Data.Kind == KindFSRS) {
		return SchedTuple{}, false
	}
	t := SchedTuple{ID: it.ID, Interval: it.Data.Interval()}
	if numDue {
		t.Due = strconv.FormatInt(it.NextReview, 10)
	} else {
		due := clock.FromMillis(it.NextReview, loc)
		t.Due = due.Format(dateLayout)
		t.Offset = it.NextReview - clock.StartOfDay(due).UnixMilli()
	}
	if fsrsShape {
		t.EaseOrState = float64(it.Data.FSRS.State)
	} else {
		t.EaseOrState = it.Data.Ease()
	}
	return t, true
}

// ApplySchedTuple writes a tuple back into the item. When correct is non-nil
// the review counters advance as for a primary review.
func (it *RepetitionItem) ApplySchedTuple(t SchedTuple, correct *bool, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	var due int64
	if t.NumDue() {
		due, _ = strconv.ParseInt(t.Due, 10, 64)
	} else {
		d, err := time.ParseInLocation(dateLayout, t.Due, loc)
		if err != nil {
			return fmt.Errorf("item: parse due %q: %w", t.Due, err)
		}
		if t.Offset < 0 || t.Offset >= clock.DayMillis {
			return fmt.Errorf("item: offset %d outside the day", t.Offset)
		}
		due = d.UnixMilli() + t.Offset
	}
	if err := it.Data.Check(); err != nil {
		return err
	}

	switch it.Data.Kind {
	case KindDefault:
		it.Data.Default.LastInterval = t.Interval
		it.Data.Default.Ease = int(math.Round(t.EaseOrState))
	case KindSM2:
		it.Data.SM2.LastInterval = t.Interval
		it.Data.SM2.Ease = t.EaseOrState
	case KindAnki:
		it.Data.Anki.LastInterval = t.Interval
		it.Data.Anki.Ease = t.EaseOrState
	case KindFSRS:
		f := it.Data.FSRS
		f.ScheduledDays = uint64(math.Max(0, math.Round(t.Interval)))
		f.State = int(t.EaseOrState)
		f.Due = clock.FromMillis(due, loc)
		f.LastReview = f.Due.AddDate(0, 0, -int(f.ScheduledDays))
	}
	it.NextReview = due
	if correct != nil {
		it.Record(*correct)
	}
	return nil
}
