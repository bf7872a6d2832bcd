package algo

import (
	"fmt"
	"math"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/item"
)

// supported enumerates the convertible (from, to) pairs. Conversions are
// applied directly, never chained through a third kind.
var supported = map[item.Kind]map[item.Kind]bool{
	item.KindDefault: {item.KindSM2: true, item.KindAnki: true, item.KindFSRS: true},
	item.KindSM2:     {item.KindDefault: true, item.KindAnki: true, item.KindFSRS: true},
	item.KindAnki:    {item.KindDefault: true, item.KindSM2: true, item.KindFSRS: true},
	item.KindFSRS:    {item.KindDefault: true, item.KindSM2: true, item.KindAnki: true},
}

// Supported reports whether payloads of kind from can be converted to to.
func Supported(from, to item.Kind) bool {
	return supported[from][to]
}

// ConvertPayload returns it's payload converted to target's kind. it is not
// modified.
func ConvertPayload(it *item.RepetitionItem, target Algorithm) (item.Payload, error) {
	from, to := it.Data.Kind, target.Kind()
	if from == to {
		return it.Data.Clone(), nil
	}
	if !Supported(from, to) {
		return item.Payload{}, fmt.Errorf("%w: %q -> %q", apperr.ErrUnsupportedConversion, from, to)
	}
	if err := it.Data.Check(); err != nil {
		return item.Payload{}, fmt.Errorf("item %d: %w", it.ID, err)
	}
	if it.IsNew() {
		return target.DefaultData(), nil
	}

	switch {
	case to == item.KindFSRS:
		f, ok := target.(*FSRS)
		if !ok {
			return item.Payload{}, fmt.Errorf("%w: fsrs target is %T", apperr.ErrUnsupportedConversion, target)
		}
		return f.fromLegacy(it), nil
	case from == item.KindFSRS:
		return fromFSRS(it.Data.FSRS, target.DefaultData()), nil
	default:
		return convertLegacy(it, target.DefaultData()), nil
	}
}

// convertLegacy rescales the ease between percent and multiplier forms and
// carries the interval over.
func convertLegacy(it *item.RepetitionItem, base item.Payload) item.Payload {
	p := it.Data
	var ease float64
	iteration := it.TimesReviewed
	switch p.Kind {
	case item.KindDefault:
		ease = float64(p.Default.Ease) / 100
	case item.KindSM2:
		ease, iteration = p.SM2.Ease, p.SM2.Iteration
	case item.KindAnki:
		ease, iteration = p.Anki.Ease, p.Anki.Iteration
	}
	interval := math.Max(1, p.Interval())

	switch base.Kind {
	case item.KindDefault:
		base.Default.Ease = int(math.Round(ease * 100))
		base.Default.LastInterval = interval
	case item.KindSM2:
		base.SM2.Ease = math.Max(MinEase, ease)
		base.SM2.LastInterval = interval
		base.SM2.Iteration = iteration
	case item.KindAnki:
		base.Anki.Ease = math.Max(MinEase, ease)
		base.Anki.LastInterval = interval
		base.Anki.Iteration = iteration
	}
	return base
}

// fromFSRS keeps the schedule length and repetition count; the ease cannot be
// recovered and stays at the target's default.
func fromFSRS(d *item.FSRSData, base item.Payload) item.Payload {
	interval := math.Max(float64(d.ScheduledDays), 1)
	switch base.Kind {
	case item.KindDefault:
		base.Default.LastInterval = interval
	case item.KindSM2:
		base.SM2.LastInterval = interval
		base.SM2.Iteration = int(d.Reps)
	case item.KindAnki:
		base.Anki.LastInterval = interval
		base.Anki.Iteration = int(d.Reps)
	}
	return base
}

func importAll(a Algorithm, from item.Kind, items []*item.RepetitionItem) error {
	to := a.Kind()
	if from == to {
		return nil
	}
	if !Supported(from, to) {
		return fmt.Errorf("%w: %q -> %q", apperr.ErrUnsupportedConversion, from, to)
	}
	for _, it := range items {
		if it.Data.Kind != from {
			return fmt.Errorf("%w: item %d holds %q payload, expected %q",
				apperr.ErrConsistency, it.ID, it.Data.Kind, from)
		}
		p, err := ConvertPayload(it, a)
		if err != nil {
			return err
		}
		it.Data = p
	}
	return nil
}
