// Package item defines the schedulable review item and its algorithm payload.
package item

import (
	"encoding/json"
	"fmt"
)

// Type distinguishes whole-note items from flashcard faces.
type Type int

const (
	TypeUnset Type = iota
	TypeNote
	TypeCard
)

func (t Type) String() string {
	switch t {
	case TypeNote:
		return "note"
	case TypeCard:
		return "card"
	default:
		return ""
	}
}

// MarshalText encodes the type as "note", "card" or "".
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes the textual form written by MarshalText.
func (t *Type) UnmarshalText(b []byte) error {
	switch string(b) {
	case "note":
		*t = TypeNote
	case "card":
		*t = TypeCard
	case "":
		*t = TypeUnset
	default:
		return fmt.Errorf("item: unknown type %q", b)
	}
	return nil
}

// FileRef is a generational handle into the store's tracked-file slots.
// Index -1 marks an untracked (tombstoned) item.
type FileRef struct {
	Index int    `json:"index"`
	Gen   uint32 `json:"gen"`
}

// Untracked is the tombstone handle.
var Untracked = FileRef{Index: -1}

// Valid reports whether the handle points at a slot.
func (r FileRef) Valid() bool { return r.Index >= 0 }

// RepetitionItem is one schedulable unit: a whole note or a single card face.
type RepetitionItem struct {
	ID            int     `json:"id"`
	File          FileRef `json:"file"`
	Type          Type    `json:"type"`
	Deck          string  `json:"deck"`
	NextReview    int64   `json:"next_review"` // epoch millis, 0 = never reviewed
	TimesReviewed int     `json:"times_reviewed"`
	TimesCorrect  int     `json:"times_correct"`
	ErrorStreak   int     `json:"error_streak"`
	Data          Payload `json:"data"`
}

// New returns a tracked item with the given payload.
func New(id int, ref FileRef, typ Type, deck string, data Payload) *RepetitionItem {
	return &RepetitionItem{
		ID:   id,
		File: ref,
		Type: typ,
		Deck: deck,
		Data: data,
	}
}

// IsNew reports whether the item has never been reviewed.
//
// An item with NextReview == 0 but TimesReviewed > 0 is treated as due, not
// new: the counters prove it was reviewed, so only the due date was lost.
func (it *RepetitionItem) IsNew() bool {
	return it.TimesReviewed == 0
}

// IsDue reports whether the item has review history and so belongs to the
// due pipeline. It is the exact complement of IsNew.
func (it *RepetitionItem) IsDue() bool {
	return !it.IsNew()
}

// IsTracked reports whether the item still belongs to a tracked file.
func (it *RepetitionItem) IsTracked() bool {
	return it.File.Valid()
}

// SetTracked attaches the item to a tracked-file slot.
func (it *RepetitionItem) SetTracked(ref FileRef) {
	it.File = ref
}

// SetUntracked tombstones the item. Queue eviction is the caller's job.
func (it *RepetitionItem) SetUntracked() {
	it.File = Untracked
}

// UpdateDeckName sets the deck and infers the item type when unset.
// It reports whether anything changed.
func (it *RepetitionItem) UpdateDeckName(name string, isCard bool) bool {
	changed := false
	if it.Type == TypeUnset {
		if isCard {
			it.Type = TypeCard
		} else {
			it.Type = TypeNote
		}
		changed = true
	}
	if it.Deck != name {
		it.Deck = name
		changed = true
	}
	return changed
}

// Record advances the review counters for one primary (non-repeat) answer.
func (it *RepetitionItem) Record(correct bool) {
	it.TimesReviewed++
	if correct {
		it.TimesCorrect++
		it.ErrorStreak = 0
	} else {
		it.ErrorStreak++
	}
}

// Clone returns a deep copy.
func (it *RepetitionItem) Clone() *RepetitionItem {
	c := *it
	c.Data = it.Data.Clone()
	return &c
}

// Equal compares two items by their serialized form.
func Equal(a, b *RepetitionItem) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ab) == string(bb)
}
