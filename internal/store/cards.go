package store

import (
	"fmt"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/item"
)

// CardSource describes one flashcard as found in the document right now.
type CardSource struct {
	LineNo int
	Hash   string
	Faces  int // number of items the card needs, at least 1
}

// SyncOptions tunes card identity resolution.
type SyncOptions struct {
	// TreatUnmatchedAsNew resolves ambiguous matches by creating new cards
	// and untracking the unclaimed old ones.
	TreatUnmatchedAsNew bool
}

// SyncResult lists the items created and untracked by a card sync.
type SyncResult struct {
	Created   []int
	Untracked []int
}

// SyncCards reconciles the stored cards of path with cards.
//
// Identity is resolved by content hash first. A card without a hash, or whose
// hash changed while it stayed on the same line, keeps the identity of the old
// card on that line. A card that matches neither while an old card is left
// unclaimed is ambiguous: it may be that card edited and moved. That case
// fails with ErrAmbiguousCard and leaves the store untouched, unless
// opts.TreatUnmatchedAsNew is set.
func (s *Store) SyncCards(path string, cards []CardSource, opts SyncOptions, data func() item.Payload) (SyncResult, error) {
	var res SyncResult
	f, ref, ok := s.File(path)
	if !ok {
		return res, fmt.Errorf("store: sync cards %s: %w", path, apperr.ErrNotFound)
	}

	old := f.CardItems
	match, claimed, err := resolveCards(path, old, cards, opts)
	if err != nil {
		return res, err
	}

	deck := s.DeckOf(f)
	next := make([]*CardInfo, 0, len(cards))
	for i, c := range cards {
		faces := c.Faces
		if faces < 1 {
			faces = 1
		}
		var ci *CardInfo
		if j := match[i]; j >= 0 {
			ci = old[j]
			ci.LineNo = c.LineNo
			if c.Hash != "" {
				ci.CardTextHash = c.Hash
			}
		} else {
			ci = &CardInfo{LineNo: c.LineNo, CardTextHash: c.Hash}
		}
		for len(ci.ItemIDs) < faces {
			it := s.CreateItem(ref, item.TypeCard, deck, data())
			ci.ItemIDs = append(ci.ItemIDs, it.ID)
			res.Created = append(res.Created, it.ID)
		}
		if len(ci.ItemIDs) > faces {
			res.Untracked = append(res.Untracked, s.untrackIDs(ci.ItemIDs[faces:])...)
			ci.ItemIDs = ci.ItemIDs[:faces]
		}
		for _, id := range ci.ItemIDs {
			if it, ok := s.items[id]; ok {
				it.UpdateDeckName(deck, true)
			}
		}
		next = append(next, ci)
	}
	for j, o := range old {
		if !claimed[j] {
			res.Untracked = append(res.Untracked, s.untrackIDs(o.ItemIDs)...)
		}
	}
	f.CardItems = next
	return res, nil
}

// CheckCards reports the ErrAmbiguousCard that SyncCards would return for
// path, without changing anything. An untracked path never conflicts.
func (s *Store) CheckCards(path string, cards []CardSource, opts SyncOptions) error {
	f, _, ok := s.File(path)
	if !ok {
		return nil
	}
	_, _, err := resolveCards(path, f.CardItems, cards, opts)
	return err
}

// resolveCards pairs every card with the index of the stored card it
// continues, or -1 for a new card.
func resolveCards(path string, old []*CardInfo, cards []CardSource, opts SyncOptions) (match []int, claimed []bool, err error) {
	claimed = make([]bool, len(old))
	match = make([]int, len(cards))
	for i := range match {
		match[i] = -1
	}

	// Pass 1: content hash.
	for i, c := range cards {
		if c.Hash == "" {
			continue
		}
		for j, o := range old {
			if !claimed[j] && o.CardTextHash == c.Hash {
				match[i], claimed[j] = j, true
				break
			}
		}
	}
	// Pass 2: line number fallback.
	for i, c := range cards {
		if match[i] >= 0 {
			continue
		}
		for j, o := range old {
			if !claimed[j] && o.LineNo == c.LineNo {
				match[i], claimed[j] = j, true
				break
			}
		}
	}

	var unmatchedLines []int
	for i, c := range cards {
		if match[i] < 0 {
			unmatchedLines = append(unmatchedLines, c.LineNo)
		}
	}
	leftover := 0
	for _, cl := range claimed {
		if !cl {
			leftover++
		}
	}
	if len(unmatchedLines) > 0 && leftover > 0 && !opts.TreatUnmatchedAsNew {
		return nil, nil, fmt.Errorf("%w: %s: cards at lines %v match neither hash nor line of %d stored card(s)",
			apperr.ErrAmbiguousCard, path, unmatchedLines, leftover)
	}
	return match, claimed, nil
}

func (s *Store) untrackIDs(ids []int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if it, ok := s.items[id]; ok {
			it.SetUntracked()
			out = append(out, id)
		}
	}
	return out
}
