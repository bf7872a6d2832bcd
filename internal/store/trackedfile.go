package store

import (
	"sort"
	"strings"
)

// FileSlotName is the item slot of the whole-document item.
const FileSlotName = "file"

// CardInfo maps one flashcard in a document to its face items.
type CardInfo struct {
	LineNo       int    `json:"line_no"`
	CardTextHash string `json:"hash,omitempty"`
	ItemIDs      []int  `json:"item_ids"`
}

func (c *CardInfo) clone() *CardInfo {
	cp := *c
	cp.ItemIDs = append([]int(nil), c.ItemIDs...)
	return &cp
}

// TrackedFile maps a source document to its review items.
// CardItems is nil for documents that carry no flashcards.
type TrackedFile struct {
	Path      string         `json:"path"`
	Items     map[string]int `json:"items"`
	Tags      []string       `json:"tags"`
	CardItems []*CardInfo    `json:"card_items"`
}

func newTrackedFile(path string, tags []string) *TrackedFile {
	return &TrackedFile{
		Path:  path,
		Items: map[string]int{FileSlotName: -1},
		Tags:  append([]string(nil), tags...),
	}
}

// IsCardBearing reports whether the document holds flashcards.
func (f *TrackedFile) IsCardBearing() bool {
	return f.CardItems != nil
}

// NoteItemID returns the whole-document item, or -1 when untracked.
func (f *TrackedFile) NoteItemID() int {
	id, ok := f.Items[FileSlotName]
	if !ok {
		return -1
	}
	return id
}

// LastTag returns the last tag that is not a type tag, or "".
func (f *TrackedFile) LastTag(typeTags map[string]struct{}) string {
	for i := len(f.Tags) - 1; i >= 0; i-- {
		t := strings.TrimPrefix(f.Tags[i], "#")
		if _, skip := typeTags[t]; skip || t == "" {
			continue
		}
		return t
	}
	return ""
}

// ItemIDs returns every live item the file references, note item first.
func (f *TrackedFile) ItemIDs() []int {
	var out []int
	if id := f.NoteItemID(); id >= 0 {
		out = append(out, id)
	}
	names := make([]string, 0, len(f.Items))
	for name := range f.Items {
		if name != FileSlotName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if id := f.Items[name]; id >= 0 {
			out = append(out, id)
		}
	}
	for _, c := range f.CardItems {
		out = append(out, c.ItemIDs...)
	}
	return out
}

// empty reports whether the file no longer references any item.
func (f *TrackedFile) empty() bool {
	return len(f.ItemIDs()) == 0
}

func (f *TrackedFile) clone() *TrackedFile {
	cp := &TrackedFile{
		Path:  f.Path,
		Items: make(map[string]int, len(f.Items)),
		Tags:  append([]string(nil), f.Tags...),
	}
	for k, v := range f.Items {
		cp.Items[k] = v
	}
	if f.CardItems != nil {
		cp.CardItems = make([]*CardInfo, len(f.CardItems))
		for i, c := range f.CardItems {
			cp.CardItems[i] = c.clone()
		}
	}
	return cp
}
