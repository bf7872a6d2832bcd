// Package models defines the DTOs shared by the vault adapters and the outer
// surfaces.
package models

import (
	"time"

	"github.com/starford/ansuz/internal/item"
)

// Document is a lightweight view of a vault file returned by list operations.
type Document struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemView is the outward representation of a repetition item.
type ItemView struct {
	ID            int          `json:"id"`
	Type          item.Type    `json:"type"`
	Deck          string       `json:"deck"`
	Path          string       `json:"path,omitempty"`
	Tracked       bool         `json:"tracked"`
	NextReview    *time.Time   `json:"next_review,omitempty"`
	TimesReviewed int          `json:"times_reviewed"`
	TimesCorrect  int          `json:"times_correct"`
	ErrorStreak   int          `json:"error_streak"`
	Algorithm     item.Kind    `json:"algorithm"`
	Data          item.Payload `json:"data"`
}

// DeckSummary counts the queued work of one deck.
type DeckSummary struct {
	Name string `json:"name"`
	New  int    `json:"new"`
	Due  int    `json:"due"`
}

// OptionPreview is the interval one response option would schedule.
type OptionPreview struct {
	Option string  `json:"option"`
	Days   float64 `json:"days"`
}

// NextItem is the answer to "what should I review now". Prompt and Answer
// are filled from the source document when it can be read.
type NextItem struct {
	Item    ItemView        `json:"item"`
	Title   string          `json:"title,omitempty"`
	Prompt  string          `json:"prompt,omitempty"`
	Answer  string          `json:"answer,omitempty"`
	Options []OptionPreview `json:"options"`
	Repeat  bool            `json:"repeat"`
}
