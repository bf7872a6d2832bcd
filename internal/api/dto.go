package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/models"
)

// ReviewRequest is the request body for answering an item.
type ReviewRequest struct {
	Option string `json:"option" example:"Good" validate:"required"`
}

func (r ReviewRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Option, validation.Required),
	)
}

// SwitchRequest is the request body for changing the active algorithm.
type SwitchRequest struct {
	To item.Kind `json:"to" example:"fsrs" validate:"required"`
}

func (r SwitchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.To, validation.Required, validation.By(func(any) error {
			if !r.To.Valid() {
				return validation.NewError("validation_kind", "unknown algorithm")
			}
			return nil
		})),
	)
}

// ScheduleRequest carries exported schedule tuples to apply.
type ScheduleRequest struct {
	Tuples []item.SchedTuple `json:"tuples" validate:"required"`
}

func (r ScheduleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Tuples, validation.Required, validation.Each(validation.By(validTuple))),
	)
}

// validTuple accepts a due given as epoch millis or as a YYYY-MM-DD date.
func validTuple(v any) error {
	t, _ := v.(item.SchedTuple)
	if t.NumDue() {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, t.Due); err != nil {
		return validation.NewError("validation_due", "due must be epoch millis or YYYY-MM-DD")
	}
	return nil
}

// ScheduleResponse wraps exported schedule tuples.
type ScheduleResponse struct {
	Tuples []item.SchedTuple `json:"tuples" validate:"required"`
}

// ApplyResponse reports how many tuples were applied.
type ApplyResponse struct {
	Applied int `json:"applied" example:"12" validate:"required"`
}

// NextResponse is the answer of GET /queue/next. Done is set when nothing
// is left to review today.
type NextResponse struct {
	Done bool             `json:"done"`
	Next *models.NextItem `json:"next,omitempty"`
}

// DecksResponse wraps the per-deck counts.
type DecksResponse struct {
	Decks []models.DeckSummary `json:"decks" validate:"required"`
}

// PreviewResponse lists the interval of every response option.
type PreviewResponse struct {
	Options []models.OptionPreview `json:"options" validate:"required"`
}

// AlgorithmResponse describes the active algorithm.
type AlgorithmResponse struct {
	Active  item.Kind `json:"active" example:"fsrs" validate:"required"`
	Options []string  `json:"options" validate:"required"`
}
