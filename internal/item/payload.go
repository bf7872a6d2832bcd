package item

import (
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// Kind names a scheduling algorithm and the payload shape it owns.
type Kind string

const (
	KindDefault Kind = "default"
	KindSM2     Kind = "sm2"
	KindAnki    Kind = "anki"
	KindFSRS    Kind = "fsrs"
)

// Kinds lists every known kind in a stable order.
var Kinds = []Kind{KindDefault, KindSM2, KindAnki, KindFSRS}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDefault, KindSM2, KindAnki, KindFSRS:
		return true
	}
	return false
}

// Legacy reports whether k uses an ease/interval payload.
func (k Kind) Legacy() bool {
	return k == KindDefault || k == KindSM2 || k == KindAnki
}

// DefaultData is the payload of the default algorithm. Ease is stored as an
// integer percentage (250 = 2.5x).
type DefaultData struct {
	Ease         int     `json:"ease"`
	LastInterval float64 `json:"last_interval"`
}

// SM2Data is the SuperMemo-2 payload.
type SM2Data struct {
	Ease         float64 `json:"ease"`
	LastInterval float64 `json:"last_interval"`
	Iteration    int     `json:"iteration"`
}

// AnkiData is the Anki-style payload.
type AnkiData struct {
	Ease         float64 `json:"ease"`
	LastInterval float64 `json:"last_interval"`
	Iteration    int     `json:"iteration"`
}

// FSRSData mirrors the FSRS card memory state.
type FSRSData struct {
	Due           time.Time `json:"due"`
	LastReview    time.Time `json:"last_review"`
	Stability     float64   `json:"stability"`
	Difficulty    float64   `json:"difficulty"`
	ElapsedDays   uint64    `json:"elapsed_days"`
	ScheduledDays uint64    `json:"scheduled_days"`
	Reps          uint64    `json:"reps"`
	Lapses        uint64    `json:"lapses"`
	State         int       `json:"state"`
}

// Payload is a closed tagged union: exactly the variant named by Kind is set.
type Payload struct {
	Kind    Kind         `json:"kind"`
	Default *DefaultData `json:"default,omitempty"`
	SM2     *SM2Data     `json:"sm2,omitempty"`
	Anki    *AnkiData    `json:"anki,omitempty"`
	FSRS    *FSRSData    `json:"fsrs,omitempty"`
}

// NewDefaultPayload wraps d.
func NewDefaultPayload(d DefaultData) Payload { return Payload{Kind: KindDefault, Default: &d} }

// NewSM2Payload wraps d.
func NewSM2Payload(d SM2Data) Payload { return Payload{Kind: KindSM2, SM2: &d} }

// NewAnkiPayload wraps d.
func NewAnkiPayload(d AnkiData) Payload { return Payload{Kind: KindAnki, Anki: &d} }

// NewFSRSPayload wraps d.
func NewFSRSPayload(d FSRSData) Payload { return Payload{Kind: KindFSRS, FSRS: &d} }

// Clone deep-copies the payload.
func (p Payload) Clone() Payload {
	c := Payload{Kind: p.Kind}
	if p.Default != nil {
		d := *p.Default
		c.Default = &d
	}
	if p.SM2 != nil {
		d := *p.SM2
		c.SM2 = &d
	}
	if p.Anki != nil {
		d := *p.Anki
		c.Anki = &d
	}
	if p.FSRS != nil {
		d := *p.FSRS
		c.FSRS = &d
	}
	return c
}

func (p Payload) variants() int {
	n := 0
	if p.Default != nil {
		n++
	}
	if p.SM2 != nil {
		n++
	}
	if p.Anki != nil {
		n++
	}
	if p.FSRS != nil {
		n++
	}
	return n
}

// Check verifies that exactly the variant named by Kind is populated.
func (p Payload) Check() error {
	ok := p.variants() == 1
	switch p.Kind {
	case KindDefault:
		ok = ok && p.Default != nil
	case KindSM2:
		ok = ok && p.SM2 != nil
	case KindAnki:
		ok = ok && p.Anki != nil
	case KindFSRS:
		ok = ok && p.FSRS != nil
	default:
		ok = false
	}
	if !ok {
		return fmt.Errorf("%w: payload shape does not match kind %q", apperr.ErrConsistency, p.Kind)
	}
	return nil
}

// HasLegacyFields reports whether any ease/interval variant is populated.
func (p Payload) HasLegacyFields() bool {
	return p.Default != nil || p.SM2 != nil || p.Anki != nil
}

// HasFSRSFields reports whether the FSRS variant is populated.
func (p Payload) HasFSRSFields() bool {
	return p.FSRS != nil
}

// Interval returns the last scheduled interval in days.
func (p Payload) Interval() float64 {
	switch p.Kind {
	case KindDefault:
		if p.Default != nil {
			return p.Default.LastInterval
		}
	case KindSM2:
		if p.SM2 != nil {
			return p.SM2.LastInterval
		}
	case KindAnki:
		if p.Anki != nil {
			return p.Anki.LastInterval
		}
	case KindFSRS:
		if p.FSRS != nil {
			return float64(p.FSRS.ScheduledDays)
		}
	}
	return 0
}

// Ease returns the ease in the payload's own representation (percent for
// the default algorithm, multiplier otherwise). FSRS payloads have no ease.
func (p Payload) Ease() float64 {
	switch p.Kind {
	case KindDefault:
		if p.Default != nil {
			return float64(p.Default.Ease)
		}
	case KindSM2:
		if p.SM2 != nil {
			return p.SM2.Ease
		}
	case KindAnki:
		if p.Anki != nil {
			return p.Anki.Ease
		}
	}
	return 0
}
