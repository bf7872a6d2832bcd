package queue

// Class is a presentation class of queued items.
type Class int

const (
	ClassDue Class = iota
	ClassNew
)

func (c Class) String() string {
	if c == ClassNew {
		return "new"
	}
	return "due"
}

// Mixer interleaves due and new items in runs. A zero run length for one
// class presents only the other class while it has items left. Peek picks a
// class; only Advance, called once the item is answered, uses up the run.
type Mixer struct {
	DueRun int
	NewRun int

	cur   Class
	count int
}

// NewMixer returns a mixer starting with a due run.
func NewMixer(dueRun, newRun int) *Mixer {
	return &Mixer{DueRun: dueRun, NewRun: newRun}
}

// Peek picks the class to present given the remaining items of each.
func (m *Mixer) Peek(dueLeft, newLeft int) (Class, bool) {
	switch {
	case dueLeft == 0 && newLeft == 0:
		return ClassDue, false
	case dueLeft == 0:
		return ClassNew, true
	case newLeft == 0:
		return ClassDue, true
	case m.DueRun == 0 && m.NewRun != 0:
		return ClassNew, true
	case m.NewRun == 0:
		return ClassDue, true
	}
	// Flip only once the current run is used up; both classes have items here.
	if m.count >= m.run(m.cur) {
		return m.other(), true
	}
	return m.cur, true
}

// Advance counts one answered item of class c.
func (m *Mixer) Advance(c Class) {
	if c != m.cur {
		m.cur = c
		m.count = 0
	}
	m.count++
}

func (m *Mixer) run(c Class) int {
	if c == ClassNew {
		return m.NewRun
	}
	return m.DueRun
}

func (m *Mixer) other() Class {
	if m.cur == ClassNew {
		return ClassDue
	}
	return ClassNew
}
