package draft

import "github.com/giygas/medreport/entities"

// IDPolicy assigns ids to new prescription lines. Next is called with the
// list the new line will be appended to.
type IDPolicy interface {
	Next(lines []entities.PrescriptionLine) int
	// Observe is told about drafts installed from outside (initial, restored)
	Observe(d entities.Draft)
	// Reset is told about the draft installed by a reset
	Reset(d entities.Draft)
}

// MaxPlusOne assigns max(existing ids, 0) + 1. An id freed by removing the
// highest line is handed out again by the next add.
type MaxPlusOne struct{}

func (MaxPlusOne) Next(lines []entities.PrescriptionLine) int {
	return entities.Draft{Prescriptions: lines}.MaxLineID() + 1
}

func (MaxPlusOne) Observe(entities.Draft) {}

func (MaxPlusOne) Reset(entities.Draft) {}

// Monotonic never hands out an id twice during a session: it keeps a
// high-water mark raised by every observed draft and every assignment.
// Access is serialized by the Store's write lock.
type Monotonic struct {
	highest int
}

func (m *Monotonic) Next(lines []entities.PrescriptionLine) int {
	m.highest = max(m.highest, entities.Draft{Prescriptions: lines}.MaxLineID()) + 1
	return m.highest
}

func (m *Monotonic) Observe(d entities.Draft) {
	m.highest = max(m.highest, d.MaxLineID())
}

// Reset keeps the high-water mark so ids used before the reset stay retired
func (m *Monotonic) Reset(d entities.Draft) {
	m.Observe(d)
}

// PolicyByName maps the ID_POLICY setting to a policy
func PolicyByName(name string) IDPolicy {
	if name == "monotonic" {
		return &Monotonic{}
	}
	return MaxPlusOne{}
}
