// Package clock abstracts delayed callbacks so debounce logic can be driven
// by a manual clock in tests. Production time comes from clockwork.
package clock

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a pending callback
type Timer interface {
	// Stop cancels the callback and reports whether it was still pending
	Stop() bool
}

// Clock schedules callbacks
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Wall returns the wall clock
func Wall() Clock { return Wrap(clockwork.NewRealClock()) }

// Wrap adapts a clockwork clock, real or fake
func Wrap(c clockwork.Clock) Clock { return clockworkClock{c} }

type clockworkClock struct{ c clockwork.Clock }

func (w clockworkClock) Now() time.Time { return w.c.Now() }

func (w clockworkClock) AfterFunc(d time.Duration, f func()) Timer { return w.c.AfterFunc(d, f) }

// Manual is a clock that only moves when Advance is called. Callbacks run
// synchronously inside Advance, in deadline order, and may schedule new
// timers; those fire in the same Advance when they come due. A clockwork
// FakeClock starts each callback in its own goroutine, so Advance returns
// before a debounced write has happened.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
	seq    int
}

type manualTimer struct {
	clock    *Manual
	deadline time.Time
	seq      int
	fn       func()
	stopped  bool
	fired    bool
}

// NewManual returns a manual clock set to start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{clock: m, deadline: m.now.Add(d), seq: m.seq, fn: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

// Advance moves the clock forward by d, firing every timer that comes due
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

// nextDue pops the earliest live timer due at or before target and moves the clock to it
func (m *Manual) nextDue(target time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live

	sort.Slice(m.timers, func(i, j int) bool {
		if m.timers[i].deadline.Equal(m.timers[j].deadline) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].deadline.Before(m.timers[j].deadline)
	})

	if len(m.timers) == 0 || m.timers[0].deadline.After(target) {
		return nil
	}
	t := m.timers[0]
	t.fired = true
	m.now = t.deadline
	return t
}

// Pending returns the number of timers that have not fired or been stopped
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
