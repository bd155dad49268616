package preview

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/giygas/medreport/entities"
	"github.com/giygas/medreport/interfaces"
)

// CloseReason records how the preview was left
type CloseReason int

const (
	ReasonButton CloseReason = iota
	ReasonBackdrop
	ReasonEscape
	ReasonUnmount
)

func (r CloseReason) String() string {
	switch r {
	case ReasonButton:
		return "button"
	case ReasonBackdrop:
		return "backdrop"
	case ReasonEscape:
		return "escape"
	case ReasonUnmount:
		return "unmount"
	default:
		return fmt.Sprintf("CloseReason(%d)", int(r))
	}
}

// ParseCloseReason maps a form value to a reason; unknown values mean the close button
func ParseCloseReason(s string) CloseReason {
	switch s {
	case "backdrop":
		return ReasonBackdrop
	case "escape":
		return ReasonEscape
	case "unmount":
		return ReasonUnmount
	default:
		return ReasonButton
	}
}

// Acquisition is a resource held for as long as the preview is open, such
// as the page scroll lock or the focus trap
type Acquisition interface {
	Acquire() error
	Release()
}

// Flag is an Acquisition that flips a boolean in its owner's view state
type Flag struct {
	set func(bool)
}

// NewFlag returns an acquisition calling set(true) on acquire and set(false) on release
func NewFlag(set func(bool)) *Flag {
	return &Flag{set: set}
}

func (f *Flag) Acquire() error {
	f.set(true)
	return nil
}

func (f *Flag) Release() { f.set(false) }

// Session is one open preview. Every acquisition is released exactly once,
// whichever way the session ends.
type Session struct {
	openedAt time.Time
	draft    entities.Draft
	held     []Acquisition

	once   sync.Once
	mu     sync.Mutex
	closed bool
	reason CloseReason
}

// ErrBlocked is returned when validation stops the preview from opening
var ErrBlocked = errors.New("preview blocked by validation errors")

// Open validates d and, when it passes, acquires every acquisition in
// order. The session keeps a copy of d; later edits don't reach it. On
// validation errors nothing is acquired and the errors are returned with
// ErrBlocked.
func Open(d entities.Draft, v interfaces.DraftValidator, now time.Time, acqs ...Acquisition) (*Session, map[string]string, error) {
	errs := v.Validate(d)
	if len(errs) > 0 {
		return nil, errs, ErrBlocked
	}

	s := &Session{openedAt: now, draft: d.Clone()}
	for _, a := range acqs {
		if err := a.Acquire(); err != nil {
			s.releaseHeld()
			return nil, errs, fmt.Errorf("acquire preview resource: %w", err)
		}
		s.held = append(s.held, a)
	}
	return s, errs, nil
}

// Close ends the session. It reports false when the session was already closed.
func (s *Session) Close(reason CloseReason) bool {
	closedNow := false
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.reason = reason
		s.mu.Unlock()
		s.releaseHeld()
		closedNow = true
	})
	return closedNow
}

// BackdropClick closes the session as a click outside the dialog would
func (s *Session) BackdropClick() bool {
	return s.Close(ReasonBackdrop)
}

// HandleKey closes the session on Escape; other keys are ignored
func (s *Session) HandleKey(key string) bool {
	if key != "Escape" {
		return false
	}
	return s.Close(ReasonEscape)
}

// releaseHeld releases in reverse acquisition order
func (s *Session) releaseHeld() {
	for i := len(s.held) - 1; i >= 0; i-- {
		s.held[i].Release()
	}
	s.held = nil
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Reason returns how the session was closed; only meaningful once Closed
func (s *Session) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) OpenedAt() time.Time { return s.openedAt }

// Draft returns the snapshot that passed validation when the session opened
func (s *Session) Draft() entities.Draft { return s.draft.Clone() }
