// Package draft provides the form state store: the single mutable holder of a
// report draft, its field and prescription-list mutations, and the
// subscriptions through which the autosave bridge observes changes.
package draft

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/giygas/medreport/entities"
)

// Sections addressable through UpdateField
const (
	SectionDoctor  = "doctor"
	SectionPatient = "patient"
)

var (
	// ErrUnknownField is returned when a section, field or line field does not exist
	ErrUnknownField = errors.New("unknown draft field")
	// ErrNotInCatalog is returned when a quick-add name is not part of the catalog
	ErrNotInCatalog = errors.New("medication is not in the catalog")
)

// ChangeKind tells subscribers why the draft changed
type ChangeKind int

const (
	// ChangeEdit is a user edit: a field, text or prescription list mutation
	ChangeEdit ChangeKind = iota
	// ChangeRestore replaces the draft with a value loaded from durable storage
	ChangeRestore
	// ChangeReset puts the defaults back
	ChangeReset
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeEdit:
		return "edit"
	case ChangeRestore:
		return "restore"
	case ChangeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Change is delivered to subscribers after every effective mutation
type Change struct {
	Kind  ChangeKind
	Draft entities.Draft
}

// Config is the explicit construction input of a Store
type Config struct {
	Defaults entities.Draft   // draft used at start and on reset
	Catalog  entities.Catalog // names accepted by AddFromCatalog
	IDPolicy IDPolicy         // nil means MaxPlusOne
}

// Store holds the current draft. Reads are lock-free through an atomic
// pointer; writers are serialized and notify subscribers in mutation order.
// Subscribers run while the write lock is held and must not mutate the store.
type Store struct {
	current  atomic.Pointer[entities.Draft]
	mu       sync.Mutex
	defaults entities.Draft
	catalog  entities.Catalog
	ids      IDPolicy
	subs     map[uint64]func(Change)
	nextSub  uint64
}

// NewStore creates a store holding a copy of cfg.Defaults
func NewStore(cfg Config) *Store {
	s := &Store{
		defaults: cfg.Defaults.Clone(),
		catalog:  cfg.Catalog,
		ids:      cfg.IDPolicy,
		subs:     make(map[uint64]func(Change)),
	}
	if s.ids == nil {
		s.ids = MaxPlusOne{}
	}
	initial := s.defaults.Clone()
	s.current.Store(&initial)
	s.ids.Observe(initial)
	return s
}

// Snapshot returns the current draft. The returned value must not be mutated
// through its Prescriptions slice; use Clone for a private copy.
func (s *Store) Snapshot() entities.Draft {
	return *s.current.Load()
}

// Defaults returns a copy of the draft the store resets to
func (s *Store) Defaults() entities.Draft {
	return s.defaults.Clone()
}

// Catalog returns the quick-add medication catalog
func (s *Store) Catalog() entities.Catalog {
	return s.catalog
}

// UpdateField replaces one leaf field of the doctor or patient section.
// Values are stored as given, except knownDiabetic which is parsed as a boolean.
func (s *Store) UpdateField(section, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Snapshot()
	switch section {
	case SectionDoctor:
		doctor, err := setDoctorField(next.Doctor, field, value)
		if err != nil {
			return err
		}
		next.Doctor = doctor
	case SectionPatient:
		patient, err := setPatientField(next.Patient, field, value)
		if err != nil {
			return err
		}
		next.Patient = patient
	default:
		return fmt.Errorf("%w: section %q", ErrUnknownField, section)
	}

	s.commit(next, ChangeEdit)
	return nil
}

// SetFreeTextRx replaces the free-text prescription body
func (s *Store) SetFreeTextRx(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Snapshot()
	next.FreeTextRx = value
	s.commit(next, ChangeEdit)
}

// SetDiagnosis replaces the diagnosis text
func (s *Store) SetDiagnosis(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Snapshot()
	next.Diagnosis = value
	s.commit(next, ChangeEdit)
}

// SetSignatureText replaces the text shown when no signature image is present
func (s *Store) SetSignatureText(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Snapshot()
	next.SignatureText = value
	s.commit(next, ChangeEdit)
}

// Replace swaps in a draft loaded from durable storage
func (s *Store) Replace(d entities.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := d.Clone()
	s.ids.Observe(next)
	s.commit(next, ChangeRestore)
}

// Reset puts the default draft back
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.defaults.Clone()
	s.ids.Reset(next)
	s.commit(next, ChangeReset)
}

// commit publishes next and notifies subscribers (caller must hold mu)
func (s *Store) commit(next entities.Draft, kind ChangeKind) {
	s.current.Store(&next)
	for _, id := range s.sortedSubIDs() {
		s.subs[id](Change{Kind: kind, Draft: next})
	}
}

func setDoctorField(d entities.Doctor, field, value string) (entities.Doctor, error) {
	switch field {
	case "name":
		d.Name = value
	case "qualification":
		d.Qualification = value
	case "hospital":
		d.Hospital = value
	case "regNo":
		d.RegistrationNumber = value
	case "phone":
		d.Phone = value
	case "email":
		d.Email = value
	case "logo":
		d.LogoData = value
	default:
		return d, fmt.Errorf("%w: doctor.%s", ErrUnknownField, field)
	}
	return d, nil
}

func setPatientField(p entities.Patient, field, value string) (entities.Patient, error) {
	switch field {
	case "name":
		p.Name = value
	case "age":
		p.Age = value
	case "sex":
		p.Sex = entities.Sex(value)
	case "weight":
		p.Weight = value
	case "address":
		p.Address = value
	case "date":
		p.Date = value
	case "patientId":
		p.PatientID = value
	case "knownDiabetic":
		p.KnownDiabetic = parseCheckbox(value)
	default:
		return p, fmt.Errorf("%w: patient.%s", ErrUnknownField, field)
	}
	return p, nil
}

// parseCheckbox reads an HTML checkbox or JSON boolean value; anything unrecognized is false
func parseCheckbox(value string) bool {
	v := strings.TrimSpace(strings.ToLower(value))
	if v == "on" || v == "yes" {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
