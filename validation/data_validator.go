// Package validation provides the preview validation gate for report drafts
// and the input checks applied to form and API requests.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/giygas/medreport/entities"
	"github.com/giygas/medreport/interfaces"
)

// Field keys of the validation errors
const (
	KeyPatientName   = "patientName"
	KeyDate          = "date"
	KeyPrescriptions = "prescriptions"
)

// Errors maps a field key to a human-readable message
type Errors map[string]string

// Validate returns the required-field errors of d. It reads nothing but d and
// always builds a fresh map, so results of earlier passes are never merged in.
func Validate(d entities.Draft) Errors {
	errs := Errors{}
	if strings.TrimSpace(d.Patient.Name) == "" {
		errs[KeyPatientName] = "Patient name is required"
	}
	if d.Patient.Date == "" {
		errs[KeyDate] = "Date is required"
	}
	if len(d.Prescriptions) == 0 {
		errs[KeyPrescriptions] = "At least one prescription is required"
	}
	return errs
}

// Input size limits, in characters
const (
	maxShortField = 500
	maxLongField  = 20000
	maxLineID     = 1_000_000
)

// longFields may hold multi-line text
var longFields = map[string]bool{
	"rx":        true,
	"diagnosis": true,
	"address":   true,
}

var (
	ErrEmptyInput    = errors.New("input cannot be empty")
	ErrInvalidLineID = errors.New("invalid prescription id")
)

// Compile-time check to ensure DraftValidator implements DraftValidator interface
var _ interfaces.DraftValidator = (*DraftValidator)(nil)

// DraftValidator implements interfaces.DraftValidator
type DraftValidator struct{}

// NewDraftValidator creates a new draft validator
func NewDraftValidator() interfaces.DraftValidator {
	return &DraftValidator{}
}

// Validate implements the preview gate
func (v *DraftValidator) Validate(d entities.Draft) map[string]string {
	return Validate(d)
}

// ValidateSection checks the section of a field update
func (v *DraftValidator) ValidateSection(section string) error {
	switch section {
	case "doctor", "patient":
		return nil
	case "":
		return fmt.Errorf("section: %w", ErrEmptyInput)
	default:
		return fmt.Errorf("section must be doctor or patient, got: %s", section)
	}
}

// ValidateLineID parses a prescription id coming from a URL or form.
// No regex used - strconv.Atoi() validates numeric format for free
func (v *DraftValidator) ValidateLineID(input string) (int, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return -1, fmt.Errorf("id: %w", ErrEmptyInput)
	}

	// Reject if original input contained whitespace
	if len(trimmed) != len(input) {
		return -1, fmt.Errorf("%w: only numeric characters are allowed", ErrInvalidLineID)
	}

	id, err := strconv.Atoi(trimmed)
	if err != nil {
		return -1, fmt.Errorf("%w: only numeric characters are allowed", ErrInvalidLineID)
	}
	if id < 1 || id > maxLineID {
		return -1, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidLineID, maxLineID)
	}

	return id, nil
}

// ValidateTextInput bounds the length of a free-text value. Values may be
// empty: required fields are only enforced by the preview gate.
func (v *DraftValidator) ValidateTextInput(field, value string) error {
	if !utf8.ValidString(value) {
		return fmt.Errorf("%s contains invalid UTF-8", field)
	}

	limit := maxShortField
	if longFields[field] {
		limit = maxLongField
	}
	if n := utf8.RuneCountInString(value); n > limit {
		return fmt.Errorf("%s too long: maximum %d characters, got %d", field, limit, n)
	}

	return nil
}
