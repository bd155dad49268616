package entities

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrIncompatibleDraft is returned when a stored value does not have the shape of a Draft
var ErrIncompatibleDraft = errors.New("stored value is not a compatible draft")

// DecodeDraft parses a serialized draft. The value must be a JSON object with
// a doctor object, a patient object and a prescriptions array, must decode
// into the draft types, and must not repeat a prescription id.
func DecodeDraft(data []byte) (Draft, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrIncompatibleDraft, err)
	}

	required := map[string]byte{"doctor": '{', "patient": '{', "prescriptions": '['}
	for key, opening := range required {
		raw, ok := shape[key]
		raw = bytes.TrimSpace(raw)
		if !ok || len(raw) == 0 || raw[0] != opening {
			return Draft{}, fmt.Errorf("%w: missing or malformed %q", ErrIncompatibleDraft, key)
		}
	}

	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrIncompatibleDraft, err)
	}

	seen := make(map[int]struct{}, len(d.Prescriptions))
	for _, p := range d.Prescriptions {
		if _, dup := seen[p.ID]; dup {
			return Draft{}, fmt.Errorf("%w: duplicate prescription id %d", ErrIncompatibleDraft, p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	return d, nil
}

// EncodeDraft serializes d in the storage format
func EncodeDraft(d Draft) ([]byte, error) {
	if d.Prescriptions == nil {
		d.Prescriptions = []PrescriptionLine{}
	}
	return json.Marshal(d)
}
