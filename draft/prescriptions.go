package draft

import (
	"fmt"
	"slices"

	"github.com/giygas/medreport/entities"
)

// AddPrescription appends an empty line and returns its id
func (s *Store) AddPrescription() int {
	return s.appendLine(entities.PrescriptionLine{})
}

// AddFromCatalog appends a line pre-filled with a catalog medication and the
// quick-add defaults. An empty name is the "select medication" placeholder
// and adds nothing (id 0).
func (s *Store) AddFromCatalog(name string) (int, error) {
	if name == "" {
		return 0, nil
	}
	if !s.catalog.Contains(name) {
		return 0, fmt.Errorf("%w: %q", ErrNotInCatalog, name)
	}

	return s.appendLine(entities.PrescriptionLine{
		Name:      name,
		Dose:      entities.CatalogDose,
		Frequency: entities.CatalogFrequency,
		Duration:  entities.CatalogDuration,
	}), nil
}

func (s *Store) appendLine(line entities.PrescriptionLine) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Snapshot()
	line.ID = s.ids.Next(next.Prescriptions)

	// Always copy: the previous snapshot keeps its own backing array
	lines := make([]entities.PrescriptionLine, 0, len(next.Prescriptions)+1)
	lines = append(lines, next.Prescriptions...)
	next.Prescriptions = append(lines, line)

	s.commit(next, ChangeEdit)
	return line.ID
}

// UpdatePrescription replaces one field of the line with the given id.
// A missing id is a no-op.
func (s *Store) UpdatePrescription(id int, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Snapshot()
	idx := next.LineIndex(id)

	var line entities.PrescriptionLine
	if idx >= 0 {
		line = next.Prescriptions[idx]
	}
	switch field {
	case "name":
		line.Name = value
	case "dose":
		line.Dose = value
	case "freq":
		line.Frequency = value
	case "duration":
		line.Duration = value
	default:
		return fmt.Errorf("%w: prescription.%s", ErrUnknownField, field)
	}
	if idx < 0 {
		return nil
	}

	next.Prescriptions = slices.Clone(next.Prescriptions)
	next.Prescriptions[idx] = line
	s.commit(next, ChangeEdit)
	return nil
}

// RemovePrescription deletes the line with the given id and reports whether it existed
func (s *Store) RemovePrescription(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Snapshot()
	idx := next.LineIndex(id)
	if idx < 0 {
		return false
	}

	lines := make([]entities.PrescriptionLine, 0, len(next.Prescriptions)-1)
	lines = append(lines, next.Prescriptions[:idx]...)
	next.Prescriptions = append(lines, next.Prescriptions[idx+1:]...)

	s.commit(next, ChangeEdit)
	return true
}
