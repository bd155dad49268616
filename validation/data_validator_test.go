package validation

import (
	"errors"
	"maps"
	"strings"
	"testing"
	"time"

	"github.com/giygas/medreport/entities"
)

func validDraft() entities.Draft {
	return entities.SampleDraft(time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC))
}

func TestValidateValidDraft(t *testing.T) {
	errs := Validate(validDraft())
	if errs == nil {
		t.Fatal("Expected an empty map, got nil")
	}
	if len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}
}

func TestValidateAllRulesFail(t *testing.T) {
	d := validDraft()
	d.Patient.Name = ""
	d.Patient.Date = ""
	d.Prescriptions = nil

	errs := Validate(d)
	expected := Errors{
		KeyPatientName:   "Patient name is required",
		KeyDate:          "Date is required",
		KeyPrescriptions: "At least one prescription is required",
	}
	if !maps.Equal(errs, expected) {
		t.Errorf("Expected %v, got %v", expected, errs)
	}
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(d *entities.Draft)
		expected []string
	}{
		{"whitespace-only name", func(d *entities.Draft) { d.Patient.Name = " \t\n" }, []string{KeyPatientName}},
		{"missing date", func(d *entities.Draft) { d.Patient.Date = "" }, []string{KeyDate}},
		{"empty prescription list", func(d *entities.Draft) { d.Prescriptions = []entities.PrescriptionLine{} }, []string{KeyPrescriptions}},
		{"optional doctor fields", func(d *entities.Draft) { d.Doctor = entities.Doctor{} }, nil},
		{"optional texts", func(d *entities.Draft) { d.FreeTextRx, d.Diagnosis, d.SignatureText = "", "", "" }, nil},
		{"blank prescription line still counts", func(d *entities.Draft) { d.Prescriptions = []entities.PrescriptionLine{{ID: 1}} }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)
			errs := Validate(d)
			if len(errs) != len(tt.expected) {
				t.Fatalf("Expected keys %v, got %v", tt.expected, errs)
			}
			for _, key := range tt.expected {
				if _, ok := errs[key]; !ok {
					t.Errorf("Expected key %s, got %v", key, errs)
				}
			}
		})
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	d := validDraft()
	d.Patient.Name = ""

	first := Validate(d)
	for i := 0; i < 10; i++ {
		if !maps.Equal(first, Validate(d)) {
			t.Fatal("Validate returned different results for the same draft")
		}
	}

	// Mutating a previous result must not leak into the next pass
	first["stale"] = "x"
	if _, ok := Validate(d)["stale"]; ok {
		t.Error("Stale error leaked into a new validation pass")
	}
}

func TestDraftValidatorSection(t *testing.T) {
	v := NewDraftValidator()

	for _, ok := range []string{"doctor", "patient"} {
		if err := v.ValidateSection(ok); err != nil {
			t.Errorf("Expected %s to be valid, got %v", ok, err)
		}
	}
	if err := v.ValidateSection(""); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
	if err := v.ValidateSection("prescriptions"); err == nil {
		t.Error("Expected error for unknown section")
	}
}

func TestDraftValidatorLineID(t *testing.T) {
	v := NewDraftValidator()

	tests := []struct {
		input    string
		expected int
		wantErr  bool
	}{
		{"1", 1, false},
		{"42", 42, false},
		{"", -1, true},
		{" 4", -1, true},
		{"abc", -1, true},
		{"0", -1, true},
		{"-3", -1, true},
		{"99999999", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, err := v.ValidateLineID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateLineID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if id != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, id)
			}
		})
	}
}

func TestDraftValidatorTextInput(t *testing.T) {
	v := NewDraftValidator()

	if err := v.ValidateTextInput("name", ""); err != nil {
		t.Errorf("Expected empty value to pass, got %v", err)
	}
	if err := v.ValidateTextInput("name", strings.Repeat("a", 501)); err == nil {
		t.Error("Expected long short-field value to fail")
	}
	if err := v.ValidateTextInput("rx", strings.Repeat("a", 5000)); err != nil {
		t.Errorf("Expected long rx to pass, got %v", err)
	}
	if err := v.ValidateTextInput("rx", strings.Repeat("é", 20001)); err == nil {
		t.Error("Expected rx over the limit to fail")
	}
	if err := v.ValidateTextInput("name", string([]byte{0xff, 0xfe})); err == nil {
		t.Error("Expected invalid UTF-8 to fail")
	}
}
