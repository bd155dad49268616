// Package entities holds the report draft model shared by every other package:
// the draft aggregate, its doctor/patient sections, prescription lines, the
// built-in sample draft and the medication catalog.
package entities

import "slices"

// Sex is the patient's sex as entered in the form. Values outside the known
// set are stored as given.
type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
	SexOther  Sex = "Other"
)

// Doctor identifies the practitioner issuing the report
type Doctor struct {
	Name               string `json:"name"`
	Qualification      string `json:"qualification"`
	Hospital           string `json:"hospital"`
	RegistrationNumber string `json:"regNo"`
	Phone              string `json:"phone"`
	Email              string `json:"email"`
	LogoData           string `json:"logo"` // data URI, empty when no logo was uploaded
}

// Patient holds the patient summary block
type Patient struct {
	Name          string `json:"name"`
	Age           string `json:"age"`
	Sex           Sex    `json:"sex"`
	Weight        string `json:"weight"`
	Address       string `json:"address"`
	Date          string `json:"date"` // calendar date, YYYY-MM-DD
	PatientID     string `json:"patientId"`
	KnownDiabetic bool   `json:"knownDiabetic"`
}

// PrescriptionLine is one medication entry of the prescription list
type PrescriptionLine struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Dose      string `json:"dose"`
	Frequency string `json:"freq"`
	Duration  string `json:"duration"`
}

// Draft is the complete state of one report being edited.
//
// A Draft is treated as a value: mutations build a new Draft and never write
// through the Prescriptions slice of an existing one, so snapshots handed out
// earlier stay valid.
type Draft struct {
	Doctor        Doctor             `json:"doctor"`
	Patient       Patient            `json:"patient"`
	FreeTextRx    string             `json:"rx"`
	Diagnosis     string             `json:"diagnosis"`
	Prescriptions []PrescriptionLine `json:"prescriptions"`
	SignatureText string             `json:"signature"`
}

// Clone returns a copy of d that shares no mutable memory with it
func (d Draft) Clone() Draft {
	c := d
	c.Prescriptions = slices.Clone(d.Prescriptions)
	if c.Prescriptions == nil {
		c.Prescriptions = []PrescriptionLine{}
	}
	return c
}

// Equal reports whether two drafts hold the same content
func (d Draft) Equal(o Draft) bool {
	return d.Doctor == o.Doctor &&
		d.Patient == o.Patient &&
		d.FreeTextRx == o.FreeTextRx &&
		d.Diagnosis == o.Diagnosis &&
		d.SignatureText == o.SignatureText &&
		slices.Equal(d.Prescriptions, o.Prescriptions)
}

// LineIndex returns the position of the line with the given id, or -1
func (d Draft) LineIndex(id int) int {
	return slices.IndexFunc(d.Prescriptions, func(p PrescriptionLine) bool {
		return p.ID == id
	})
}

// MaxLineID returns the highest prescription id, 0 for an empty list
func (d Draft) MaxLineID() int {
	highest := 0
	for _, p := range d.Prescriptions {
		highest = max(highest, p.ID)
	}
	return highest
}
