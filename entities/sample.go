package entities

import "time"

// DateLayout is the calendar date format used by Patient.Date
const DateLayout = "2006-01-02"

// SampleDraft returns the built-in demo draft, dated on the day of now.
// It is the draft a profile starts with when nothing was saved before, and
// the draft restored by an explicit reset.
func SampleDraft(now time.Time) Draft {
	return Draft{
		Doctor: Doctor{
			Name:               "Dr. Sourav Mondal (SAMPLE)",
			Qualification:      "Orthopaedic Surgeon, MBBS, MS(Ortho)",
			Hospital:           "Demo Hospital — SAMPLE DATA ONLY",
			RegistrationNumber: "Reg. No. 73997",
			Phone:              "+91-XXXXXXXXXX",
			Email:              "demo@example.com",
		},
		Patient: Patient{
			Name:          "Sahirazam Begat (SAMPLE)",
			Age:           "41",
			Sex:           SexMale,
			Weight:        "70 kg",
			Address:       "123 Sample Road, Demo City, State - 000000",
			Date:          now.UTC().Format(DateLayout),
			PatientID:     "P12345",
			KnownDiabetic: true,
		},
		FreeTextRx: "Tab. Zerodol-SP\nTab. Pantop-D\nCap. Lyser\n\nAdvice:\n• Rest and ice application\n• Avoid strenuous activities\n• Follow up after 7 days",
		Diagnosis:  "Trigger thumb - sample diagnosis only",
		Prescriptions: []PrescriptionLine{
			{ID: 1, Name: "Tab. Zerodol-SP", Dose: "1", Frequency: "BID", Duration: "7 days"},
			{ID: 2, Name: "Tab. Pantop-D", Dose: "1", Frequency: "OD", Duration: "7 days"},
			{ID: 3, Name: "Cap. Lyser", Dose: "1", Frequency: "TID", Duration: "5 days"},
		},
		SignatureText: "Dr. Sourav Mondal",
	}
}
