// Package submission is the report submission collaborator: a receipt-only
// endpoint that acknowledges draft payloads, and the client the form service
// uses to post them.
package submission

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/medreport/entities"
	"github.com/giygas/medreport/metrics"
)

const (
	RunPath    = "/"
	ReportPath = "/api/v1/gen/genreport"

	maxPayload = 8 << 20
)

// Payload is the draft-shaped body of a submission
type Payload struct {
	Diagnosis     string                      `json:"diagnosis"`
	Patient       entities.Patient            `json:"patient"`
	Doctor        entities.Doctor             `json:"doctor"`
	Prescriptions []entities.PrescriptionLine `json:"prescriptions"`
	Rx            string                      `json:"rx"`
	Signature     string                      `json:"signature"`
}

// PayloadFromDraft maps a draft to the submission body
func PayloadFromDraft(d entities.Draft) Payload {
	return Payload{
		Diagnosis:     d.Diagnosis,
		Patient:       d.Patient,
		Doctor:        d.Doctor,
		Prescriptions: d.Clone().Prescriptions,
		Rx:            d.FreeTextRx,
		Signature:     d.SignatureText,
	}
}

// Receiver acknowledges submissions. It performs no validation and stores
// nothing; any JSON payload is accepted.
type Receiver struct {
	logger *slog.Logger
}

// NewReceiver returns a receiver logging to logger
func NewReceiver(logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{logger: logger.With("component", "submission")}
}

// Routes mounts the receiver endpoints on r
func (rc *Receiver) Routes(r chi.Router) {
	r.Use(rc.recoverer)
	r.Get(RunPath, rc.Run)
	r.Post(ReportPath, rc.GenReport)
}

// Run answers liveness checks
func (rc *Receiver) Run(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"run": "Your code is running"})
}

// GenReport acknowledges any JSON payload. The known draft keys are only
// read for the log line; a body of another shape is still accepted.
func (rc *Receiver) GenReport(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	dec := json.NewDecoder(io.LimitReader(r.Body, maxPayload))
	if err := dec.Decode(&raw); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			metrics.SubmissionsReceived.WithLabelValues("invalid").Inc()
			rc.logger.Warn("Rejected report payload", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
			return
		}
		rc.internalError(w, err)
		return
	}

	metrics.SubmissionsReceived.WithLabelValues("accepted").Inc()
	rc.logger.Info("Report received", summarize(raw)...)
	writeJSON(w, http.StatusOK, map[string]string{"Message": "Report received"})
}

// summarize pulls log attributes out of the payload, skipping keys whose value
// does not have the draft's shape
func summarize(raw json.RawMessage) []any {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return []any{"shape", "non-object", "bytes", len(raw)}
	}

	attrs := []any{"keys", len(fields)}
	var patient struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(fields["patient"], &patient) == nil && patient.Name != "" {
		attrs = append(attrs, "patient", patient.Name)
	}
	var doctor struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(fields["doctor"], &doctor) == nil && doctor.Name != "" {
		attrs = append(attrs, "doctor", doctor.Name)
	}
	var diagnosis string
	if json.Unmarshal(fields["diagnosis"], &diagnosis) == nil && diagnosis != "" {
		attrs = append(attrs, "diagnosis", diagnosis)
	}
	var lines []json.RawMessage
	if json.Unmarshal(fields["prescriptions"], &lines) == nil {
		attrs = append(attrs, "prescriptions", len(lines))
	}
	return attrs
}

func (rc *Receiver) internalError(w http.ResponseWriter, err any) {
	metrics.SubmissionsReceived.WithLabelValues("error").Inc()
	rc.logger.Error("Report submission failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}

// recoverer turns panics into the generic 500 acknowledgment
func (rc *Receiver) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				rc.logger.Debug("Recovered panic", "stack", string(debug.Stack()))
				rc.internalError(w, rec)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
