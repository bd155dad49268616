// Package interfaces defines the contracts between the report service packages
// to keep them testable with hand-written fakes.
package interfaces

import (
	"context"
	"net/http"

	"github.com/giygas/medreport/entities"
)

// RecordStore is the durable slot holding one serialized draft per key.
// Values are overwritten wholesale on Put, never merged.
type RecordStore interface {
	// Get returns the stored bytes, or an error wrapping storage.ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes the record; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// Ping checks the backend is reachable
	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// DraftValidator computes validation errors for a draft and checks raw request input
type DraftValidator interface {
	// Validate returns the required-field errors of d, keyed by field key.
	// The result is empty when d can be previewed.
	Validate(d entities.Draft) map[string]string

	// ValidateSection checks the section name of a field update
	ValidateSection(section string) error

	// ValidateLineID parses a prescription id from a URL parameter
	ValidateLineID(input string) (int, error)

	// ValidateTextInput bounds the size of a free-text value
	ValidateTextInput(field, value string) error
}

// Scheduler defines the contract for background housekeeping jobs
type Scheduler interface {
	Start() error
	Stop()
}

// HealthChecker reports the service health
type HealthChecker interface {
	// HealthCheck returns the status, response details and HTTP status code
	HealthCheck(ctx context.Context) (status string, details map[string]any, httpStatus int)
}

// Submitter sends a draft to the submission collaborator
type Submitter interface {
	Submit(ctx context.Context, d entities.Draft) error
}

// HTTPHandler is the form service handler set mounted by the server
type HTTPHandler interface {
	// Form page
	ServeForm(w http.ResponseWriter, r *http.Request)
	SaveForm(w http.ResponseWriter, r *http.Request)
	FormAction(w http.ResponseWriter, r *http.Request)

	// Preview page
	ServePreview(w http.ResponseWriter, r *http.Request)
	ClosePreviewForm(w http.ResponseWriter, r *http.Request)

	// JSON API
	GetDraft(w http.ResponseWriter, r *http.Request)
	UpdateField(w http.ResponseWriter, r *http.Request)
	SetText(w http.ResponseWriter, r *http.Request)
	AddPrescription(w http.ResponseWriter, r *http.Request)
	AddFromCatalog(w http.ResponseWriter, r *http.Request)
	UpdatePrescription(w http.ResponseWriter, r *http.Request)
	RemovePrescription(w http.ResponseWriter, r *http.Request)
	UploadLogo(w http.ResponseWriter, r *http.Request)
	UploadSignature(w http.ResponseWriter, r *http.Request)
	ResetDraft(w http.ResponseWriter, r *http.Request)
	OpenPreview(w http.ResponseWriter, r *http.Request)
	ClosePreview(w http.ResponseWriter, r *http.Request)
	PreviewKey(w http.ResponseWriter, r *http.Request)
	Export(w http.ResponseWriter, r *http.Request)
	Submit(w http.ResponseWriter, r *http.Request)
	SearchCatalog(w http.ResponseWriter, r *http.Request)

	// This will stay in all versions
	HealthCheck(w http.ResponseWriter, r *http.Request)
}
