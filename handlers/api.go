package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/medreport/draft"
	"github.com/giygas/medreport/logging"
	"github.com/giygas/medreport/preview"
	"github.com/giygas/medreport/upload"
	"github.com/giygas/medreport/workspace"
)

type fieldRequest struct {
	Section string          `json:"section"`
	Field   string          `json:"field"`
	Value   json.RawMessage `json:"value"`
}

type textRequest struct {
	Value string `json:"value"`
}

type catalogRequest struct {
	Name string `json:"name"`
}

type closeRequest struct {
	Reason string `json:"reason"`
	Key    string `json:"key"`
}

// lineResponse reports the line affected by a prescription mutation
type lineResponse struct {
	ID        int            `json:"id,omitempty"`
	Removed   *bool          `json:"removed,omitempty"`
	Workspace workspace.View `json:"workspace"`
}

type uploadResponse struct {
	Accepted  bool           `json:"accepted"`
	Workspace workspace.View `json:"workspace"`
}

type previewResponse struct {
	Closed    bool           `json:"closed"`
	Workspace workspace.View `json:"workspace"`
}

type blockedResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Code    int               `json:"code"`
	Errors  map[string]string `json:"errors"`
}

// rawString reads a JSON value sent for a text field. Strings are used as
// is; booleans and numbers keep their literal form so checkboxes can be
// posted as true/false.
func rawString(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return "", nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case strings.HasPrefix(trimmed, "{"), strings.HasPrefix(trimmed, "["):
		return "", errors.New("value must be a string, number or boolean")
	}
	return trimmed, nil
}

// GetDraft returns the workspace of the requesting profile
func (h *HTTPHandlerImpl) GetDraft(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()
	RespondWithJSON(w, http.StatusOK, ws.View())
}

// UpdateField sets one doctor or patient field
func (h *HTTPHandlerImpl) UpdateField(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()

	var req fieldRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.ValidateSection(req.Section); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := rawString(req.Value)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.ValidateTextInput(req.Field, value); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := ws.Store().UpdateField(req.Section, req.Field, value); err != nil {
		if errors.Is(err, draft.ErrUnknownField) {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.Error("Failed to update field", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to update field")
		return
	}
	RespondWithJSON(w, http.StatusOK, ws.View())
}

// SetText replaces the free-text Rx, the diagnosis or the signature text,
// depending on the last path segment
func (h *HTTPHandlerImpl) SetText(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()
	store := ws.Store()

	target := path.Base(r.URL.Path)
	var set func(string)
	switch target {
	case "rx":
		set = store.SetFreeTextRx
	case "diagnosis":
		set = store.SetDiagnosis
	case "signature":
		set = store.SetSignatureText
	default:
		RespondWithError(w, http.StatusNotFound, "Unknown text field")
		return
	}

	var req textRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.ValidateTextInput(target, req.Value); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	set(req.Value)
	RespondWithJSON(w, http.StatusOK, ws.View())
}

// AddPrescription appends an empty line
func (h *HTTPHandlerImpl) AddPrescription(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()
	id := ws.Store().AddPrescription()
	RespondWithJSON(w, http.StatusCreated, lineResponse{ID: id, Workspace: ws.View()})
}

// AddFromCatalog appends a line for a catalog medication. An empty name adds nothing.
func (h *HTTPHandlerImpl) AddFromCatalog(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()

	var req catalogRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := ws.Store().AddFromCatalog(req.Name)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	code := http.StatusCreated
	if id == 0 {
		code = http.StatusOK
	}
	RespondWithJSON(w, code, lineResponse{ID: id, Workspace: ws.View()})
}

// UpdatePrescription sets one field of a line; unknown ids are ignored
func (h *HTTPHandlerImpl) UpdatePrescription(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()

	id, err := h.validator.ValidateLineID(chi.URLParam(r, "id"))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req fieldRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := rawString(req.Value)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.ValidateTextInput(req.Field, value); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := ws.Store().UpdatePrescription(id, req.Field, value); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusOK, ws.View())
}

// RemovePrescription deletes a line
func (h *HTTPHandlerImpl) RemovePrescription(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()

	id, err := h.validator.ValidateLineID(chi.URLParam(r, "id"))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	removed := ws.Store().RemovePrescription(id)
	RespondWithJSON(w, http.StatusOK, lineResponse{ID: id, Removed: &removed, Workspace: ws.View()})
}

// UploadLogo converts an uploaded logo and stores it in the draft
func (h *HTTPHandlerImpl) UploadLogo(w http.ResponseWriter, r *http.Request) {
	h.apiUpload(w, r, upload.SlotLogo)
}

// UploadSignature converts an uploaded signature image into the signature preview
func (h *HTTPHandlerImpl) UploadSignature(w http.ResponseWriter, r *http.Request) {
	h.apiUpload(w, r, upload.SlotSignature)
}

// apiUpload answers non-image files with accepted=false and no error, like the form does
func (h *HTTPHandlerImpl) apiUpload(w http.ResponseWriter, r *http.Request, slot upload.Slot) {
	ws, done := h.workspace(w, r)
	defer done()

	f, err := h.readUpload(w, r)
	switch {
	case errors.Is(err, errUploadTooLarge):
		RespondWithError(w, http.StatusRequestEntityTooLarge, "Image is too large")
		return
	case err != nil:
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.runUpload(r.Context(), ws, slot, f)
	switch {
	case res.Accepted():
		RespondWithJSON(w, http.StatusOK, uploadResponse{Accepted: true, Workspace: ws.View()})
	case errors.Is(res.Err, upload.ErrNotImage), errors.Is(res.Err, upload.ErrEmptyFile):
		RespondWithJSON(w, http.StatusOK, uploadResponse{Accepted: false, Workspace: ws.View()})
	case errors.Is(res.Err, upload.ErrTooLarge):
		RespondWithError(w, http.StatusRequestEntityTooLarge, "Image is too large")
	case errors.Is(res.Err, upload.ErrSuperseded):
		RespondWithError(w, http.StatusConflict, "A newer upload replaced this one")
	default:
		RespondWithError(w, http.StatusUnprocessableEntity, "The image could not be processed")
	}
}

// ResetDraft restores the sample draft and removes the saved record
func (h *HTTPHandlerImpl) ResetDraft(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()

	if err := ws.Reset(r.Context()); err != nil {
		if errors.Is(err, workspace.ErrClosed) {
			RespondWithError(w, http.StatusServiceUnavailable, "Workspace is closing, retry")
			return
		}
		logging.Warn("Reset could not remove the saved draft", "profile", ws.ID(), "error", err)
	}
	RespondWithJSON(w, http.StatusOK, ws.View())
}

// OpenPreview runs the validation gate and opens the preview when it passes
func (h *HTTPHandlerImpl) OpenPreview(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()

	errs, err := ws.OpenPreview()
	switch {
	case errors.Is(err, preview.ErrBlocked):
		RespondWithJSON(w, http.StatusUnprocessableEntity, blockedResponse{
			Error:   http.StatusText(http.StatusUnprocessableEntity),
			Message: "Required fields are missing",
			Code:    http.StatusUnprocessableEntity,
			Errors:  errs,
		})
	case errors.Is(err, workspace.ErrClosed):
		RespondWithError(w, http.StatusServiceUnavailable, "Workspace is closing, retry")
	case err != nil:
		logging.Error("Failed to open preview", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to open preview")
	default:
		RespondWithJSON(w, http.StatusOK, ws.View())
	}
}

// ClosePreview closes the preview; the reason defaults to the close button
func (h *HTTPHandlerImpl) ClosePreview(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()

	var req closeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	closed := ws.ClosePreview(preview.ParseCloseReason(req.Reason))
	RespondWithJSON(w, http.StatusOK, previewResponse{Closed: closed, Workspace: ws.View()})
}

// PreviewKey forwards a key press to the preview; only Escape closes it
func (h *HTTPHandlerImpl) PreviewKey(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()

	var req closeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Key == "" {
		RespondWithError(w, http.StatusBadRequest, "key is required")
		return
	}

	closed := ws.HandleKey(req.Key)
	RespondWithJSON(w, http.StatusOK, previewResponse{Closed: closed, Workspace: ws.View()})
}

// Export logs the draft; no document is generated
func (h *HTTPHandlerImpl) Export(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()
	d := ws.Export()
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"message": "Export is not available in this demo; the report was logged",
		"draft":   d,
	})
}

// Submit posts the draft to the submission service
func (h *HTTPHandlerImpl) Submit(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()
	if err := ws.Submit(r.Context()); err != nil {
		RespondWithError(w, http.StatusBadGateway, "Report submission failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Report submitted"})
}

// SearchCatalog lists the catalog medications matching q, accents and case ignored
func (h *HTTPHandlerImpl) SearchCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if err := h.validator.ValidateTextInput("q", q); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := h.catalog.Search(q)
	if results == nil {
		results = []string{}
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"results": results,
		"count":   len(results),
	})
}
