package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/medreport/draft"
	"github.com/giygas/medreport/entities"
	"github.com/giygas/medreport/logging"
	"github.com/giygas/medreport/preview"
	"github.com/giygas/medreport/upload"
	"github.com/giygas/medreport/workspace"
)

// multipartOverhead is the room left for multipart framing around an upload
const multipartOverhead = 64 << 10

var errUploadTooLarge = errors.New("upload exceeds the maximum size")

type notice struct {
	Text   string
	Failed bool
}

var notices = map[string]notice{
	"exported":         {Text: "Export is not available in this demo. The report was written to the service log."},
	"submitted":        {Text: "Report submitted."},
	"submit-failed":    {Text: "Report submission failed. Please try again later.", Failed: true},
	"upload-too-large": {Text: "The image is too large.", Failed: true},
	"upload-failed":    {Text: "The image could not be processed.", Failed: true},
	"not-in-catalog":   {Text: "That medication is not in the catalog.", Failed: true},
	"reset-failed":     {Text: "The form was reset but the saved draft could not be removed.", Failed: true},
}

type formPage struct {
	View       workspace.View
	Banner     string
	Notice     *notice
	SexOptions []string
}

var sexOptions = []string{string(entities.SexMale), string(entities.SexFemale), string(entities.SexOther)}

var doctorFields = []string{"name", "qualification", "hospital", "regNo", "phone", "email"}

var patientFields = []string{"name", "age", "sex", "weight", "address", "date", "patientId"}

var lineFields = []string{"name", "dose", "freq", "duration"}

// ServeForm renders the report form of the requesting profile
func (h *HTTPHandlerImpl) ServeForm(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()

	page := formPage{View: ws.View(), Banner: preview.Banner, SexOptions: sexOptions}
	if n, ok := notices[r.URL.Query().Get("notice")]; ok {
		page.Notice = &n
	}

	var buf bytes.Buffer
	if err := h.form.ExecuteTemplate(&buf, "form", page); err != nil {
		logging.Error("Failed to render form", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to render form")
		return
	}
	writeHTML(w, buf.Bytes())
}

// SaveForm applies a full form post to the draft
func (h *HTTPHandlerImpl) SaveForm(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()
	if err := r.ParseForm(); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	if err := h.applyForm(ws, r.PostForm); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	redirect(w, r, "/", "")
}

// FormAction handles the action buttons and upload forms of the form page.
// Buttons of the main form post every field, which are saved before the action runs.
func (h *HTTPHandlerImpl) FormAction(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()
	action := strings.Trim(chi.URLParam(r, "*"), "/")

	switch action {
	case "logo", "signature":
		h.formUpload(w, r, ws, upload.Slot(action))
		return
	}

	if err := r.ParseForm(); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	if err := h.applyForm(ws, r.PostForm); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	store := ws.Store()
	switch {
	case action == "prescriptions/add":
		store.AddPrescription()
		redirect(w, r, "/", "")

	case action == "prescriptions/catalog":
		if _, err := store.AddFromCatalog(r.PostForm.Get("catalog")); err != nil {
			redirect(w, r, "/", "not-in-catalog")
			return
		}
		redirect(w, r, "/", "")

	case strings.HasPrefix(action, "prescriptions/") && strings.HasSuffix(action, "/remove"):
		raw := strings.TrimSuffix(strings.TrimPrefix(action, "prescriptions/"), "/remove")
		id, err := h.validator.ValidateLineID(raw)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		store.RemovePrescription(id)
		redirect(w, r, "/", "")

	case action == "preview":
		if _, err := ws.OpenPreview(); err != nil {
			redirect(w, r, "/", "")
			return
		}
		redirect(w, r, "/preview", "")

	case action == "reset":
		if err := ws.Reset(r.Context()); err != nil {
			logging.Warn("Reset could not remove the saved draft", "profile", ws.ID(), "error", err)
			redirect(w, r, "/", "reset-failed")
			return
		}
		redirect(w, r, "/", "")

	case action == "export":
		ws.Export()
		redirect(w, r, "/", "exported")

	case action == "submit":
		if err := ws.Submit(r.Context()); err != nil {
			redirect(w, r, "/", "submit-failed")
			return
		}
		redirect(w, r, "/", "submitted")

	default:
		RespondWithError(w, http.StatusNotFound, fmt.Sprintf("Unknown form action: %s", action))
	}
}

func (h *HTTPHandlerImpl) formUpload(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, slot upload.Slot) {
	f, err := h.readUpload(w, r)
	switch {
	case errors.Is(err, errUploadTooLarge):
		redirect(w, r, "/", "upload-too-large")
		return
	case err != nil:
		// nothing selected; the form stays as it was
		redirect(w, r, "/", "")
		return
	}

	res := h.runUpload(r.Context(), ws, slot, f)
	switch {
	case res.Accepted(), errors.Is(res.Err, upload.ErrNotImage), errors.Is(res.Err, upload.ErrEmptyFile):
		redirect(w, r, "/", "")
	case errors.Is(res.Err, upload.ErrTooLarge):
		redirect(w, r, "/", "upload-too-large")
	default:
		redirect(w, r, "/", "upload-failed")
	}
}

// ServePreview renders the report while the preview is open
func (h *HTTPHandlerImpl) ServePreview(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()
	if !ws.PreviewOpen() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	v := ws.View()
	if v.PreviewDraft == nil {
		// closed between the check and the view
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	var buf bytes.Buffer
	err := h.report.Render(&buf, preview.View{
		Draft:       *v.PreviewDraft,
		Logo:        v.Logo,
		Signature:   v.Signature,
		Handwriting: v.Handwriting,
	})
	if err != nil {
		logging.Error("Failed to render preview", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to render preview")
		return
	}
	writeHTML(w, buf.Bytes())
}

// ClosePreviewForm handles the close button, backdrop and key posts of the preview page
func (h *HTTPHandlerImpl) ClosePreviewForm(w http.ResponseWriter, r *http.Request) {
	ws, done := h.workspace(w, r)
	defer done()
	if err := r.ParseForm(); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	if key := r.PostForm.Get("key"); key != "" {
		ws.HandleKey(key)
	} else {
		ws.ClosePreview(preview.ParseCloseReason(r.PostForm.Get("reason")))
	}

	if ws.PreviewOpen() {
		redirect(w, r, "/preview", "")
		return
	}
	redirect(w, r, "/", "")
}

// applyForm writes the posted fields that differ from the current draft.
// Fields absent from the post are left alone.
func (h *HTTPHandlerImpl) applyForm(ws *workspace.Workspace, form url.Values) error {
	store := ws.Store()
	current := store.Snapshot()
	values := fieldValues(current)

	update := func(section string, fields []string) error {
		for _, field := range fields {
			key := section + "." + field
			vs, ok := form[key]
			if !ok || vs[len(vs)-1] == values[key] {
				continue
			}
			value := vs[len(vs)-1]
			if err := h.validator.ValidateTextInput(field, value); err != nil {
				return err
			}
			if err := store.UpdateField(section, field, value); err != nil {
				return err
			}
		}
		return nil
	}
	if err := update(draft.SectionDoctor, doctorFields); err != nil {
		return err
	}
	if err := update(draft.SectionPatient, patientFields); err != nil {
		return err
	}

	// unchecked boxes are not posted; the hidden marker says the box was on the page
	if form.Has("patient.knownDiabetic.present") {
		on := form.Get("patient.knownDiabetic") != ""
		if on != current.Patient.KnownDiabetic {
			if err := store.UpdateField(draft.SectionPatient, "knownDiabetic", strconv.FormatBool(on)); err != nil {
				return err
			}
		}
	}
	if form.Has("handwriting.present") {
		ws.SetHandwriting(form.Get("handwriting") != "")
	}

	texts := []struct {
		key string
		cur string
		set func(string)
	}{
		{"rx", current.FreeTextRx, store.SetFreeTextRx},
		{"diagnosis", current.Diagnosis, store.SetDiagnosis},
		{"signature", current.SignatureText, store.SetSignatureText},
	}
	for _, t := range texts {
		if !form.Has(t.key) || form.Get(t.key) == t.cur {
			continue
		}
		if err := h.validator.ValidateTextInput(t.key, form.Get(t.key)); err != nil {
			return err
		}
		t.set(form.Get(t.key))
	}

	for _, line := range current.Prescriptions {
		for _, field := range lineFields {
			key := fmt.Sprintf("line.%d.%s", line.ID, field)
			if !form.Has(key) || form.Get(key) == lineValue(line, field) {
				continue
			}
			if err := h.validator.ValidateTextInput(field, form.Get(key)); err != nil {
				return err
			}
			if err := store.UpdatePrescription(line.ID, field, form.Get(key)); err != nil {
				return err
			}
		}
	}
	return nil
}

func fieldValues(d entities.Draft) map[string]string {
	return map[string]string{
		"doctor.name":          d.Doctor.Name,
		"doctor.qualification": d.Doctor.Qualification,
		"doctor.hospital":      d.Doctor.Hospital,
		"doctor.regNo":         d.Doctor.RegistrationNumber,
		"doctor.phone":         d.Doctor.Phone,
		"doctor.email":         d.Doctor.Email,
		"patient.name":         d.Patient.Name,
		"patient.age":          d.Patient.Age,
		"patient.sex":          string(d.Patient.Sex),
		"patient.weight":       d.Patient.Weight,
		"patient.address":      d.Patient.Address,
		"patient.date":         d.Patient.Date,
		"patient.patientId":    d.Patient.PatientID,
	}
}

func lineValue(p entities.PrescriptionLine, field string) string {
	switch field {
	case "name":
		return p.Name
	case "dose":
		return p.Dose
	case "freq":
		return p.Frequency
	default:
		return p.Duration
	}
}

// readUpload extracts the "file" part of a multipart upload
func (h *HTTPHandlerImpl) readUpload(w http.ResponseWriter, r *http.Request) (upload.File, error) {
	if r.ContentLength > h.maxUpload+multipartOverhead {
		return upload.File{}, errUploadTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return upload.File{}, errUploadTooLarge
		}
		return upload.File{}, fmt.Errorf("invalid upload: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		return upload.File{}, fmt.Errorf("no file in upload: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		return upload.File{}, fmt.Errorf("read upload: %w", err)
	}
	return upload.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// runUpload starts the conversion and waits for its result
func (h *HTTPHandlerImpl) runUpload(ctx context.Context, ws *workspace.Workspace, slot upload.Slot, f upload.File) upload.Result {
	var results <-chan upload.Result
	if slot == upload.SlotLogo {
		results = ws.Uploads().HandleLogo(ctx, f)
	} else {
		results = ws.Uploads().HandleSignature(ctx, f)
	}

	select {
	case res := <-results:
		return res
	case <-ctx.Done():
		return upload.Result{Slot: slot, Err: ctx.Err()}
	}
}

func redirect(w http.ResponseWriter, r *http.Request, to, noticeKey string) {
	if noticeKey != "" {
		to += "?notice=" + url.QueryEscape(noticeKey)
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func writeHTML(w http.ResponseWriter, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}
