// Package workspace holds the editing state of one browser profile: the
// draft store with its autosave bridge, the upload preview slots, the last
// validation errors and the preview dialog.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/giygas/medreport/autosave"
	"github.com/giygas/medreport/clock"
	"github.com/giygas/medreport/draft"
	"github.com/giygas/medreport/entities"
	"github.com/giygas/medreport/interfaces"
	"github.com/giygas/medreport/metrics"
	"github.com/giygas/medreport/preview"
	"github.com/giygas/medreport/storage"
	"github.com/giygas/medreport/upload"
)

// ErrClosed is returned by operations on an evicted workspace
var ErrClosed = errors.New("workspace closed")

// ErrSubmitFailed is the generic error reported when the collaborator can't be reached
var ErrSubmitFailed = errors.New("report submission failed")

// Options are shared by every workspace of a Manager
type Options struct {
	Catalog           entities.Catalog
	IDPolicy          string // "max" (default) or "monotonic"
	Records           interfaces.RecordStore
	Validator         interfaces.DraftValidator
	Submitter         interfaces.Submitter
	Clock             clock.Clock
	Logger            *slog.Logger
	AutosaveDelay     time.Duration
	SavedIndicator    time.Duration
	MaxUploadSize     int64
	MaxImageDimension int
}

// View is an immutable picture of a workspace for templates and JSON
type View struct {
	ProfileID    string            `json:"profileId"`
	Draft        entities.Draft    `json:"draft"`
	Errors       map[string]string `json:"errors"`
	Logo         string            `json:"logoPreview"`
	Signature    string            `json:"signaturePreview"`
	PreviewOpen  bool              `json:"previewOpen"`
	PreviewDraft *entities.Draft   `json:"previewDraft,omitempty"`
	ScrollLocked bool              `json:"scrollLocked"`
	FocusTrapped bool              `json:"focusTrapped"`
	Handwriting  bool              `json:"handwriting"`
	Saved        bool              `json:"saved"`
	Catalog      []string          `json:"catalog"`
}

// Workspace is the state of one profile
type Workspace struct {
	id        string
	store     *draft.Store
	bridge    *autosave.Bridge
	uploads   *upload.Handlers
	validator interfaces.DraftValidator
	submitter interfaces.Submitter
	clock     clock.Clock
	logger    *slog.Logger

	mu           sync.Mutex
	errors       map[string]string
	session      *preview.Session
	scrollLocked bool
	focusTrapped bool
	handwriting  bool
	lastSeen     time.Time
	closed       bool

	// leases counts requests holding the workspace; guarded by Manager.mu
	leases int
}

// New builds the workspace of profileID and restores its saved draft
func New(ctx context.Context, profileID string, opts Options) *Workspace {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Wall()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("profile", profileID)

	store := draft.NewStore(draft.Config{
		Defaults: entities.SampleDraft(clk.Now()),
		Catalog:  opts.Catalog,
		IDPolicy: draft.PolicyByName(opts.IDPolicy),
	})

	w := &Workspace{
		id:    profileID,
		store: store,
		bridge: autosave.NewBridge(store, opts.Records, storage.ProfileKey(profileID),
			autosave.WithClock(clk),
			autosave.WithDelay(opts.AutosaveDelay),
			autosave.WithSavedIndicator(opts.SavedIndicator),
			autosave.WithLogger(logger),
		),
		uploads: upload.New(store,
			upload.WithLogger(logger),
			upload.WithMaxSize(opts.MaxUploadSize),
			upload.WithMaxDimension(opts.MaxImageDimension),
		),
		validator: opts.Validator,
		submitter: opts.Submitter,
		clock:     clk,
		logger:    logger,
		errors:    map[string]string{},
		lastSeen:  clk.Now(),
	}

	if w.bridge.Restore(ctx) {
		if logo := store.Snapshot().Doctor.LogoData; logo != "" {
			w.uploads.SeedLogo(logo)
		}
	}
	return w
}

func (w *Workspace) ID() string { return w.id }

// Store exposes the draft store for edits
func (w *Workspace) Store() *draft.Store { return w.store }

// Uploads exposes the logo and signature handlers
func (w *Workspace) Uploads() *upload.Handlers { return w.uploads }

// Touch marks the workspace as used now
func (w *Workspace) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen = w.clock.Now()
}

// Closed reports whether Close has run
func (w *Workspace) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Workspace) LastSeen() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

// OpenPreview runs the validation gate on the current draft. Errors from
// earlier attempts are replaced, never merged. On success the preview
// session takes the scroll lock and focus trap.
func (w *Workspace) OpenPreview() (map[string]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	if w.session != nil && !w.session.Closed() {
		return w.errors, nil
	}

	session, errs, err := preview.Open(w.store.Snapshot(), w.validator, w.clock.Now(),
		preview.NewFlag(func(v bool) { w.scrollLocked = v }),
		preview.NewFlag(func(v bool) { w.focusTrapped = v }),
	)
	w.errors = errs
	if err != nil {
		if errors.Is(err, preview.ErrBlocked) {
			metrics.PreviewOpens.WithLabelValues("blocked").Inc()
		}
		return errs, err
	}

	metrics.PreviewOpens.WithLabelValues("opened").Inc()
	w.session = session
	return errs, nil
}

// ClosePreview closes the preview if it is open
func (w *Workspace) ClosePreview(reason preview.CloseReason) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closePreviewLocked(reason)
}

func (w *Workspace) closePreviewLocked(reason preview.CloseReason) bool {
	if w.session == nil {
		return false
	}
	closed := w.session.Close(reason)
	w.session = nil
	return closed
}

// HandleKey forwards a key press to the open preview
func (w *Workspace) HandleKey(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return false
	}
	if !w.session.HandleKey(key) {
		return false
	}
	w.session = nil
	return true
}

// PreviewOpen reports whether the preview dialog is showing
func (w *Workspace) PreviewOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session != nil && !w.session.Closed()
}

// SetHandwriting toggles the handwriting style of the free-text Rx in the preview
func (w *Workspace) SetHandwriting(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handwriting = on
}

// Reset deletes the saved draft, restores the sample default and empties both
// image slots. The store is reset even when the record can't be deleted.
func (w *Workspace) Reset(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.closePreviewLocked(preview.ReasonUnmount)
	w.mu.Unlock()

	w.uploads.Clear()
	return w.bridge.Reset(ctx)
}

// Export logs the current draft. Document generation is not provided.
func (w *Workspace) Export() entities.Draft {
	d := w.store.Snapshot().Clone()
	w.logger.Info("Report exported", "draft", d)
	return d
}

// Submit posts the current draft to the submission collaborator. Failures
// are logged and reported as ErrSubmitFailed; nothing is retried.
func (w *Workspace) Submit(ctx context.Context) error {
	if w.submitter == nil {
		return fmt.Errorf("%w: no submission endpoint configured", ErrSubmitFailed)
	}
	if err := w.submitter.Submit(ctx, w.store.Snapshot()); err != nil {
		w.logger.Error("Report submission failed", "error", err)
		return ErrSubmitFailed
	}
	return nil
}

// View captures the current state
func (w *Workspace) View() View {
	previews := w.uploads.Previews()

	w.mu.Lock()
	defer w.mu.Unlock()

	var shown *entities.Draft
	if w.session != nil && !w.session.Closed() {
		d := w.session.Draft()
		shown = &d
	}

	return View{
		ProfileID:    w.id,
		Draft:        w.store.Snapshot().Clone(),
		Errors:       maps.Clone(w.errors),
		Logo:         previews.Logo,
		Signature:    previews.Signature,
		PreviewOpen:  shown != nil,
		PreviewDraft: shown,
		ScrollLocked: w.scrollLocked,
		FocusTrapped: w.focusTrapped,
		Handwriting:  w.handwriting,
		Saved:        w.bridge.Saved(),
		Catalog:      w.store.Catalog(),
	}
}

// Close unmounts the workspace: the preview releases its acquisitions and
// the bridge drops any scheduled write.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.closePreviewLocked(preview.ReasonUnmount)
	w.mu.Unlock()

	w.bridge.Stop()
}
