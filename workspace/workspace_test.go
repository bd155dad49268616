package workspace

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/giygas/medreport/clock"
	"github.com/giygas/medreport/entities"
	"github.com/giygas/medreport/logging"
	"github.com/giygas/medreport/preview"
	"github.com/giygas/medreport/storage"
	"github.com/giygas/medreport/upload"
	"github.com/giygas/medreport/validation"
)

// mockSubmitter records submitted drafts
type mockSubmitter struct {
	err       error
	submitted []entities.Draft
}

func (m *mockSubmitter) Submit(ctx context.Context, d entities.Draft) error {
	m.submitted = append(m.submitted, d)
	return m.err
}

func testOptions(records *storage.Memory, clk *clock.Manual, sub *mockSubmitter) Options {
	opts := Options{
		Catalog:        entities.DefaultCatalog(),
		Records:        records,
		Validator:      validation.NewDraftValidator(),
		Clock:          clk,
		Logger:         logging.Discard(),
		AutosaveDelay:  5 * time.Second,
		SavedIndicator: 2 * time.Second,
	}
	if sub != nil {
		opts.Submitter = sub
	}
	return opts
}

func newTestWorkspace(t *testing.T, sub *mockSubmitter) (*Workspace, *storage.Memory, *clock.Manual) {
	t.Helper()
	records := storage.NewMemory()
	clk := clock.NewManual(featureStart)
	w := New(context.Background(), "p1", testOptions(records, clk, sub))
	t.Cleanup(w.Close)
	return w, records, clk
}

func TestSubmit(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		sub := &mockSubmitter{}
		w, _, _ := newTestWorkspace(t, sub)
		w.Store().SetDiagnosis("Sprain")

		if err := w.Submit(context.Background()); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if len(sub.submitted) != 1 || sub.submitted[0].Diagnosis != "Sprain" {
			t.Errorf("unexpected submissions %+v", sub.submitted)
		}
	})

	t.Run("failure is generic and not retried", func(t *testing.T) {
		sub := &mockSubmitter{err: errors.New("connection refused")}
		w, _, _ := newTestWorkspace(t, sub)

		err := w.Submit(context.Background())
		if !errors.Is(err, ErrSubmitFailed) {
			t.Fatalf("expected ErrSubmitFailed, got %v", err)
		}
		if len(sub.submitted) != 1 {
			t.Errorf("expected exactly one attempt, got %d", len(sub.submitted))
		}
	})

	t.Run("no collaborator configured", func(t *testing.T) {
		w, _, _ := newTestWorkspace(t, nil)
		if err := w.Submit(context.Background()); !errors.Is(err, ErrSubmitFailed) {
			t.Errorf("expected ErrSubmitFailed, got %v", err)
		}
	})
}

func TestExportReturnsSnapshotWithoutSideEffects(t *testing.T) {
	w, records, clk := newTestWorkspace(t, nil)
	d := w.Export()
	if !d.Equal(w.Store().Snapshot()) {
		t.Error("export should return the current draft")
	}
	clk.Advance(time.Minute)
	if records.Writes() != 0 {
		t.Error("export must not write anything")
	}
}

func TestResetClosesPreviewAndClearsSlots(t *testing.T) {
	w, _, _ := newTestWorkspace(t, nil)
	w.Uploads().SeedLogo("data:image/png;base64,AAAA")
	<-w.Uploads().HandleSignature(context.Background(), pngFile(t))

	if _, err := w.OpenPreview(); err != nil {
		t.Fatalf("OpenPreview: %v", err)
	}
	if err := w.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	v := w.View()
	if v.PreviewOpen || v.ScrollLocked || v.FocusTrapped {
		t.Error("reset should close the preview and release the page")
	}
	if v.Logo != "" || v.Signature != "" {
		t.Error("reset should clear both image slots")
	}
}

func TestCloseReleasesPreviewAndStopsAutosave(t *testing.T) {
	records := storage.NewMemory()
	clk := clock.NewManual(featureStart)
	w := New(context.Background(), "p1", testOptions(records, clk, nil))

	if _, err := w.OpenPreview(); err != nil {
		t.Fatalf("OpenPreview: %v", err)
	}
	w.Store().SetDiagnosis("pending")
	w.Close()
	w.Close()

	v := w.View()
	if v.ScrollLocked || v.FocusTrapped || v.PreviewOpen {
		t.Error("unmount must release the preview acquisitions")
	}
	clk.Advance(time.Minute)
	if records.Writes() != 0 {
		t.Error("unmount must drop the pending save")
	}
	if _, err := w.OpenPreview(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
	if err := w.Reset(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Reset, got %v", err)
	}
}

func TestOpenPreviewTwiceKeepsOneSession(t *testing.T) {
	w, _, _ := newTestWorkspace(t, nil)
	if _, err := w.OpenPreview(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.OpenPreview(); err != nil {
		t.Fatal(err)
	}
	if !w.ClosePreview(preview.ReasonButton) {
		t.Error("first close should close the session")
	}
	if w.ClosePreview(preview.ReasonButton) {
		t.Error("second close should be a no-op")
	}
	if w.View().ScrollLocked {
		t.Error("scroll lock leaked")
	}
}

func TestPreviewShowsTheValidatedSnapshot(t *testing.T) {
	w, _, _ := newTestWorkspace(t, nil)
	before := w.Store().Snapshot()
	if _, err := w.OpenPreview(); err != nil {
		t.Fatal(err)
	}

	for _, line := range before.Prescriptions {
		w.Store().RemovePrescription(line.ID)
	}
	if err := w.Store().UpdateField("patient", "name", ""); err != nil {
		t.Fatal(err)
	}

	v := w.View()
	if !v.PreviewOpen || v.PreviewDraft == nil {
		t.Fatal("preview should still be open")
	}
	if v.PreviewDraft.Patient.Name != before.Patient.Name {
		t.Errorf("preview patient = %q, want %q", v.PreviewDraft.Patient.Name, before.Patient.Name)
	}
	if len(v.PreviewDraft.Prescriptions) != len(before.Prescriptions) {
		t.Errorf("preview lines = %d, want %d", len(v.PreviewDraft.Prescriptions), len(before.Prescriptions))
	}
	if errs := validation.Validate(*v.PreviewDraft); len(errs) != 0 {
		t.Errorf("previewed draft should pass validation, got %v", errs)
	}
	if len(v.Draft.Prescriptions) != 0 || v.Draft.Patient.Name != "" {
		t.Error("the editable draft should carry the later edits")
	}

	w.ClosePreview(preview.ReasonButton)
	if w.View().PreviewDraft != nil {
		t.Error("closed preview should not expose a snapshot")
	}
}

func TestViewIsACopy(t *testing.T) {
	w, _, _ := newTestWorkspace(t, nil)
	_ = w.Store().UpdateField("patient", "name", "")
	_, _ = w.OpenPreview()

	v := w.View()
	v.Errors["extra"] = "x"
	v.Draft.Prescriptions[0].Name = "changed"

	again := w.View()
	if _, ok := again.Errors["extra"]; ok {
		t.Error("view errors must not alias workspace state")
	}
	if again.Draft.Prescriptions[0].Name == "changed" {
		t.Error("view draft must not alias the store")
	}
}

func TestRestoredLogoSeedsSlot(t *testing.T) {
	records := storage.NewMemory()
	saved := entities.SampleDraft(featureStart)
	saved.Doctor.LogoData = "data:image/png;base64,TE9HTw=="
	data, _ := entities.EncodeDraft(saved)
	_ = records.Put(context.Background(), storage.ProfileKey("p1"), data)

	w := New(context.Background(), "p1", testOptions(records, clock.NewManual(featureStart), nil))
	defer w.Close()

	if w.View().Logo != saved.Doctor.LogoData {
		t.Error("restored logo should be shown in the preview slot")
	}
	if w.View().Signature != "" {
		t.Error("signature is never restored")
	}
}

func TestHandwritingToggle(t *testing.T) {
	w, _, _ := newTestWorkspace(t, nil)
	w.SetHandwriting(true)
	if !w.View().Handwriting {
		t.Error("handwriting should be on")
	}
}

func TestManagerGetAndSweep(t *testing.T) {
	clk := clock.NewManual(featureStart)
	m := NewManager(testOptions(storage.NewMemory(), clk, nil))
	defer m.CloseAll()

	a := m.Get(context.Background(), "a")
	if m.Get(context.Background(), "a") != a {
		t.Fatal("Get should return the same workspace for a profile")
	}

	clk.Advance(20 * time.Minute)
	m.Get(context.Background(), "b")
	clk.Advance(15 * time.Minute)

	if n := m.Sweep(30 * time.Minute); n != 1 {
		t.Fatalf("Sweep evicted %d, want 1", n)
	}
	if _, ok := m.Lookup("a"); ok {
		t.Error("idle workspace a should be evicted")
	}
	if _, ok := m.Lookup("b"); !ok {
		t.Error("workspace b is still fresh")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestManagerGetTouches(t *testing.T) {
	clk := clock.NewManual(featureStart)
	m := NewManager(testOptions(storage.NewMemory(), clk, nil))
	defer m.CloseAll()

	m.Get(context.Background(), "a")
	clk.Advance(25 * time.Minute)
	m.Get(context.Background(), "a")
	clk.Advance(25 * time.Minute)

	if n := m.Sweep(30 * time.Minute); n != 0 {
		t.Errorf("recently used workspace was evicted")
	}
}

func TestSweepKeepsAcquiredWorkspace(t *testing.T) {
	clk := clock.NewManual(featureStart)
	records := storage.NewMemory()
	m := NewManager(testOptions(records, clk, nil))
	defer m.CloseAll()

	w, release := m.Acquire(context.Background(), "a")
	clk.Advance(2 * time.Hour)

	if n := m.Sweep(30 * time.Minute); n != 0 {
		t.Fatalf("Sweep evicted %d workspaces held by a request", n)
	}
	if w.Closed() {
		t.Fatal("held workspace must stay open")
	}

	w.Store().SetDiagnosis("kept across the sweep")
	release()
	release()
	clk.Advance(5 * time.Second)

	if n := m.Sweep(time.Minute); n != 0 {
		t.Fatal("release should mark the workspace as used")
	}
	clk.Advance(time.Hour)
	if n := m.Sweep(30 * time.Minute); n != 1 {
		t.Fatalf("released idle workspace should be evicted, got %d", n)
	}
	if !w.Closed() {
		t.Error("evicted workspace should be closed")
	}

	fresh, done := m.Acquire(context.Background(), "a")
	defer done()
	if fresh == w {
		t.Fatal("expected a new workspace after eviction")
	}
	if got := fresh.View().Draft.Diagnosis; got != "kept across the sweep" {
		t.Errorf("restored diagnosis = %q", got)
	}
}

// blockingRecords holds Get for one key until release is closed
type blockingRecords struct {
	*storage.Memory
	key     string
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRecords) Get(ctx context.Context, key string) ([]byte, error) {
	if key == b.key {
		close(b.entered)
		<-b.release
	}
	return b.Memory.Get(ctx, key)
}

func TestManagerGetDoesNotBlockOnSlowRestore(t *testing.T) {
	records := &blockingRecords{
		Memory:  storage.NewMemory(),
		key:     storage.ProfileKey("slow"),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	opts := testOptions(storage.NewMemory(), clock.NewManual(featureStart), nil)
	opts.Records = records
	m := NewManager(opts)
	defer m.CloseAll()

	existing := m.Get(context.Background(), "fast")

	slowDone := make(chan *Workspace)
	go func() { slowDone <- m.Get(context.Background(), "slow") }()
	<-records.entered

	got := make(chan *Workspace)
	go func() { got <- m.Get(context.Background(), "fast") }()
	select {
	case w := <-got:
		if w != existing {
			t.Error("existing workspace should be returned")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Get of an existing profile waited for another profile's restore")
	}

	other := make(chan *Workspace)
	go func() { other <- m.Get(context.Background(), "other") }()
	select {
	case <-other:
	case <-time.After(2 * time.Second):
		t.Fatal("Get of a new profile waited for another profile's restore")
	}

	close(records.release)
	select {
	case w := <-slowDone:
		if found, ok := m.Lookup("slow"); !ok || found != w {
			t.Error("slow workspace should be registered once its restore finishes")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("slow restore never finished")
	}
	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}
}

func TestManagerConcurrentGetSameProfile(t *testing.T) {
	m := NewManager(testOptions(storage.NewMemory(), clock.NewManual(featureStart), nil))
	defer m.CloseAll()

	const n = 8
	results := make(chan *Workspace, n)
	for range n {
		go func() { results <- m.Get(context.Background(), "p") }()
	}
	first := <-results
	for range n - 1 {
		if w := <-results; w != first {
			t.Fatal("concurrent Get returned different workspaces for one profile")
		}
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func pngFile(t *testing.T) upload.File {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return upload.File{Name: "sig.png", ContentType: "image/png", Data: buf.Bytes()}
}
