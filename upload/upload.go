// Package upload turns picked image files into data URIs for the logo and
// signature slots of a workspace.
//
// Files are accepted when their declared media type is image/*. Anything
// else is dropped without telling the user; the drop is only visible through
// the injected logger and the upload_rejections_total metric. Conversion runs
// in its own goroutine and never blocks draft edits.
package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strings"
	"sync"

	_ "image/gif"  // register decoders
	_ "image/jpeg" // for image.Decode

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/giygas/medreport/draft"
	"github.com/giygas/medreport/logging"
	"github.com/giygas/medreport/metrics"
)

const (
	DefaultMaxSize      = 5 << 20
	DefaultMaxDimension = 1024
)

// Slot names an upload target
type Slot string

const (
	SlotLogo      Slot = "logo"
	SlotSignature Slot = "signature"
)

var (
	ErrNotImage   = errors.New("upload: not an image")
	ErrTooLarge   = errors.New("upload: file too large")
	ErrEmptyFile  = errors.New("upload: empty file")
	ErrSuperseded = errors.New("upload: superseded by a newer upload")
)

// File is a picked file as received from the browser
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result is delivered once per Handle call
type Result struct {
	Slot    Slot
	DataURI string
	Err     error
}

// Accepted reports whether the upload landed in its slot
func (r Result) Accepted() bool { return r.Err == nil && r.DataURI != "" }

// Previews holds the current content of both slots
type Previews struct {
	Logo      string
	Signature string
}

// Handlers owns the preview slots of one workspace
type Handlers struct {
	store   *draft.Store
	logger  *slog.Logger
	maxSize int64
	maxDim  int

	mu    sync.Mutex
	slots map[Slot]string
	seq   map[Slot]uint64
}

// Option customises Handlers
type Option func(*Handlers)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handlers) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMaxSize bounds the accepted file size in bytes
func WithMaxSize(n int64) Option {
	return func(h *Handlers) {
		if n > 0 {
			h.maxSize = n
		}
	}
}

// WithMaxDimension sets the longest side images are scaled down to
func WithMaxDimension(px int) Option {
	return func(h *Handlers) {
		if px > 0 {
			h.maxDim = px
		}
	}
}

// New returns handlers writing logo uploads into store
func New(store *draft.Store, opts ...Option) *Handlers {
	h := &Handlers{
		store:   store,
		logger:  logging.Logger(),
		maxSize: DefaultMaxSize,
		maxDim:  DefaultMaxDimension,
		slots:   make(map[Slot]string),
		seq:     make(map[Slot]uint64),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "upload")
	return h
}

// HandleLogo converts f and stores it in the logo slot and in the draft's doctor logo
func (h *Handlers) HandleLogo(ctx context.Context, f File) <-chan Result {
	return h.handle(ctx, SlotLogo, f)
}

// HandleSignature converts f and stores it in the signature slot only.
// The signature image is not part of the draft and is lost on reload.
func (h *Handlers) HandleSignature(ctx context.Context, f File) <-chan Result {
	return h.handle(ctx, SlotSignature, f)
}

func (h *Handlers) handle(ctx context.Context, slot Slot, f File) <-chan Result {
	out := make(chan Result, 1)

	if err := h.accept(f); err != nil {
		h.reject(slot, f, err)
		out <- Result{Slot: slot, Err: err}
		close(out)
		return out
	}

	h.mu.Lock()
	h.seq[slot]++
	seq := h.seq[slot]
	h.mu.Unlock()

	go func() {
		defer close(out)
		uri, err := h.convert(ctx, f)
		if err != nil {
			h.logger.Warn("Image conversion failed", "slot", slot, "file", f.Name, "error", err)
			out <- Result{Slot: slot, Err: err}
			return
		}
		if err := h.assign(slot, seq, uri); err != nil {
			out <- Result{Slot: slot, Err: err}
			return
		}
		out <- Result{Slot: slot, DataURI: uri}
	}()
	return out
}

func (h *Handlers) accept(f File) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(f.ContentType)), "image/") {
		return fmt.Errorf("%w: %q", ErrNotImage, f.ContentType)
	}
	if len(f.Data) == 0 {
		return ErrEmptyFile
	}
	if int64(len(f.Data)) > h.maxSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(f.Data))
	}
	return nil
}

func (h *Handlers) reject(slot Slot, f File, err error) {
	reason := "not_image"
	switch {
	case errors.Is(err, ErrTooLarge):
		reason = "too_large"
	case errors.Is(err, ErrEmptyFile):
		reason = "empty"
	}
	metrics.UploadRejections.WithLabelValues(string(slot), reason).Inc()
	h.logger.Debug("Upload ignored", "slot", slot, "file", f.Name, "content_type", f.ContentType, "reason", reason)
}

// assign stores uri unless a newer upload or a Clear happened meanwhile.
// The draft write happens under h.mu so a Clear either precedes both writes
// or follows them; store listeners must not call back into Handlers.
func (h *Handlers) assign(slot Slot, seq uint64, uri string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seq[slot] != seq {
		return ErrSuperseded
	}
	if slot == SlotLogo {
		if err := h.store.UpdateField(draft.SectionDoctor, "logo", uri); err != nil {
			return err
		}
	}
	h.slots[slot] = uri
	return nil
}

// convert builds the data URI. Raster images larger than maxDim are scaled
// down and re-encoded as PNG; anything the decoders don't know (svg, ico) is
// embedded as uploaded.
func (h *Handlers) convert(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(f.ContentType, ";", 2)[0]))
	data := f.Data

	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err == nil && max(cfg.Width, cfg.Height) > h.maxDim {
		scaled, err := downscale(f.Data, h.maxDim)
		if err != nil {
			return "", err
		}
		data, mediaType = scaled, "image/png"
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// downscale fits the image into a maxDim square, keeping its aspect ratio
func downscale(data []byte, maxDim int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	w, hgt := b.Dx(), b.Dy()
	if w >= hgt {
		hgt = max(1, hgt*maxDim/w)
		w = maxDim
	} else {
		w = max(1, w*maxDim/hgt)
		hgt = maxDim
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, hgt))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Previews returns the current slot contents
func (h *Handlers) Previews() Previews {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Previews{Logo: h.slots[SlotLogo], Signature: h.slots[SlotSignature]}
}

// SeedLogo fills the logo slot from a restored draft without touching the draft
func (h *Handlers) SeedLogo(uri string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.slots[SlotLogo] = uri
}

// Clear empties both slots and discards conversions still in flight
func (h *Handlers) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.slots)
	h.seq[SlotLogo]++
	h.seq[SlotSignature]++
}
