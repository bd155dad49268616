// Package preview renders the read-only report projection of a draft and
// models the lifetime of the preview dialog.
package preview

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/giygas/medreport/entities"
)

const (
	Watermark = "SAMPLE — NOT A MEDICAL DOCUMENT"
	Banner    = "SAMPLE DATA ONLY — THIS IS A DEMO. NOT A MEDICAL DOCUMENT."
)

//go:embed templates/*.html
var templateFS embed.FS

// View is everything the report shows
type View struct {
	Draft       entities.Draft
	Logo        string // logo preview slot
	Signature   string // signature preview slot
	Handwriting bool
	CloseURL    string
	KeyURL      string
}

type page struct {
	View
	Watermark string
	Banner    string
}

// Renderer executes the embedded report template
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("preview").Funcs(template.FuncMap{
		"imgsrc":      imageSource,
		"inc":         func(i int) int { return i + 1 },
		"displayDate": displayDate,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse preview templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render writes the full preview page. The watermark and disclaimers are
// always present, whatever the draft holds.
func (r *Renderer) Render(w io.Writer, v View) error {
	if v.CloseURL == "" {
		v.CloseURL = "/preview/close"
	}
	if v.KeyURL == "" {
		v.KeyURL = "/preview/key"
	}

	// render to a buffer so a failing template never leaves half a page
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "report", page{View: v, Watermark: Watermark, Banner: Banner}); err != nil {
		return fmt.Errorf("render preview: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// imageSource only lets data:image/ URIs through as image sources
func imageSource(uri string) template.URL {
	if !strings.HasPrefix(uri, "data:image/") {
		return ""
	}
	return template.URL(uri)
}

func displayDate(s string) string {
	t, err := time.Parse(entities.DateLayout, s)
	if err != nil {
		return s
	}
	return t.Format("2 Jan 2006")
}
