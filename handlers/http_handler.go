package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/giygas/medreport/entities"
	"github.com/giygas/medreport/interfaces"
	"github.com/giygas/medreport/preview"
	"github.com/giygas/medreport/upload"
	"github.com/giygas/medreport/validation"
	"github.com/giygas/medreport/workspace"
)

//go:embed templates/*.html
var templateFS embed.FS

var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// Options are the dependencies of the handler set
type Options struct {
	Workspaces    *workspace.Manager
	Validator     interfaces.DraftValidator
	Health        interfaces.HealthChecker
	Catalog       entities.Catalog
	MaxUploadSize int64
}

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	workspaces *workspace.Manager
	validator  interfaces.DraftValidator
	health     interfaces.HealthChecker
	catalog    entities.Catalog
	maxUpload  int64
	form       *template.Template
	report     *preview.Renderer
	startTime  time.Time
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(opts Options) (interfaces.HTTPHandler, error) {
	if opts.Workspaces == nil {
		return nil, fmt.Errorf("handlers: workspace manager is required")
	}
	if opts.Validator == nil {
		opts.Validator = validation.NewDraftValidator()
	}
	if opts.Catalog == nil {
		opts.Catalog = entities.DefaultCatalog()
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = upload.DefaultMaxSize
	}

	form, err := template.New("form").Funcs(template.FuncMap{
		"imgsrc": formImageSource,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse form templates: %w", err)
	}
	report, err := preview.NewRenderer()
	if err != nil {
		return nil, err
	}

	return &HTTPHandlerImpl{
		workspaces: opts.Workspaces,
		validator:  opts.Validator,
		health:     opts.Health,
		catalog:    opts.Catalog,
		maxUpload:  opts.MaxUploadSize,
		form:       form,
		report:     report,
		startTime:  time.Now(),
	}, nil
}

// workspace returns the workspace of the requesting profile, held until done
// is called so an idle sweep can't close it mid-request
func (h *HTTPHandlerImpl) workspace(w http.ResponseWriter, r *http.Request) (ws *workspace.Workspace, done func()) {
	return h.workspaces.Acquire(r.Context(), profileID(w, r))
}

func formImageSource(uri string) template.URL {
	if !strings.HasPrefix(uri, "data:image/") {
		return ""
	}
	return template.URL(uri)
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

// HealthCheck returns server health information
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.startTime)

	status, data, httpStatus := "healthy", map[string]any{}, http.StatusOK
	if h.health != nil {
		status, data, httpStatus = h.health.HealthCheck(r.Context())
	}

	response := HealthResponse{
		Status:        status,
		Uptime:        formatUptimeHuman(uptime),
		UptimeSeconds: uptime.Seconds(),
		Data:          data,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       int(m.Alloc / 1024 / 1024),
				"total_alloc_mb": int(m.TotalAlloc / 1024 / 1024),
				"sys_mb":         int(m.Sys / 1024 / 1024),
				"num_gc":         m.NumGC,
			},
		},
	}

	RespondWithJSON(w, httpStatus, response)
}
