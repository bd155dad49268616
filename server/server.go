// Package server provides HTTP server management and lifecycle handling for the
// report form service and its submission collaborator: server setup, middleware,
// routes and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giygas/medreport/config"
	"github.com/giygas/medreport/interfaces"
	"github.com/giygas/medreport/logging"
	"github.com/giygas/medreport/metrics"
	"github.com/giygas/medreport/submission"
)

const rateLimiterCleanupInterval = 30 * time.Minute

// Server represents one HTTP listener
type Server struct {
	name    string
	server  *http.Server
	router  chi.Router
	config  *config.Config
	limiter *RateLimiter

	stopCleanup context.CancelFunc
}

func newServer(name string, cfg *config.Config, port string) *Server {
	router := chi.NewRouter()
	return &Server{
		name: name,
		server: &http.Server{
			Handler:           router,
			Addr:              net.JoinHostPort(cfg.Address, port),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    int(cfg.MaxHeaderSize),
		},
		router: router,
		config: cfg,
	}
}

// NewServer creates the form service server
func NewServer(cfg *config.Config, h interfaces.HTTPHandler) *Server {
	s := newServer("form", cfg, cfg.Port)
	s.limiter = NewRateLimiter(bucketRate, bucketCapacity)

	s.setupMiddleware()
	s.setupRoutes(h)

	return s
}

// NewSubmissionServer creates the listener of the submission collaborator
func NewSubmissionServer(cfg *config.Config, receiver *submission.Receiver) *Server {
	s := newServer("submission", cfg, cfg.SubmissionPort)

	s.router.Use(middleware.RequestID)
	s.router.Use(RealIPMiddleware)
	s.router.Use(metrics.Middleware(s.name))
	s.router.Use(logging.LoggingMiddleware(logging.Logger()))
	s.router.Use(s.corsHandler())
	s.router.Use(RequestSizeMiddleware(cfg))
	receiver.Routes(s.router)

	return s
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	if s.config.Env == config.EnvProduction {
		s.router.Use(BlockDirectAccessMiddleware) // before RealIPMiddleware to see the original RemoteAddr
	}
	s.router.Use(RealIPMiddleware)
	s.router.Use(metrics.Middleware(s.name))
	s.router.Use(logging.LoggingMiddleware(logging.Logger()))
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestSizeMiddleware(s.config))
	s.router.Use(s.limiter.Handler)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(h interfaces.HTTPHandler) {
	// Form pages
	s.router.Get("/", h.ServeForm)
	s.router.Post("/form", h.SaveForm)
	s.router.Post("/form/*", h.FormAction)
	s.router.Get("/preview", h.ServePreview)
	s.router.Post("/preview/close", h.ClosePreviewForm)
	s.router.Post("/preview/key", h.ClosePreviewForm)

	// JSON API
	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.corsHandler())

		r.Get("/draft", h.GetDraft)
		r.Post("/draft/field", h.UpdateField)
		r.Put("/draft/rx", h.SetText)
		r.Put("/draft/diagnosis", h.SetText)
		r.Put("/draft/signature", h.SetText)
		r.Post("/draft/prescriptions", h.AddPrescription)
		r.Post("/draft/prescriptions/catalog", h.AddFromCatalog)
		r.Patch("/draft/prescriptions/{id}", h.UpdatePrescription)
		r.Delete("/draft/prescriptions/{id}", h.RemovePrescription)
		r.Post("/draft/logo", h.UploadLogo)
		r.Post("/draft/signature-image", h.UploadSignature)
		r.Post("/draft/reset", h.ResetDraft)
		r.Post("/preview", h.OpenPreview)
		r.Post("/preview/close", h.ClosePreview)
		r.Post("/preview/key", h.PreviewKey)
		r.Post("/export", h.Export)
		r.Post("/submit", h.Submit)
		r.Get("/catalog", h.SearchCatalog)
	})

	s.router.Get("/health", h.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

// Handler returns the root handler, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start listens and serves until Shutdown. It returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	if s.name == "form" && s.config.Env == config.EnvDevelopment {
		s.startProfilingServer()
	}
	if s.limiter != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopCleanup = cancel
		go s.limiter.RunCleanup(ctx, rateLimiterCleanupInterval)
	}

	logging.Info("Starting server", "server", s.name, "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Serve serves on an existing listener, used by tests to bind port 0
func (s *Server) Serve(l net.Listener) error {
	logging.Info("Starting server", "server", s.name, "addr", l.Addr().String())
	return s.server.Serve(l)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...", "server", s.name)

	if s.stopCleanup != nil {
		s.stopCleanup()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "server", s.name, "error", err)
		if cerr := s.server.Close(); cerr != nil && !errors.Is(cerr, http.ErrServerClosed) {
			logging.Error("Server close error", "server", s.name, "error", cerr)
			return cerr
		}
		return err
	}

	logging.Info("Server shutdown complete", "server", s.name)
	return nil
}

// startProfilingServer starts the pprof profiling server in development mode
func (s *Server) startProfilingServer() {
	go func() {
		logging.Info("Profiling server started at http://localhost:6060/debug/pprof/")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			logging.Warn(fmt.Sprintf("Profiling server failed: %v", err))
		}
	}()
}
