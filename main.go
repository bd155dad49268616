package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	medcatalog "github.com/giygas/medreport/catalog"
	"github.com/giygas/medreport/config"
	"github.com/giygas/medreport/entities"
	"github.com/giygas/medreport/handlers"
	"github.com/giygas/medreport/health"
	"github.com/giygas/medreport/logging"
	"github.com/giygas/medreport/scheduler"
	"github.com/giygas/medreport/server"
	"github.com/giygas/medreport/storage"
	"github.com/giygas/medreport/submission"
	"github.com/giygas/medreport/validation"
	"github.com/giygas/medreport/workspace"
)

func init() {
	// Get the working directory and read the env variables
	if err := godotenv.Load(); err != nil {
		// If failed, try loading from executable directory
		ex, err := os.Executable()
		if err != nil {
			slog.Error("Failed to get executable path", "error", err)
			os.Exit(1)
		}
		if err := os.Chdir(filepath.Dir(ex)); err != nil {
			slog.Error("Failed to change directory", "error", err)
			os.Exit(1)
		}
		_ = godotenv.Load()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logCloser, _ := logging.InitLogger(logging.Options{
		Dir:            cfg.LogDir,
		Level:          level,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	defer func() { _ = logCloser.Close() }()

	logging.Info("Configuration loaded",
		"env", cfg.Env.String(),
		"storage", cfg.StorageDriver,
		"submission_url", cfg.SubmissionBaseURL)

	ctx := context.Background()

	records, err := storage.Open(ctx, storage.Options{
		Driver:      storage.Driver(cfg.StorageDriver),
		FSRoot:      cfg.StorageFSRoot,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		S3: storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		},
	})
	if err != nil {
		logging.Error("Failed to open record store", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer func() { _ = records.Close() }()

	catalog, err := medcatalog.Load(ctx, cfg.CatalogSource, logging.Logger())
	if err != nil {
		logging.Error("Failed to load medication catalog, using the built-in list", "source", cfg.CatalogSource, "error", err)
		catalog = entities.DefaultCatalog()
	}
	validator := validation.NewDraftValidator()

	manager := workspace.NewManager(workspace.Options{
		Catalog:           catalog,
		IDPolicy:          cfg.IDPolicy,
		Records:           records,
		Validator:         validator,
		Submitter:         submission.NewClient(cfg.SubmissionBaseURL),
		Logger:            logging.Logger(),
		AutosaveDelay:     cfg.AutosaveDelay,
		SavedIndicator:    cfg.SavedIndicatorDuration,
		MaxUploadSize:     cfg.MaxUploadSize,
		MaxImageDimension: cfg.MaxImageDimension,
	})

	checker := health.NewHealthChecker(records, manager)

	h, err := handlers.NewHTTPHandler(handlers.Options{
		Workspaces:    manager,
		Validator:     validator,
		Health:        checker,
		Catalog:       catalog,
		MaxUploadSize: cfg.MaxUploadSize,
	})
	if err != nil {
		logging.Error("Failed to create HTTP handler", "error", err)
		os.Exit(1)
	}

	servers := []*server.Server{server.NewServer(cfg, h)}
	if cfg.SubmissionPort != "" {
		receiver := submission.NewReceiver(logging.Logger())
		servers = append(servers, server.NewSubmissionServer(cfg, receiver))
	}

	sched := scheduler.NewScheduler(manager, checker, scheduler.Config{
		SweepEvery:  time.Duration(cfg.SweepIntervalMinutes) * time.Minute,
		IdleTimeout: cfg.WorkspaceIdleTimeout,
	})
	if err := sched.Start(); err != nil {
		logging.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	failed := make(chan error, len(servers))
	for _, s := range servers {
		go func() {
			if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				failed <- fmt.Errorf("%s: %w", s.Addr(), err)
			}
		}()
	}

	exitCode := 0
	select {
	case sig := <-quit:
		logging.Info("Received signal", "signal", sig.String())
	case err := <-failed:
		logging.Error("Server failed to start", "error", err)
		exitCode = 1
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Go(func() { _ = s.Shutdown(shutdownCtx) })
	}
	wg.Wait()

	// pending autosaves are dropped, like a closed browser tab
	manager.CloseAll()

	logging.Info("Shutdown complete")
	if exitCode != 0 {
		_ = records.Close()
		_ = logCloser.Close()
		os.Exit(exitCode)
	}
}
