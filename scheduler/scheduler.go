// Package scheduler runs the background housekeeping of the report service:
// evicting idle workspaces and watching the health of the draft store.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/giygas/medreport/interfaces"
	"github.com/giygas/medreport/logging"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// DefaultHealthInterval is how often the health monitor pings the store
const DefaultHealthInterval = 15 * time.Minute

// Sweeper evicts idle workspaces
type Sweeper interface {
	Sweep(idle time.Duration) int
	Len() int
}

// Config tunes the housekeeping jobs
type Config struct {
	SweepEvery     time.Duration
	IdleTimeout    time.Duration
	HealthInterval time.Duration
}

// Scheduler handles workspace eviction and health monitoring
type Scheduler struct {
	sweeper   Sweeper
	health    interfaces.HealthChecker
	cfg       Config
	scheduler *gocron.Scheduler
	logger    *slog.Logger

	unhealthyRuns atomic.Int64
}

// NewScheduler creates a new scheduler instance with injected dependencies
func NewScheduler(sweeper Sweeper, health interfaces.HealthChecker, cfg Config) *Scheduler {
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 5 * time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	return &Scheduler{
		sweeper:   sweeper,
		health:    health,
		cfg:       cfg,
		scheduler: gocron.NewScheduler(time.Local),
		logger:    logging.Logger().With("component", "scheduler"),
	}
}

// Start schedules the jobs and starts running them in the background
func (s *Scheduler) Start() error {
	s.scheduler.SingletonModeAll()

	_, err := s.scheduler.Every(s.cfg.SweepEvery).WaitForSchedule().Do(s.sweepIdle)
	if err != nil {
		s.logger.Error("Failed to schedule workspace sweep", "error", err)
		return fmt.Errorf("failed to schedule workspace sweep: %w", err)
	}

	if s.health != nil {
		_, err = s.scheduler.Every(s.cfg.HealthInterval).Do(s.checkHealth)
		if err != nil {
			s.logger.Error("Failed to schedule health monitoring", "error", err)
			return fmt.Errorf("failed to schedule health monitoring: %w", err)
		}
	}

	s.scheduler.StartAsync()
	s.logger.Info("Scheduler started",
		"sweep_every", s.cfg.SweepEvery.String(),
		"idle_timeout", s.cfg.IdleTimeout.String(),
	)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// Jobs returns the number of scheduled jobs
func (s *Scheduler) Jobs() int {
	return s.scheduler.Len()
}

// sweepIdle evicts workspaces nobody touched within the idle timeout
func (s *Scheduler) sweepIdle() {
	start := time.Now()
	evicted := s.sweeper.Sweep(s.cfg.IdleTimeout)
	if evicted > 0 {
		s.logger.Info("Evicted idle workspaces",
			"evicted", evicted,
			"remaining", s.sweeper.Len(),
			"duration", time.Since(start).String(),
		)
	}
}

// checkHealth logs when the draft store stops answering
func (s *Scheduler) checkHealth() {
	status, details, _ := s.health.HealthCheck(context.Background())
	if status == "healthy" {
		if n := s.unhealthyRuns.Swap(0); n > 0 {
			s.logger.Info("Draft storage recovered", "failed_checks", n)
		}
		return
	}
	n := s.unhealthyRuns.Add(1)
	s.logger.Warn("Draft storage is not healthy",
		"status", status,
		"consecutive", n,
		"details", details,
	)
}
