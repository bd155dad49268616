package scheduler

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"
)

type mockSweeper struct {
	mu       sync.Mutex
	calls    int
	lastIdle time.Duration
	evict    int
	live     int
}

func (m *mockSweeper) Sweep(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastIdle = idle
	m.live -= m.evict
	return m.evict
}

func (m *mockSweeper) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

type mockHealth struct {
	status string
	calls  int
}

func (m *mockHealth) HealthCheck(ctx context.Context) (string, map[string]any, int) {
	m.calls++
	if m.status == "healthy" {
		return m.status, map[string]any{}, http.StatusOK
	}
	return m.status, map[string]any{"storage_error": "down"}, http.StatusServiceUnavailable
}

func TestScheduler_Defaults(t *testing.T) {
	s := NewScheduler(&mockSweeper{}, nil, Config{})
	if s.cfg.SweepEvery != 5*time.Minute {
		t.Errorf("SweepEvery = %s", s.cfg.SweepEvery)
	}
	if s.cfg.IdleTimeout != 30*time.Minute {
		t.Errorf("IdleTimeout = %s", s.cfg.IdleTimeout)
	}
	if s.cfg.HealthInterval != DefaultHealthInterval {
		t.Errorf("HealthInterval = %s", s.cfg.HealthInterval)
	}
}

func TestScheduler_SweepUsesIdleTimeout(t *testing.T) {
	sw := &mockSweeper{evict: 2, live: 5}
	s := NewScheduler(sw, nil, Config{IdleTimeout: 10 * time.Minute})

	s.sweepIdle()

	if sw.calls != 1 || sw.lastIdle != 10*time.Minute {
		t.Errorf("sweep called %d times with %s", sw.calls, sw.lastIdle)
	}
	if sw.Len() != 3 {
		t.Errorf("remaining = %d, want 3", sw.Len())
	}
}

func TestScheduler_HealthMonitorCountsFailures(t *testing.T) {
	h := &mockHealth{status: "unhealthy"}
	s := NewScheduler(&mockSweeper{}, h, Config{})

	s.checkHealth()
	s.checkHealth()
	if got := s.unhealthyRuns.Load(); got != 2 {
		t.Fatalf("unhealthy runs = %d, want 2", got)
	}

	h.status = "healthy"
	s.checkHealth()
	if got := s.unhealthyRuns.Load(); got != 0 {
		t.Errorf("unhealthy runs after recovery = %d, want 0", got)
	}
	if h.calls != 3 {
		t.Errorf("health checked %d times", h.calls)
	}
}

func TestScheduler_StartSchedulesJobs(t *testing.T) {
	tests := []struct {
		name   string
		health *mockHealth
		want   int
	}{
		{"sweep only", nil, 1},
		{"sweep and health", &mockHealth{status: "healthy"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s *Scheduler
			if tt.health != nil {
				s = NewScheduler(&mockSweeper{}, tt.health, Config{SweepEvery: time.Hour, HealthInterval: time.Hour})
			} else {
				s = NewScheduler(&mockSweeper{}, nil, Config{SweepEvery: time.Hour})
			}
			if err := s.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			defer s.Stop()

			if s.Jobs() != tt.want {
				t.Errorf("jobs = %d, want %d", s.Jobs(), tt.want)
			}
		})
	}
}

func TestScheduler_SweepRunsOnSchedule(t *testing.T) {
	sw := &mockSweeper{}
	s := NewScheduler(sw, nil, Config{SweepEvery: time.Second})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sw.mu.Lock()
		calls := sw.calls
		sw.mu.Unlock()
		if calls > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("sweep never ran")
}
