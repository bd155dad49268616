package health

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/giygas/medreport/storage"
)

type failingStore struct {
	*storage.Memory
	err error
}

func (f *failingStore) Ping(ctx context.Context) error { return f.err }

type fixedCounter int

func (c fixedCounter) Len() int { return int(c) }

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		latency    time.Duration
		wantStatus string
		wantHTTP   int
	}{
		{"healthy", nil, 3 * time.Millisecond, "healthy", http.StatusOK},
		{"slow storage", nil, SlowPingThreshold + time.Second, "degraded", http.StatusServiceUnavailable},
		{"storage down", errors.New("dial tcp: connection refused"), time.Millisecond, "unhealthy", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &failingStore{Memory: storage.NewMemory(), err: tt.pingErr}
			checker := NewHealthChecker(store, fixedCounter(3)).(*HealthCheckerImpl)
			checker.since = func(time.Time) time.Duration { return tt.latency }

			status, data, code := checker.HealthCheck(context.Background())
			if status != tt.wantStatus {
				t.Errorf("status = %s, want %s", status, tt.wantStatus)
			}
			if code != tt.wantHTTP {
				t.Errorf("http status = %d, want %d", code, tt.wantHTTP)
			}
			if data["storage_driver"] != "memory" {
				t.Errorf("storage_driver = %v", data["storage_driver"])
			}
			if data["workspaces"] != 3 {
				t.Errorf("workspaces = %v, want 3", data["workspaces"])
			}
			_, hasErr := data["storage_error"]
			if hasErr != (tt.pingErr != nil) {
				t.Errorf("storage_error present = %v", hasErr)
			}
			if data["storage_reachable"] != (tt.pingErr == nil) {
				t.Errorf("storage_reachable = %v", data["storage_reachable"])
			}
		})
	}
}

func TestHealthCheckWithoutWorkspaces(t *testing.T) {
	_, data, code := NewHealthChecker(storage.NewMemory(), nil).HealthCheck(context.Background())
	if code != http.StatusOK {
		t.Fatalf("http status = %d", code)
	}
	if _, ok := data["workspaces"]; ok {
		t.Error("workspaces should be omitted without a counter")
	}
}
