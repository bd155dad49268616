// Package health provides health checking functionality for the report service.
package health

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/giygas/medreport/interfaces"
)

// SlowPingThreshold marks the storage backend degraded when a ping takes longer
const SlowPingThreshold = 2 * time.Second

// pingTimeout bounds a single storage ping
const pingTimeout = 5 * time.Second

// WorkspaceCounter reports how many drafts are being edited
type WorkspaceCounter interface {
	Len() int
}

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	records    interfaces.RecordStore
	workspaces WorkspaceCounter
	since      func(time.Time) time.Duration
}

// NewHealthChecker creates a new health checker with injected dependencies
func NewHealthChecker(records interfaces.RecordStore, workspaces WorkspaceCounter) interfaces.HealthChecker {
	return &HealthCheckerImpl{
		records:    records,
		workspaces: workspaces,
		since:      time.Since,
	}
}

// HealthCheck pings the draft record store. An unreachable store leaves the
// form usable but drafts unsaved, which is reported as unhealthy.
func (h *HealthCheckerImpl) HealthCheck(ctx context.Context) (status string, data map[string]any, httpStatus int) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := h.records.Ping(ctx)
	latency := h.since(start)

	switch {
	case err != nil:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case latency > SlowPingThreshold:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"storage_driver":     h.records.Driver(),
		"storage_latency_ms": math.Round(float64(latency.Microseconds())/100) / 10,
		"storage_reachable":  err == nil,
	}
	if h.workspaces != nil {
		data["workspaces"] = h.workspaces.Len()
	}
	if err != nil {
		data["storage_error"] = err.Error()
	}

	return status, data, httpStatus
}
