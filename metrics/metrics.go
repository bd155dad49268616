// Package metrics provides the Prometheus collectors of the report service.
//
// HTTP metrics are labelled by listener ("form" or "submission"):
//   - http_request_total: Counter with listener, method, path and status labels
//   - http_request_duration_seconds: Histogram with listener, method and path labels
//   - http_request_in_flight: Gauge of concurrent requests per listener
//
// Domain metrics track the draft lifecycle (autosave writes and failures,
// restore failures, upload rejections, preview opens, live workspaces).
//
// All collectors are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"listener", "method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"listener", "method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
		[]string{"listener"},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (clients seen in last ~5 minutes)",
		},
	)

	DraftAutosaveWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "draft_autosave_writes_total",
			Help: "Drafts written to the record store by the autosave debounce",
		},
	)

	DraftAutosaveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "draft_autosave_failures_total",
			Help: "Autosave writes that failed",
		},
	)

	DraftRestoreFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "draft_restore_failures_total",
			Help: "Stored drafts that could not be read or decoded",
		},
	)

	UploadRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_rejections_total",
			Help: "Uploaded files ignored, by slot and reason",
		},
		[]string{"slot", "reason"},
	)

	PreviewOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_open_total",
			Help: "Preview requests, by outcome (opened or blocked by validation)",
		},
		[]string{"outcome"},
	)

	ActiveWorkspaces = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workspaces_active",
			Help: "Profiles with a live workspace",
		},
	)

	SubmissionsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_received_total",
			Help: "Reports received by the submission endpoint, by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestTotals,
		HTTPRequestDuration,
		HTTPRequestInFlight,
		RateLimiterBucketsTotal,
		DraftAutosaveWrites,
		DraftAutosaveFailures,
		DraftRestoreFailures,
		UploadRejections,
		PreviewOpens,
		ActiveWorkspaces,
		SubmissionsReceived,
	)
}
