package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count, latency and concurrency for one listener.
// Paths are reported as chi route patterns to keep label cardinality bounded.
func Middleware(listener string) func(http.Handler) http.Handler {
	inFlight := HTTPRequestInFlight.WithLabelValues(listener)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			inFlight.Inc()
			defer inFlight.Dec()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			path := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}

			HTTPRequestTotals.WithLabelValues(listener, r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			HTTPRequestDuration.WithLabelValues(listener, r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}
