package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestGetTokenCost(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		expectedCost int64
	}{
		{"Metrics are free", "/metrics", 0},
		{"Favicon is free", "/favicon.ico", 0},
		{"Health endpoint", "/health", 5},
		{"Form page", "/", 2},
		{"Preview page", "/preview", 2},

		{"Form logo upload", "/form/logo", 100},
		{"Form signature upload", "/form/signature", 100},
		{"API logo upload", "/api/draft/logo", 100},
		{"API signature upload", "/api/draft/signature-image", 100},

		{"Form submit", "/form/submit", 50},
		{"API submit", "/api/submit", 50},
		{"Form export", "/form/export", 20},
		{"API export", "/api/export", 20},
		{"Form preview", "/form/preview", 5},
		{"API preview", "/api/preview", 5},

		// field edits stay cheap
		{"API field update", "/api/draft/field", 1},
		{"API rx", "/api/draft/rx", 1},
		{"API prescription", "/api/draft/prescriptions/3", 1},
		{"Preview close", "/api/preview/close", 1},
		{"Catalog search", "/api/catalog", 1},
		{"Unknown", "/unknown", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, nil)
			if cost := getTokenCost(req); cost != tt.expectedCost {
				t.Errorf("Expected cost %d for path %s, got %d", tt.expectedCost, tt.path, cost)
			}
		})
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_Headers(t *testing.T) {
	rl := NewRateLimiter(bucketRate, bucketCapacity)
	handler := rl.Handler(okHandler())

	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "203.0.113.7"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != strconv.Itoa(bucketCapacity) {
		t.Errorf("Expected X-RateLimit-Limit %d, got %q", bucketCapacity, got)
	}
	if got := rr.Header().Get("X-RateLimit-Rate"); got != "3" {
		t.Errorf("Expected X-RateLimit-Rate 3, got %q", got)
	}
	remaining, err := strconv.Atoi(rr.Header().Get("X-RateLimit-Remaining"))
	if err != nil {
		t.Fatalf("X-RateLimit-Remaining is not a number: %v", err)
	}
	// refill may add a token or two between the take and the read
	if remaining < bucketCapacity-5 || remaining > bucketCapacity {
		t.Errorf("Expected about %d tokens remaining, got %d", bucketCapacity-5, remaining)
	}
}

func TestRateLimiter_Exhausted(t *testing.T) {
	rl := NewRateLimiter(0.001, 150)
	handler := rl.Handler(okHandler())

	upload := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/draft/logo", nil)
		req.RemoteAddr = "198.51.100.1"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := upload(); rr.Code != http.StatusOK {
		t.Fatalf("First upload should pass, got %d", rr.Code)
	}

	rr := upload()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Second upload should be limited, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("Expected no remaining tokens, got %q", rr.Header().Get("X-RateLimit-Remaining"))
	}

	// the rejected upload drained what was left
	req := httptest.NewRequest("POST", "/api/draft/field", nil)
	req.RemoteAddr = "198.51.100.1"
	cheap := httptest.NewRecorder()
	handler.ServeHTTP(cheap, req)
	if cheap.Code != http.StatusTooManyRequests {
		t.Errorf("Field update should be limited too, got %d", cheap.Code)
	}

	// other clients have their own bucket
	req = httptest.NewRequest("POST", "/api/draft/logo", nil)
	req.RemoteAddr = "198.51.100.2"
	other := httptest.NewRecorder()
	handler.ServeHTTP(other, req)
	if other.Code != http.StatusOK {
		t.Errorf("Other client should not be limited, got %d", other.Code)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(bucketRate, bucketCapacity)
	handler := rl.Handler(okHandler())

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest("GET", "/metrics", nil)
		req.RemoteAddr = ip
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	req := httptest.NewRequest("POST", "/api/submit", nil)
	req.RemoteAddr = "10.0.0.3"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if rl.Clients() != 3 {
		t.Fatalf("Expected 3 clients, got %d", rl.Clients())
	}

	// free requests leave the bucket full, so those clients go away
	if removed := rl.Cleanup(); removed != 2 {
		t.Errorf("Expected 2 buckets removed, got %d", removed)
	}
	if rl.Clients() != 1 {
		t.Errorf("Expected 1 client left, got %d", rl.Clients())
	}
}

func TestRateLimiter_RunCleanupStops(t *testing.T) {
	rl := NewRateLimiter(bucketRate, bucketCapacity)
	rl.getBucket("10.0.0.9")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.RunCleanup(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for rl.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rl.Clients() != 0 {
		t.Error("Idle bucket should have been cleaned up")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("RunCleanup should return when the context is canceled")
	}
}

func BenchmarkRateLimiterHandler(b *testing.B) {
	rl := NewRateLimiter(1e9, 1e12)
	handler := rl.Handler(okHandler())
	req := httptest.NewRequest("POST", "/api/draft/field", nil)
	req.RemoteAddr = "10.1.1.1"

	b.ResetTimer()
	for b.Loop() {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}
