package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, closer, err := New(Options{Dir: dir, Level: slog.LevelInfo, RetentionWeeks: 1, Console: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("draft saved", "profile", "p1")
	logger.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !strings.Contains(console.String(), "draft saved") {
		t.Errorf("console missing record: %q", console.String())
	}
	if strings.Contains(console.String(), "hidden") {
		t.Error("debug record should be filtered at info level")
	}

	data, err := os.ReadFile(filepath.Join(dir, "report-"+weekKey(time.Now())+".log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("file line is not JSON: %v (%q)", err, data)
	}
	if rec["msg"] != "draft saved" || rec["profile"] != "p1" {
		t.Errorf("unexpected file record %v", rec)
	}
}

func TestNewConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := New(Options{Console: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()
	logger.Warn("careful")
	if !strings.Contains(console.String(), "careful") {
		t.Errorf("expected console output, got %q", console.String())
	}
}

func TestPackageHelpersUseInstalledLogger(t *testing.T) {
	prev := Logger()
	defer SetLogger(prev)

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	Info("one")
	Warn("two")
	Error("three")
	Debug("four")

	for _, msg := range []string{"one", "two", "three", "four"} {
		if !strings.Contains(buf.String(), "msg="+msg) {
			t.Errorf("missing %q in %q", msg, buf.String())
		}
	}
}

func TestRotatingWriterSizeRotation(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRotatingWriter(dir, 1, 64)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	line := []byte(strings.Repeat("x", 40) + "\n")
	for range 3 {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	week := weekKey(time.Now())
	for _, name := range []string{"report-" + week + ".log", "report-" + week + "_01.log", "report-" + week + "_02.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestRotatingWriterWeekRollover(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRotatingWriter(dir, 1, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	next := time.Now().Add(8 * 24 * time.Hour)
	w.mu.Lock()
	w.now = func() time.Time { return next }
	w.mu.Unlock()

	if _, err := w.Write([]byte("later\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "report-"+weekKey(next)+".log")); err != nil {
		t.Errorf("expected next week's file: %v", err)
	}
}

func TestRotatingWriterRemoveExpired(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRotatingWriter(dir, 1, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	old := filepath.Join(dir, "report-2001-W01.log")
	unrelated := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, unrelated} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		stale := time.Now().Add(-30 * 24 * time.Hour)
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := w.RemoveExpired()
	if err != nil {
		t.Fatalf("RemoveExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed %d files, want 1", removed)
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("files without the report- prefix must be kept")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := middleware.RequestID(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/draft/prescriptions?x=1", nil))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["status_code"] != float64(http.StatusCreated) {
		t.Errorf("status_code = %v", rec["status_code"])
	}
	if rec["bytes_written"] != float64(2) {
		t.Errorf("bytes_written = %v", rec["bytes_written"])
	}
	if rec["query"] != "x=1" {
		t.Errorf("query = %v", rec["query"])
	}
	if id, _ := rec["request_id"].(string); id == "" || id == "unknown" {
		t.Errorf("expected chi request id, got %v", rec["request_id"])
	}
}

func TestLoggingMiddlewareSkipsQuietPaths(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, p := range []string{"/health", "/metrics"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log lines for health polling, got %q", buf.String())
	}
}
