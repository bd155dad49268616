// Package logging sets up the service's slog logger: human readable text on
// the console and JSON lines in a weekly rotating file.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Options configures the logger built by New
type Options struct {
	Dir            string
	Level          slog.Level
	RetentionWeeks int
	MaxFileSize    int64
	Console        io.Writer // defaults to os.Stdout
}

var current atomic.Pointer[slog.Logger]

// ParseLevel maps a LOG_LEVEL value to a slog level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// New builds a logger writing to the console and, when opts.Dir is set, to a
// rotating file. The returned closer releases the file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	consoleHandler := slog.NewTextHandler(console, handlerOpts)

	if opts.Dir == "" {
		return slog.New(consoleHandler), io.NopCloser(nil), nil
	}

	rw, err := NewRotatingWriter(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
	if err != nil {
		return slog.New(consoleHandler), io.NopCloser(nil), err
	}
	h := &multiHandler{handlers: []slog.Handler{consoleHandler, slog.NewJSONHandler(rw, handlerOpts)}}
	return slog.New(h), rw, nil
}

// InitLogger installs the process-wide logger. When the log directory can't be
// used it falls back to console output and returns the error.
func InitLogger(opts Options) (io.Closer, error) {
	logger, closer, err := New(opts)
	SetLogger(logger)
	if err != nil {
		logger.Error("File logging disabled", "dir", opts.Dir, "error", err)
	}
	return closer, err
}

// SetLogger replaces the process-wide logger
func SetLogger(l *slog.Logger) {
	current.Store(l)
	slog.SetDefault(l)
}

// Logger returns the process-wide logger, for components that take an injected *slog.Logger
func Logger() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }
func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }

// multiHandler fans records out to several handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
