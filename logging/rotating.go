package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	filePrefix         = "report-"
	defaultMaxFileSize = 100 * 1024 * 1024
)

var numberedFile = regexp.MustCompile(`^report-\d{4}-W\d{2}_(\d{2})\.log$`)

// RotatingWriter writes to one log file per ISO week (report-2026-W42.log).
// When a file reaches maxSize a numbered sibling is opened
// (report-2026-W42_01.log). Files older than the retention window are
// removed by a daily background sweep.
type RotatingWriter struct {
	dir       string
	retention time.Duration
	maxSize   int64
	now       func() time.Time

	mu   sync.Mutex
	file *os.File
	week string
	size int64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRotatingWriter opens the current week's file in dir
func NewRotatingWriter(dir string, retentionWeeks int, maxSize int64) (*RotatingWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if maxSize <= 0 {
		maxSize = defaultMaxFileSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &RotatingWriter{
		dir:       dir,
		retention: time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxSize:   maxSize,
		now:       time.Now,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	w.mu.Lock()
	err := w.open(weekKey(w.now()), false)
	w.mu.Unlock()
	if err != nil {
		cancel()
		return nil, err
	}

	go w.sweepLoop(ctx)
	return w, nil
}

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// open switches to the file for week; caller holds mu
func (w *RotatingWriter) open(week string, full bool) error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	name := w.pickFile(week, full)
	path := filepath.Join(w.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}

	w.file = f
	w.week = week
	w.size = 0
	if info, err := f.Stat(); err == nil {
		w.size = info.Size()
	}
	return nil
}

// pickFile returns the base file of week, or the latest numbered file with room left
func (w *RotatingWriter) pickFile(week string, full bool) string {
	base := filePrefix + week + ".log"
	if !full {
		info, err := os.Stat(filepath.Join(w.dir, base))
		if err != nil || info.Size() < w.maxSize {
			return base
		}
	}

	matches, _ := filepath.Glob(filepath.Join(w.dir, filePrefix+week+"_??.log"))
	highest := 0
	var highestSize int64
	for _, m := range matches {
		sub := numberedFile.FindStringSubmatch(filepath.Base(m))
		if len(sub) < 2 {
			continue
		}
		n, _ := strconv.Atoi(sub[1])
		if n > highest {
			highest = n
			highestSize = 0
			if info, err := os.Stat(m); err == nil {
				highestSize = info.Size()
			}
		}
	}
	if highest > 0 && highestSize < w.maxSize && !full {
		return fmt.Sprintf("%s%s_%02d.log", filePrefix, week, highest)
	}
	return fmt.Sprintf("%s%s_%02d.log", filePrefix, week, highest+1)
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	week := weekKey(w.now())
	switch {
	case week != w.week:
		if err := w.open(week, false); err != nil {
			return 0, err
		}
	case w.size > 0 && w.size+int64(len(p)) > w.maxSize:
		if err := w.open(week, true); err != nil {
			return 0, err
		}
	}
	if w.file == nil {
		return 0, fmt.Errorf("no log file available")
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) sweepLoop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RemoveExpired(); err != nil {
				fmt.Fprintf(os.Stderr, "log cleanup failed: %v\n", err)
			}
		}
	}
}

// RemoveExpired deletes log files last modified before the retention window
// and returns how many were removed. The file currently written is kept.
func (w *RotatingWriter) RemoveExpired() (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("read log directory: %w", err)
	}

	w.mu.Lock()
	current := ""
	if w.file != nil {
		current = filepath.Base(w.file.Name())
	}
	w.mu.Unlock()

	cutoff := w.now().Add(-w.retention)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == current || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(w.dir, name)) == nil {
			removed++
		}
	}
	return removed, nil
}

// Close stops the sweep and closes the current file
func (w *RotatingWriter) Close() error {
	w.cancel()
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
