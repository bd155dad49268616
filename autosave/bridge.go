// Package autosave keeps a draft.Store in sync with a durable record.
//
// A Bridge restores the stored draft once, then writes the draft back a fixed
// delay after the last edit (debounce). A successful write lights the "saved"
// indicator for a short while. Resetting deletes the record synchronously and
// puts the store back to its defaults without scheduling another write.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/giygas/medreport/clock"
	"github.com/giygas/medreport/draft"
	"github.com/giygas/medreport/entities"
	"github.com/giygas/medreport/interfaces"
	"github.com/giygas/medreport/logging"
	"github.com/giygas/medreport/metrics"
	"github.com/giygas/medreport/storage"
)

const (
	DefaultDelay          = 5 * time.Second
	DefaultSavedIndicator = 2 * time.Second
	defaultWriteTimeout   = 10 * time.Second
)

// Option customises a Bridge
type Option func(*Bridge)

// WithClock sets the clock used for the debounce and indicator timers
func WithClock(c clock.Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

// WithDelay sets the quiet period after the last edit before a write
func WithDelay(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.delay = d
		}
	}
}

// WithSavedIndicator sets how long the saved indicator stays on
func WithSavedIndicator(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.savedFor = d
		}
	}
}

// WithLogger sets the logger for restore and write failures
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bridge debounces edits of one store into writes of one record key
type Bridge struct {
	store    *draft.Store
	records  interfaces.RecordStore
	key      string
	clock    clock.Clock
	delay    time.Duration
	savedFor time.Duration
	logger   *slog.Logger

	// writeMu orders record writes against Reset's delete
	writeMu sync.Mutex

	mu         sync.Mutex
	gen        uint64
	pending    clock.Timer
	saved      bool
	savedGen   uint64
	savedTimer clock.Timer
	lastSaved  time.Time
	stopped    bool

	sub *draft.Subscription
}

// NewBridge starts listening to store edits. Call Stop to detach it.
func NewBridge(store *draft.Store, records interfaces.RecordStore, key string, opts ...Option) *Bridge {
	b := &Bridge{
		store:    store,
		records:  records,
		key:      key,
		clock:    clock.Wall(),
		delay:    DefaultDelay,
		savedFor: DefaultSavedIndicator,
		logger:   logging.Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "autosave", "key", key)
	b.sub = store.Subscribe(b.onChange)
	return b
}

// Restore loads the stored draft into the store. It reports whether a draft
// was restored; a missing, unreadable or incompatible record leaves the
// defaults in place.
func (b *Bridge) Restore(ctx context.Context) bool {
	data, err := b.records.Get(ctx, b.key)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		b.logger.Warn("Failed to read saved draft", "error", err)
		metrics.DraftRestoreFailures.Inc()
		return false
	}

	d, err := entities.DecodeDraft(data)
	if err != nil {
		b.logger.Warn("Ignoring saved draft", "error", err, "bytes", len(data))
		metrics.DraftRestoreFailures.Inc()
		return false
	}

	b.store.Replace(d)
	b.logger.Debug("Draft restored", "prescriptions", len(d.Prescriptions))
	return true
}

// onChange runs under the store's write lock; it must not call back into the store
func (b *Bridge) onChange(c draft.Change) {
	if c.Kind != draft.ChangeEdit {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	if b.pending != nil {
		b.pending.Stop()
	}
	b.gen++
	gen := b.gen
	b.pending = b.clock.AfterFunc(b.delay, func() { b.flush(gen) })
}

// flush writes the current draft if no newer edit or reset superseded gen
func (b *Bridge) flush(gen uint64) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	if b.stopped || gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.pending = nil
	b.mu.Unlock()

	snapshot := b.store.Snapshot()
	data, err := entities.EncodeDraft(snapshot)
	if err != nil {
		b.logger.Error("Failed to encode draft", "error", err)
		metrics.DraftAutosaveFailures.Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()
	if err := b.records.Put(ctx, b.key, data); err != nil {
		b.logger.Error("Autosave failed", "driver", b.records.Driver(), "error", err)
		metrics.DraftAutosaveFailures.Inc()
		return
	}
	metrics.DraftAutosaveWrites.Inc()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.saved = true
	b.lastSaved = b.clock.Now()
	if b.savedTimer != nil {
		b.savedTimer.Stop()
	}
	b.savedGen++
	sg := b.savedGen
	b.savedTimer = b.clock.AfterFunc(b.savedFor, func() { b.clearSaved(sg) })
}

func (b *Bridge) clearSaved(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen == b.savedGen {
		b.saved = false
		b.savedTimer = nil
	}
}

// Saved reports whether the saved indicator is on
func (b *Bridge) Saved() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saved
}

// Pending reports whether a write is scheduled
func (b *Bridge) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending != nil
}

// LastSaved returns the time of the last successful write, zero if none
func (b *Bridge) LastSaved() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSaved
}

// Reset cancels any scheduled write, turns the saved indicator off, deletes
// the stored record and resets the store to its defaults. The store is reset
// even when the delete fails.
func (b *Bridge) Reset(ctx context.Context) error {
	b.mu.Lock()
	b.gen++
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
	if b.savedTimer != nil {
		b.savedTimer.Stop()
		b.savedTimer = nil
	}
	b.saved = false
	b.savedGen++
	b.mu.Unlock()

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	err := b.records.Delete(ctx, b.key)
	if err != nil {
		b.logger.Error("Failed to delete saved draft", "error", err)
	}
	b.store.Reset()
	return err
}

// Stop detaches the bridge. A scheduled write is dropped, not flushed.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.gen++
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
	if b.savedTimer != nil {
		b.savedTimer.Stop()
		b.savedTimer = nil
	}
	b.saved = false
	b.mu.Unlock()

	b.sub.Cancel()
}
