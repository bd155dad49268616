package workspace

import (
	"context"
	"sync"
	"time"

	"github.com/giygas/medreport/clock"
	"github.com/giygas/medreport/metrics"
)

// Manager keeps one workspace per profile id
type Manager struct {
	opts Options

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewManager returns a manager creating workspaces with opts
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Wall()
	}
	return &Manager{opts: opts, workspaces: make(map[string]*Workspace)}
}

// Get returns the workspace of profileID, creating and restoring it on first
// use. The restore reads the record store, so it runs without holding the
// manager lock; when two requests race for a new profile the first one stored wins.
func (m *Manager) Get(ctx context.Context, profileID string) *Workspace {
	return m.get(ctx, profileID, false)
}

// Acquire is Get for the duration of a request: the workspace is pinned until
// release is called, and Sweep never evicts a pinned workspace. release marks
// the workspace as used and may be called more than once.
func (m *Manager) Acquire(ctx context.Context, profileID string) (*Workspace, func()) {
	w := m.get(ctx, profileID, true)
	var once sync.Once
	return w, func() {
		once.Do(func() {
			m.mu.Lock()
			w.leases--
			m.mu.Unlock()
			w.Touch()
		})
	}
}

// get looks up or builds the workspace; pinning happens under m.mu so a
// concurrent Sweep sees the lease before it can evict.
func (m *Manager) get(ctx context.Context, profileID string, pin bool) *Workspace {
	m.mu.Lock()
	if w, ok := m.workspaces[profileID]; ok {
		m.claim(w, pin)
		m.mu.Unlock()
		return w
	}
	m.mu.Unlock()

	fresh := New(ctx, profileID, m.opts)

	m.mu.Lock()
	if w, ok := m.workspaces[profileID]; ok {
		m.claim(w, pin)
		m.mu.Unlock()
		fresh.Close()
		return w
	}
	m.workspaces[profileID] = fresh
	m.claim(fresh, pin)
	metrics.ActiveWorkspaces.Set(float64(len(m.workspaces)))
	m.mu.Unlock()
	return fresh
}

// claim must be called with m.mu held
func (m *Manager) claim(w *Workspace, pin bool) {
	w.Touch()
	if pin {
		w.leases++
	}
}

// Lookup returns an existing workspace without creating one
func (m *Manager) Lookup(profileID string) (*Workspace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workspaces[profileID]
	return w, ok
}

// Len returns the number of live workspaces
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workspaces)
}

// Sweep closes and forgets workspaces unused for longer than idle. Workspaces
// pinned by Acquire are kept. It returns how many were evicted. Their pending
// autosaves are dropped.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.opts.Clock.Now().Add(-idle)

	m.mu.Lock()
	var evicted []*Workspace
	for id, w := range m.workspaces {
		if w.leases == 0 && w.LastSeen().Before(cutoff) {
			evicted = append(evicted, w)
			delete(m.workspaces, id)
		}
	}
	metrics.ActiveWorkspaces.Set(float64(len(m.workspaces)))
	m.mu.Unlock()

	for _, w := range evicted {
		w.Close()
	}
	return len(evicted)
}

// CloseAll unmounts every workspace, used on shutdown
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.workspaces
	m.workspaces = make(map[string]*Workspace)
	metrics.ActiveWorkspaces.Set(0)
	m.mu.Unlock()

	for _, w := range all {
		w.Close()
	}
}
