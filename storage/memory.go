package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/giygas/medreport/interfaces"
)

var _ interfaces.RecordStore = (*Memory)(nil)

// Memory keeps records in process memory
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
	writes  int
}

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte)}
}

func (m *Memory) Driver() string { return string(DriverMemory) }

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.records[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return slices.Clone(value), nil
}

func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	k, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[k] = slices.Clone(value)
	m.writes++
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	k, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, k)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// Writes returns how many Put calls succeeded
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Has reports whether a record exists for key
func (m *Memory) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[key]
	return ok
}
