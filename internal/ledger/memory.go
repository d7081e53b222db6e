package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps the ledger in process memory. Used for dry runs and tests.
type MemoryBackend struct {
	mu     sync.RWMutex
	names  map[string]struct{}
	order  []string
	marker time.Time
	set    bool
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{names: make(map[string]struct{})}
}

func (m *MemoryBackend) Contains(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.names[name]
	return ok, nil
}

func (m *MemoryBackend) Append(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.names[name]; ok {
		return nil
	}
	m.names[name] = struct{}{}
	m.order = append(m.order, name)
	return nil
}

func (m *MemoryBackend) Marker(_ context.Context) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.marker, m.set, nil
}

func (m *MemoryBackend) SetMarker(_ context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marker, m.set = t, true
	return nil
}

func (m *MemoryBackend) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.names), nil
}

// Names returns recorded names in append order.
func (m *MemoryBackend) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}
