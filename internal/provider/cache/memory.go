package cache

import (
	"context"
	"sync"
)

// MemoryBackend keeps entries in a map guarded by one RWMutex.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]Entry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]Entry)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[key]
	return e, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Scan walks a snapshot so fn may call back into the backend.
func (m *MemoryBackend) Scan(_ context.Context, fn func(Entry) bool) error {
	m.mu.RLock()
	snap := make([]Entry, 0, len(m.items))
	for _, e := range m.items {
		snap = append(snap, e)
	}
	m.mu.RUnlock()
	for _, e := range snap {
		if !fn(e) {
			break
		}
	}
	return nil
}

// Len returns the number of stored entries, fresh or not.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
