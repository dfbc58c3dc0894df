package cache

import (
	"context"
	"slices"
	"sync"
)

// MemoryCache keeps entries for the life of the process.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]Entry
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]Entry)}
}

// Get returns the entry stored under key.
func (m *MemoryCache) Get(_ context.Context, key string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[key]
	if !ok {
		return Entry{}, false
	}
	e.Diagnostics = slices.Clone(e.Diagnostics)
	return e, true
}

// Put stores entry under key.
func (m *MemoryCache) Put(_ context.Context, key string, entry Entry) error {
	entry.Diagnostics = slices.Clone(entry.Diagnostics)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = entry
	return nil
}

// Delete removes key.
func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Clear removes every entry.
func (m *MemoryCache) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.items)
	return nil
}

// Len returns the number of entries.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

var _ Cache = (*MemoryCache)(nil)
