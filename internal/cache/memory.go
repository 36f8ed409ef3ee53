package cache

import (
	"context"
	"sync"

	"github.com/opencontainers/go-digest"
)

// MemoryStore is an in-process Store. Entries do not survive the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[digest.Digest]Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[digest.Digest]Entry)}
}

func (m *MemoryStore) Lookup(_ context.Context, fp digest.Digest) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[fp]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MemoryStore) Upsert(_ context.Context, e Entry) error {
	m.mu.Lock()
	m.entries[e.Fingerprint] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, fp digest.Digest) error {
	m.mu.Lock()
	delete(m.entries, fp)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
