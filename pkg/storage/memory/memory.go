// Package memory implements pkg/storage.Backend entirely in process
// memory. Intended for tests and throwaway development only — all data is
// lost on process exit. Adapted from the teacher's
// pkg/persistence/memory.MemoryPersistence (sync.RWMutex, closed guard,
// deep-copy-on-access), generalized from the teacher's fixed key-share
// schema to the three generic byte columns pkg/storage.Backend exposes.
package memory

import (
	"fmt"
	"sync"

	"github.com/amt-db/authdb/pkg/storage"
)

// Backend is an in-memory implementation of storage.Backend. Thread-safe;
// copies every value on the way in and out so callers can never mutate
// stored bytes through an aliased slice.
type Backend struct {
	mu     sync.RWMutex
	cols   map[storage.Column]map[string][]byte
	closed bool
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		cols: map[storage.Column]map[string][]byte{
			storage.ColVersionTree: make(map[string][]byte),
			storage.ColKeyRecords:  make(map[string][]byte),
			storage.ColMerkle:      make(map[string][]byte),
		},
	}
}

// Get implements storage.Backend.
func (b *Backend) Get(col storage.Column, key []byte) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, storage.ErrClosed
	}

	value, ok := b.cols[col][string(key)]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put implements storage.Backend.
func (b *Backend) Put(col storage.Column, key []byte, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return storage.ErrClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	b.cols[col][string(key)] = stored
	return nil
}

// Flush is a no-op: every Put is already durable in the map.
func (b *Backend) Flush() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return storage.ErrClosed
	}
	return nil
}

// Close marks the backend closed. Idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// HealthCheck reports whether the backend is still open.
func (b *Backend) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("memory backend: %w", storage.ErrClosed)
	}
	return nil
}
