package storage

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
)

// Positioner maps a typed key onto the flat uint64 position used by one of
// the two layouts the original implementation supports: FlattenArray
// (position equals the key itself, for a leaf index) and FlattenTree
// (position = 2^depth + index, for an AMT node index). Callers implement
// this on whatever key type addresses their column — pkg/storage does not
// need to know about AMT node indices to store them.
//
// Grounded on original_source/amt-db/src/storage/layout.rs::LayoutTrait.
type Positioner interface {
	Position() uint64
}

// LeafIndex is the FlattenArray layout: a bare leaf position.
type LeafIndex uint64

// Position implements Positioner.
func (l LeafIndex) Position() uint64 { return uint64(l) }

// Codec encodes and decodes values of type V for storage, and supplies the
// zero value returned for a key that has never been written.
type Codec[V any] struct {
	Encode func(V) []byte
	Decode func([]byte) (V, error)
	Zero   func() V
}

type cacheEntry[V any] struct {
	value V
	dirty bool
}

// Access is a cached, write-back accessor over one logical column of a
// Backend, namespacing every key under a fixed name prefix. Reads are
// served from cache after the first load; writes only hit the backend on
// Flush. Ported from original_source/amt-db/src/storage/access.rs::DBAccess.
type Access[K Positioner, V any] struct {
	name  []byte
	col   Column
	db    Backend
	codec Codec[V]

	mu    sync.Mutex
	cache map[uint64]*cacheEntry[V]
}

// NewAccess builds an Access namespaced under name, reading and writing
// col of db through codec.
func NewAccess[K Positioner, V any](name string, col Column, db Backend, codec Codec[V]) *Access[K, V] {
	return &Access[K, V]{
		name:  []byte(name),
		col:   col,
		db:    db,
		codec: codec,
		cache: make(map[uint64]*cacheEntry[V]),
	}
}

// computeKey appends position as a 4-byte big-endian suffix to name,
// matching original_source's compute_key (layout_index as u32,
// to_be_bytes) exactly — not an 8-byte suffix.
func (a *Access[K, V]) computeKey(position uint64) []byte {
	key := make([]byte, len(a.name)+4)
	copy(key, a.name)
	binary.BigEndian.PutUint32(key[len(a.name):], uint32(position))
	return key
}

func (a *Access[K, V]) load(position uint64) (*cacheEntry[V], error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.cache[position]; ok {
		return e, nil
	}

	raw, err := a.db.Get(a.col, a.computeKey(position))
	if err != nil {
		return nil, errors.Wrap(err, "access: backend get")
	}

	var value V
	if raw == nil {
		value = a.codec.Zero()
	} else {
		value, err = a.codec.Decode(raw)
		if err != nil {
			return nil, errors.Wrap(err, "access: decode value")
		}
	}

	e := &cacheEntry[V]{value: value}
	a.cache[position] = e
	return e, nil
}

// Get returns the value at key, loading it (or its zero value, if absent
// from the backend) on first access and serving from cache thereafter.
func (a *Access[K, V]) Get(key K) (V, error) {
	e, err := a.load(key.Position())
	if err != nil {
		var zero V
		return zero, err
	}
	return e.value, nil
}

// Set stores value at key in cache and marks it dirty for the next Flush.
func (a *Access[K, V]) Set(key K, value V) error {
	e, err := a.load(key.Position())
	if err != nil {
		return err
	}
	a.mu.Lock()
	e.value = value
	e.dirty = true
	a.mu.Unlock()
	return nil
}

// Flush writes every dirty cache entry back through the backend. It does
// not call Backend.Flush itself — callers that own several Access values
// over the same Backend flush the backend once after flushing all of them.
func (a *Access[K, V]) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for position, e := range a.cache {
		if !e.dirty {
			continue
		}
		if err := a.db.Put(a.col, a.computeKey(position), a.codec.Encode(e.value)); err != nil {
			return errors.Wrap(err, "access: backend put")
		}
		e.dirty = false
	}
	return nil
}
