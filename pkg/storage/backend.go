// Package storage defines the pluggable key-value backend AuthDB persists
// to, plus the generic cached accessor (Access) that maps typed keys
// (leaf indices, AMT node indices) onto namespaced byte keys in one of
// three logical columns. Grounded on the teacher's
// pkg/persistence.INodePersistence (narrow interface, explicit lifecycle)
// and original_source/amt-db/src/storage/{access,layout}.rs (the generic
// accessor and its two position layouts).
package storage

import "github.com/pkg/errors"

// Column names one of the three logical keyspaces AuthDB persists:
// version-tree nodes/leaves, committed key records, and epoch Merkle
// tree nodes. A Backend may implement these as column families, key
// prefixes, or separate buckets — callers only see the Column enum.
type Column int

const (
	ColVersionTree Column = iota
	ColKeyRecords
	ColMerkle
)

// ErrClosed is returned by any Backend method once Close has run.
var ErrClosed = errors.New("storage: backend is closed")

// Backend is the external collaborator AuthDB persists through. It has no
// knowledge of AMTs, forests, or Merkle trees — just namespaced byte
// key/value storage with an explicit flush and lifecycle, matching the
// shape of the teacher's INodePersistence interface.
type Backend interface {
	// Get returns the value stored for key in col, or (nil, nil) if absent.
	Get(col Column, key []byte) ([]byte, error)
	// Put stores value for key in col.
	Put(col Column, key []byte, value []byte) error
	// Flush durably persists any buffered writes.
	Flush() error
	// Close releases any resources held by the backend. Idempotent.
	Close() error
	// HealthCheck reports whether the backend is reachable and usable.
	HealthCheck() error
}
