// Package forest implements the multi-layer AMT forest: a root AMT whose
// leaves hold up to S version counters each, with keys that collide past
// S promoted into a child AMT named by the colliding windows of their key
// bytes, recursively. Ported from
// original_source/amt-db/src/ver_tree/{key,name,node}.rs and the forest
// semantics spec.md §4.3 describes (the original's ver_tree/tree.rs is an
// unfinished placeholder — its real increment logic is commented out — so
// the allocation/increment/commit protocols here are written from the
// specification directly, grounded on the original's data encodings).
package forest

import "math/big"

// Key is a version-tracked lookup key: the raw application key bytes.
type Key []byte

// mid extracts `length` bits of k starting at global bit offset `start`,
// MSB-first, returning them right-justified in a uint32. Ported from
// ver_tree/key.rs::Key::mid, which windows through a 16-byte (128-bit)
// span starting at the containing byte, zero-padding past the end of k.
func (k Key) mid(start, length int) uint32 {
	if length == 0 {
		return 0
	}

	startByte := start / 8
	startBit := start - startByte*8

	var window [16]byte
	if startByte < len(k) {
		end := startByte + 16
		if end > len(k) {
			end = len(k)
		}
		copy(window[:], k[startByte:end])
	}

	entry := new(big.Int).SetBytes(window[:])
	shift := uint(startBit + (128 - length))
	entry.Rsh(entry, shift)
	entry.And(entry, big.NewInt(0xFFFFFFFF))
	return uint32(entry.Uint64())
}

// IndexAtLevel returns the depth-bit window of k selecting a leaf within
// the AMT at forest level `level`.
func (k Key) IndexAtLevel(level uint8, depth int) uint32 {
	return k.mid(int(level)*depth, depth)
}
