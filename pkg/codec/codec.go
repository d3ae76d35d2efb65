// Package codec implements the fixed-width little-endian binary encoding
// used for on-disk and on-wire records, ported from the original
// MyToBytes/MyFromBytes trait pair (basic.rs) into explicit Go functions
// with wrapped errors, matching the teacher's
// persistence/serialization.go Marshal/Unmarshal idiom.
package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned when a Decode call does not have enough bytes
// remaining for the value being read.
var ErrShortBuffer = errors.New("codec: buffer too short")

// PutUint40 writes v as 5 little-endian bytes. Used for the packed leaf
// slot words (tree_version and per-slot counters), each of which the
// original scheme bounds to 40 bits so the tree_version word and five slot
// counters fit in one BN254 scalar field element.
func PutUint40(buf []byte, v uint64) {
	_ = buf[4]
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
	buf[4] = byte(v >> 32)
}

// Uint40 reads 5 little-endian bytes into a uint64.
func Uint40(buf []byte) (uint64, error) {
	if len(buf) < 5 {
		return 0, ErrShortBuffer
	}
	return uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 |
		uint64(buf[3])<<24 | uint64(buf[4])<<32, nil
}

// PutUint64 writes v as 8 little-endian bytes.
func PutUint64(buf []byte, v uint64) {
	binary.LittleEndian.PutUint64(buf, v)
}

// Uint64 reads 8 little-endian bytes into a uint64.
func Uint64(buf []byte) (uint64, error) {
	if len(buf) < 8 {
		return 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// PutUint32 writes v as 4 little-endian bytes.
func PutUint32(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

// Uint32 reads 4 little-endian bytes into a uint32.
func Uint32(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// EncodeBytes length-prefixes a byte slice with a little-endian uint32
// length, matching the original Vec<u8> MyToBytes impl.
func EncodeBytes(b []byte) []byte {
	out := make([]byte, 4+len(b))
	PutUint32(out, uint32(len(b)))
	copy(out[4:], b)
	return out
}

// DecodeBytes reads a length-prefixed byte slice, returning the value and
// the number of bytes consumed.
func DecodeBytes(buf []byte) ([]byte, int, error) {
	n, err := Uint32(buf)
	if err != nil {
		return nil, 0, errors.Wrap(err, "decode length prefix")
	}
	total := 4 + int(n)
	if len(buf) < total {
		return nil, 0, ErrShortBuffer
	}
	out := make([]byte, n)
	copy(out, buf[4:total])
	return out, total, nil
}
