package codec

import (
	"github.com/amt-db/authdb/pkg/curve"
	"github.com/pkg/errors"
)

// Encoding mode tags, ported from original_source/amt-db/src/serde/curves.rs:
// the scheme keeps two distinct byte representations for the same curve
// point — one canonical and hash-stable (consensus), one cheap to
// round-trip through local storage. A one-byte tag lets a consensus reader
// fail fast instead of silently misinterpreting local-mode bytes.
const (
	tagConsensus byte = 0x01
	tagLocal     byte = 0x02
)

// ErrWrongEncoding is returned when a decoder receives bytes tagged for the
// other serialization mode.
var ErrWrongEncoding = errors.New("codec: curve point encoded in the wrong mode")

// EncodeG1Consensus serializes a G1 point in its canonical, hash-stable
// compressed affine form. Used for anything that feeds the epoch Merkle
// tree or an AMT commitment/proof that a verifier recomputes hashes over.
func EncodeG1Consensus(p *curve.G1Point) []byte {
	raw := p.Marshal()
	out := make([]byte, 1+len(raw))
	out[0] = tagConsensus
	copy(out[1:], raw)
	return out
}

// DecodeG1Consensus parses bytes produced by EncodeG1Consensus.
func DecodeG1Consensus(buf []byte) (*curve.G1Point, error) {
	if len(buf) < 1 || buf[0] != tagConsensus {
		return nil, ErrWrongEncoding
	}
	p := &curve.G1Point{}
	if err := p.Unmarshal(buf[1:]); err != nil {
		return nil, errors.Wrap(err, "decode consensus G1 point")
	}
	return p, nil
}

// EncodeG1Local serializes a G1 point for the engine-local storage path.
// Affine compressed form is reused here too (gnark-crypto does not expose a
// cheaper non-normalized encoding), but the mode is still tagged distinctly
// so consensus and local bytes are never interchangeable at the type level.
func EncodeG1Local(p *curve.G1Point) []byte {
	raw := p.Marshal()
	out := make([]byte, 1+len(raw))
	out[0] = tagLocal
	copy(out[1:], raw)
	return out
}

// DecodeG1Local parses bytes produced by EncodeG1Local.
func DecodeG1Local(buf []byte) (*curve.G1Point, error) {
	if len(buf) < 1 || buf[0] != tagLocal {
		return nil, ErrWrongEncoding
	}
	p := &curve.G1Point{}
	if err := p.Unmarshal(buf[1:]); err != nil {
		return nil, errors.Wrap(err, "decode local G1 point")
	}
	return p, nil
}

// EncodeFrConsensus serializes a scalar field element canonically.
func EncodeFrConsensus(f *curve.Fr) []byte {
	b := f.Bytes()
	return b[:]
}

// DecodeFrConsensus parses a canonical scalar field element.
func DecodeFrConsensus(buf []byte) (*curve.Fr, error) {
	var f curve.Fr
	if len(buf) < 32 {
		return nil, ErrShortBuffer
	}
	f.SetBytes(buf[:32])
	return &f, nil
}
