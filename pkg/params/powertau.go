// Package params builds and serves the public parameters (AMTParams) that
// every AMT layer shares: the Lagrange-basis commitments ("idents"), the
// per-depth quotient tables that make opening-proof updates O(1), and the
// G2 side of the trusted setup used in pairing verification. Grounded on
// original_source/amt-db/src/crypto/{power_tau,prove_params}.rs.
package params

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"os"

	"github.com/amt-db/authdb/pkg/curve"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// ErrInconsistentLength is returned when a loaded power-of-tau file's
// recorded length is not a power of two, or the file is shallower than the
// requested depth.
var ErrInconsistentLength = errors.New("params: inconsistent powers-of-tau length")

// PowerTau holds the raw trusted-setup output: powers of a secret tau in
// both G1 and G2, gen*tau^0 .. gen*tau^(2^depth - 1).
type PowerTau struct {
	G1 []*curve.G1Point
	G2 []*curve.G2Point
}

// Depth returns log2(len(G1)).
func (pt *PowerTau) Depth() int {
	return log2Int(len(pt.G1))
}

func log2Int(n int) int {
	l := 0
	for (1 << l) < n {
		l++
	}
	return l
}

// Setup runs an untrusted, in-process "ceremony": it draws a random tau and
// derives the power vectors from it. Production deployments must instead
// load a real multi-party ceremony's output via Load; Setup exists for
// tests and for bootstrapping a throwaway development environment.
func Setup(depth int) (*PowerTau, error) {
	var tauBig [32]byte
	if _, err := rand.Read(tauBig[:]); err != nil {
		return nil, errors.Wrap(err, "draw random tau")
	}
	var tau curve.Fr
	tau.SetBytes(tauBig[:])
	return setupWithTau(&tau, depth), nil
}

func setupWithTau(tau *curve.Fr, depth int) *PowerTau {
	length := 1 << depth

	g1 := make([]*curve.G1Point, length)
	g2 := make([]*curve.G2Point, length)

	var power curve.Fr
	power.SetOne()
	for i := 0; i < length; i++ {
		g1[i] = curve.ScalarMulG1(curve.G1Generator, &power)
		g2[i] = curve.ScalarMulG2(curve.G2Generator, &power)
		power.Mul(&power, tau)
	}

	return &PowerTau{G1: g1, G2: g2}
}

// Load reads a serialized PowerTau file via mmap (the file is read-mostly
// and can be large at high depths, matching the access pattern go-ethereum
// uses its freezer mmap reader for), truncating to expectedDepth if the
// file carries a deeper setup than requested.
func Load(path string, expectedDepth int) (*PowerTau, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "mmap open powertau file")
	}
	defer r.Close()

	header := make([]byte, 8)
	if _, err := r.ReadAt(header, 0); err != nil {
		return nil, errors.Wrap(err, "read powertau header")
	}
	length := int(binary.LittleEndian.Uint64(header))
	depth := log2Int(length)
	if 1<<depth != length {
		return nil, ErrInconsistentLength
	}
	if expectedDepth > depth {
		return nil, ErrInconsistentLength
	}

	readLen := length
	if expectedDepth < depth {
		readLen = 1 << expectedDepth
	}

	const g1Size = 32
	const g2Size = 64

	g1 := make([]*curve.G1Point, readLen)
	g2 := make([]*curve.G2Point, readLen)

	buf := make([]byte, g1Size)
	offset := int64(8)
	for i := 0; i < readLen; i++ {
		if _, err := r.ReadAt(buf, offset); err != nil {
			return nil, errors.Wrapf(err, "read g1 point %d", i)
		}
		p := &curve.G1Point{}
		if err := p.Unmarshal(buf); err != nil {
			return nil, errors.Wrapf(err, "unmarshal g1 point %d", i)
		}
		g1[i] = p
		offset += g1Size
	}

	offset = 8 + int64(length)*g1Size
	buf2 := make([]byte, g2Size)
	for i := 0; i < readLen; i++ {
		if _, err := r.ReadAt(buf2, offset); err != nil {
			return nil, errors.Wrapf(err, "read g2 point %d", i)
		}
		p := &curve.G2Point{}
		if err := p.Unmarshal(buf2); err != nil {
			return nil, errors.Wrapf(err, "unmarshal g2 point %d", i)
		}
		g2[i] = p
		offset += g2Size
	}

	return &PowerTau{G1: g1, G2: g2}, nil
}

// Save writes the PowerTau to disk in the layout Load expects: an 8-byte
// little-endian length, followed by the G1 points (32-byte compressed
// each), followed by the G2 points (64-byte compressed each).
func Save(path string, pt *PowerTau) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create powertau file")
	}
	defer func() {
		cerr := f.Close()
		if err == nil {
			err = cerr
		}
	}()

	header := make([]byte, 8)
	binary.LittleEndian.PutUint64(header, uint64(len(pt.G1)))
	if _, err = f.Write(header); err != nil {
		return errors.Wrap(err, "write powertau header")
	}
	for _, p := range pt.G1 {
		if _, err = f.Write(p.Marshal()); err != nil {
			return errors.Wrap(err, "write g1 point")
		}
	}
	for _, p := range pt.G2 {
		if _, err = f.Write(p.Marshal()); err != nil {
			return errors.Wrap(err, "write g2 point")
		}
	}
	return nil
}

// LoadOrSetup loads an existing power-of-tau file, or runs an in-process
// setup and persists it if none exists yet. Mirrors
// PowerTau::from_dir_or_new's fallback for development environments.
func LoadOrSetup(path string, depth int) (*PowerTau, error) {
	pt, err := Load(path, depth)
	if err == nil {
		return pt, nil
	}

	pt, err = Setup(depth)
	if err != nil {
		return nil, err
	}
	if err := Save(path, pt); err != nil {
		return nil, err
	}
	return pt, nil
}

var _ io.ReaderAt = (*mmap.ReaderAt)(nil)
