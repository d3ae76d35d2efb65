// Package curve wraps the BN254 pairing-friendly curve (via gnark-crypto)
// behind the small G1/G2/Fr surface the AMT commitment scheme needs:
// scalar multiplication, addition, pairing checks, and compressed
// serialization.
package curve

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Fr is the scalar field element of BN254, aliased so callers never import
// gnark-crypto directly.
type Fr = fr.Element

// G1Point wraps a BN254 G1 affine point.
type G1Point struct {
	point *bn254.G1Affine
}

// G2Point wraps a BN254 G2 affine point.
type G2Point struct {
	point *bn254.G2Affine
}

// G1Generator and G2Generator are the standard BN254 generators.
var (
	G1Generator *G1Point
	G2Generator *G2Point
)

func init() {
	_, _, g1Gen, g2Gen := bn254.Generators()
	G1Generator = NewG1Point(&g1Gen)
	G2Generator = NewG2Point(&g2Gen)
}

// NewG1Point wraps a gnark G1Affine point.
func NewG1Point(p *bn254.G1Affine) *G1Point {
	return &G1Point{point: p}
}

// NewG2Point wraps a gnark G2Affine point.
func NewG2Point(p *bn254.G2Affine) *G2Point {
	return &G2Point{point: p}
}

// ZeroG1 returns the G1 identity element.
func ZeroG1() *G1Point {
	return NewG1Point(new(bn254.G1Affine).SetInfinity())
}

// ZeroG2 returns the G2 identity element.
func ZeroG2() *G2Point {
	return NewG2Point(new(bn254.G2Affine).SetInfinity())
}

// ToAffine exposes the underlying gnark point for callers that need raw
// curve arithmetic the facade does not cover (e.g. batch operations).
func (p *G1Point) ToAffine() *bn254.G1Affine { return p.point }
func (p *G2Point) ToAffine() *bn254.G2Affine { return p.point }

// Marshal serializes the point in BN254 compressed form (32 bytes for G1,
// 64 bytes for G2).
func (p *G1Point) Marshal() []byte {
	if p.point == nil {
		return make([]byte, bn254.SizeOfG1AffineCompressed)
	}
	b := p.point.Bytes()
	return b[:]
}

func (p *G2Point) Marshal() []byte {
	if p.point == nil {
		return make([]byte, bn254.SizeOfG2AffineCompressed)
	}
	b := p.point.Bytes()
	return b[:]
}

// Unmarshal deserializes a compressed point.
func (p *G1Point) Unmarshal(data []byte) error {
	if p.point == nil {
		p.point = new(bn254.G1Affine)
	}
	_, err := p.point.SetBytes(data)
	return err
}

func (p *G2Point) Unmarshal(data []byte) error {
	if p.point == nil {
		p.point = new(bn254.G2Affine)
	}
	_, err := p.point.SetBytes(data)
	return err
}

// IsZero reports whether the point is the identity element.
func (p *G1Point) IsZero() bool {
	return p.point == nil || p.point.IsInfinity()
}

func (p *G2Point) IsZero() bool {
	return p.point == nil || p.point.IsInfinity()
}

// Equal compares two points for equality.
func (p *G1Point) Equal(other *G1Point) bool {
	if p.point == nil || other == nil || other.point == nil {
		return p.IsZero() && (other == nil || other.IsZero())
	}
	return p.point.Equal(other.point)
}

func (p *G2Point) Equal(other *G2Point) bool {
	if p.point == nil || other == nil || other.point == nil {
		return p.IsZero() && (other == nil || other.IsZero())
	}
	return p.point.Equal(other.point)
}

// AddG1 adds two G1 points.
func AddG1(a, b *G1Point) *G1Point {
	if a == nil || a.IsZero() {
		if b == nil {
			return ZeroG1()
		}
		return b
	}
	if b == nil || b.IsZero() {
		return a
	}
	var aJac, bJac bn254.G1Jac
	aJac.FromAffine(a.point)
	bJac.FromAffine(b.point)
	aJac.AddAssign(&bJac)
	var res bn254.G1Affine
	res.FromJacobian(&aJac)
	return NewG1Point(&res)
}

// AddG2 adds two G2 points.
func AddG2(a, b *G2Point) *G2Point {
	if a == nil || a.IsZero() {
		if b == nil {
			return ZeroG2()
		}
		return b
	}
	if b == nil || b.IsZero() {
		return a
	}
	var aJac, bJac bn254.G2Jac
	aJac.FromAffine(a.point)
	bJac.FromAffine(b.point)
	aJac.AddAssign(&bJac)
	var res bn254.G2Affine
	res.FromJacobian(&aJac)
	return NewG2Point(&res)
}

// NegG1 negates a G1 point.
func NegG1(a *G1Point) *G1Point {
	if a == nil || a.IsZero() {
		return ZeroG1()
	}
	var res bn254.G1Affine
	res.Neg(a.point)
	return NewG1Point(&res)
}

// NegG2 negates a G2 point.
func NegG2(a *G2Point) *G2Point {
	if a == nil || a.IsZero() {
		return ZeroG2()
	}
	var res bn254.G2Affine
	res.Neg(a.point)
	return NewG2Point(&res)
}

// ScalarMulG1 multiplies a G1 point by a scalar.
func ScalarMulG1(point *G1Point, scalar *Fr) *G1Point {
	if point == nil || point.IsZero() || scalar == nil || scalar.IsZero() {
		return ZeroG1()
	}
	var s big.Int
	scalar.BigInt(&s)
	var res bn254.G1Affine
	res.ScalarMultiplication(point.point, &s)
	return NewG1Point(&res)
}

// ScalarMulG2 multiplies a G2 point by a scalar.
func ScalarMulG2(point *G2Point, scalar *Fr) *G2Point {
	if point == nil || point.IsZero() || scalar == nil || scalar.IsZero() {
		return ZeroG2()
	}
	var s big.Int
	scalar.BigInt(&s)
	var res bn254.G2Affine
	res.ScalarMultiplication(point.point, &s)
	return NewG2Point(&res)
}

// PairingsEqual checks e(a1,a2) == e(b1,b2) via a single multi-pairing to
// the identity: e(a1,a2) * e(-b1,b2) == 1. This is the idiom used throughout
// the AMT opening-proof and Merkle-to-commitment verification checks.
func PairingsEqual(a1 *G1Point, a2 *G2Point, b1 *G1Point, b2 *G2Point) bool {
	negB1 := NegG1(b1)
	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{*a1.point, *negB1.point},
		[]bn254.G2Affine{*a2.point, *b2.point},
	)
	if err != nil {
		return false
	}
	return ok
}

// FrFromUint64 builds a scalar field element from a small integer, used for
// packing version counters into field elements.
func FrFromUint64(v uint64) *Fr {
	var e Fr
	e.SetUint64(v)
	return &e
}

// FrFromBigInt builds a scalar field element from an arbitrary-precision
// integer, reducing modulo the scalar field order.
func FrFromBigInt(v *big.Int) *Fr {
	var e Fr
	e.SetBigInt(v)
	return &e
}
