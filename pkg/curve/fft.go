package curve

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
)

// Domain wraps gnark-crypto's scalar-field FFT domain and reuses its
// primitive root of unity (Generator/GeneratorInv) to drive a hand-rolled
// Cooley-Tukey FFT over G1, since gnark-crypto only exposes FFT over
// fr.Element, not over curve points. G1 under (scalar-mul, point-add) is an
// Fr-module, so the field butterfly network carries over directly: scalar
// multiplication stands in for field multiplication, point addition for
// field addition.
type Domain struct {
	size       uint64
	generator  fr.Element
	genInverse fr.Element
	sizeInv    fr.Element
}

// NewDomain builds an FFT domain of the given size, which must be a power
// of two. Mirrors the construction of the evaluation domain used to derive
// the Lagrange-basis (idents) and quotient tables in AMTParams.
func NewDomain(size uint64) *Domain {
	d := fft.NewDomain(size)
	return &Domain{
		size:       d.Cardinality,
		generator:  d.Generator,
		genInverse: d.GeneratorInv,
		sizeInv:    d.CardinalityInv,
	}
}

// Generator returns the domain's primitive size-th root of unity (w).
func (d *Domain) Generator() fr.Element { return d.generator }

// GeneratorInv returns the inverse root of unity (w^-1).
func (d *Domain) GeneratorInv() fr.Element { return d.genInverse }

// Size returns the domain cardinality.
func (d *Domain) Size() uint64 { return d.size }

func bitReverseIndex(x, bits uint) uint {
	var r uint
	for i := uint(0); i < bits; i++ {
		r = (r << 1) | (x & 1)
		x >>= 1
	}
	return r
}

func log2Uint64(n uint64) uint {
	var l uint
	for (uint64(1) << l) < n {
		l++
	}
	return l
}

func frToBigInt(e *fr.Element) *big.Int {
	var b big.Int
	e.BigInt(&b)
	return &b
}

// scalarMulJac multiplies a Jacobian G1 point by a scalar field element.
func scalarMulJac(p *bn254.G1Jac, s *fr.Element) bn254.G1Jac {
	var aff bn254.G1Affine
	aff.FromJacobian(p)
	var scaled bn254.G1Affine
	scaled.ScalarMultiplication(&aff, frToBigInt(s))
	var out bn254.G1Jac
	out.FromAffine(&scaled)
	return out
}

// fftG1 runs an iterative radix-2 Cooley-Tukey FFT over G1Jac values in
// place, using root as the primitive n-th root of unity (Generator for the
// forward transform, GeneratorInv for the inverse).
func fftG1(a []bn254.G1Jac, root fr.Element) {
	n := uint64(len(a))
	bits := log2Uint64(n)

	for i := range a {
		j := bitReverseIndex(uint(i), bits)
		if uint64(j) > uint64(i) {
			a[i], a[j] = a[j], a[i]
		}
	}

	for size := uint64(2); size <= n; size <<= 1 {
		halfSize := size / 2

		var subRoot fr.Element
		exp := big.NewInt(0).SetUint64(n / size)
		subRoot.Exp(root, exp)

		for start := uint64(0); start < n; start += size {
			var w fr.Element
			w.SetOne()
			for k := uint64(0); k < halfSize; k++ {
				odd := scalarMulJac(&a[start+k+halfSize], &w)

				even := a[start+k]

				var sum, diff bn254.G1Jac
				sum.Set(&even)
				sum.AddAssign(&odd)

				var negOdd bn254.G1Jac
				negOdd.Set(&odd).Neg(&negOdd)
				diff.Set(&even)
				diff.AddAssign(&negOdd)

				a[start+k] = sum
				a[start+k+halfSize] = diff

				w.Mul(&w, &subRoot)
			}
		}
	}
}

func jacFromG1Point(p *G1Point) bn254.G1Jac {
	var jac bn254.G1Jac
	if p == nil || p.IsZero() {
		jac.FromAffine(new(bn254.G1Affine).SetInfinity())
		return jac
	}
	jac.FromAffine(p.point)
	return jac
}

// FFT computes the forward FFT of a vector of G1 points (treated as a
// module over Fr). Used to derive the Lagrange-basis commitments (idents)
// from the powers-of-tau setup.
func FFT(a []*G1Point, d *Domain) []*G1Point {
	jac := make([]bn254.G1Jac, len(a))
	for i, p := range a {
		jac[i] = jacFromG1Point(p)
	}
	fftG1(jac, d.generator)
	affs := bn254.BatchJacobianToAffineG1(jac)
	out := make([]*G1Point, len(a))
	for i := range affs {
		out[i] = NewG1Point(&affs[i])
	}
	return out
}

// IFFT computes the inverse FFT of a vector of G1 points, including the
// 1/n scaling factor.
func IFFT(a []*G1Point, d *Domain) []*G1Point {
	jac := make([]bn254.G1Jac, len(a))
	for i, p := range a {
		jac[i] = jacFromG1Point(p)
	}
	fftG1(jac, d.genInverse)

	affs := bn254.BatchJacobianToAffineG1(jac)
	out := make([]*G1Point, len(a))
	for i := range affs {
		var scaled bn254.G1Affine
		scaled.ScalarMultiplication(&affs[i], frToBigInt(&d.sizeInv))
		out[i] = NewG1Point(&scaled)
	}
	return out
}
