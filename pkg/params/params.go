package params

import (
	"math/big"
	"sync"

	"github.com/amt-db/authdb/pkg/curve"
	"github.com/pkg/errors"
)

// AMTParams holds the public parameters shared by every AMT layer in a
// forest: the Lagrange-basis commitments used to commit to a leaf vector
// (idents), the per-depth quotient tables that let an opening proof at any
// node be updated in O(1) when a single leaf changes, and the G2-side
// trusted-setup powers used during pairing verification.
//
// Grounded on original_source/amt-db/src/crypto/prove_params.rs::AMTParams.
type AMTParams struct {
	idents []*curve.G1Point
	// quotients[d-1][i] is the quotient commitment for depth d, index i.
	quotients [][]*curve.G1Point
	g2pp      []*curve.G2Point
	g2        *curve.G2Point
	wInv      *curve.Fr
	depth     int

	cacheMu sync.Mutex
	cache   []map[uint64]*curve.G1Point
}

// FromPowerTau derives AMTParams from a trusted-setup output, by computing
// the forward FFT of the G1 powers and, for each depth
// from 1 to the tree depth, the chunked sparse-vector FFT that produces
// that depth's quotient table. Because the transform is the forward one,
// idents[i] is 2^depth times the Lagrange basis polynomial for the point
// w^-i, evaluated at tau — not the inverse-FFT Lagrange basis for w^i — so
// verification evaluates at powers of WInv.
func FromPowerTau(pt *PowerTau) (*AMTParams, error) {
	depth := pt.Depth()
	length := 1 << depth
	if len(pt.G1) != length || len(pt.G2) != length {
		return nil, errors.New("params: powertau length is not a power of two")
	}

	domain := curve.NewDomain(uint64(length))

	idents := curve.FFT(pt.G1, domain)

	quotients := make([][]*curve.G1Point, depth)
	for d := 1; d <= depth; d++ {
		q, err := genQuotients(pt.G1, domain, depth, d)
		if err != nil {
			return nil, err
		}
		quotients[d-1] = q
	}

	var wInv curve.Fr
	wInv.Inverse(ptrGenerator(domain))

	cache := make([]map[uint64]*curve.G1Point, length)
	for i := range cache {
		cache[i] = make(map[uint64]*curve.G1Point)
	}

	return &AMTParams{
		idents:    idents,
		quotients: quotients,
		g2pp:      pt.G2,
		g2:        curve.G2Generator,
		wInv:      &wInv,
		depth:     depth,
		cache:     cache,
	}, nil
}

func ptrGenerator(d *curve.Domain) *curve.Fr {
	g := d.Generator()
	return &g
}

// genQuotients builds the quotient commitment table for a single depth, by
// moving each even-numbered chunk of the power-of-tau vector into the odd
// chunk after it, leaving the even chunks zero, and running the forward FFT
// over the result. Grounded on
// prove_params.rs::AMTParams::gen_quotients.
func genQuotients(g1pp []*curve.G1Point, domain *curve.Domain, maxDepth, depth int) ([]*curve.G1Point, error) {
	if depth < 1 || depth > maxDepth {
		return nil, errors.Errorf("params: quotient depth %d out of range [1,%d]", depth, maxDepth)
	}

	length := len(g1pp)
	chunkLength := 1 << (maxDepth - depth)
	chunkNum := length / chunkLength

	coeff := make([]*curve.G1Point, length)
	for i := range coeff {
		coeff[i] = curve.ZeroG1()
	}

	for i := 0; i < chunkNum/2; i++ {
		srcStart := 2 * i * chunkLength
		dstStart := (2*i + 1) * chunkLength
		copy(coeff[dstStart:dstStart+chunkLength], g1pp[srcStart:srcStart+chunkLength])
	}

	return curve.FFT(coeff, domain), nil
}

// GetIdent returns the i-th Lagrange-basis commitment.
func (p *AMTParams) GetIdent(index int) *curve.G1Point {
	return p.idents[index]
}

// GetIdentsPow returns idents[index] * power, using a per-(index,bit) cache
// of idents[index] * 2^bit so repeated calls at the same index (as happens
// while recomputing a node's commitment delta on every write) only pay for
// the bits that changed. Grounded on
// prove_params.rs::AMTParams::get_idents_pow.
func (p *AMTParams) GetIdentsPow(index int, power *big.Int) *curve.G1Point {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	cache := p.cache[index]
	answer := curve.ZeroG1()

	for bit := 0; bit < power.BitLen(); bit++ {
		if power.Bit(bit) == 0 {
			continue
		}
		term, ok := cache[uint64(bit)]
		if !ok {
			exp := new(big.Int).Lsh(big.NewInt(1), uint(bit))
			term = curve.ScalarMulG1(p.idents[index], curve.FrFromBigInt(exp))
			cache[uint64(bit)] = term
		}
		answer = curve.AddG1(answer, term)
	}
	return answer
}

// GetQuotient returns the quotient commitment for the given depth
// (1-indexed) and index.
func (p *AMTParams) GetQuotient(depth, index int) *curve.G1Point {
	return p.quotients[depth-1][index]
}

// GetG2PowTau returns g2 * tau^height from the trusted setup.
func (p *AMTParams) GetG2PowTau(height int) *curve.G2Point {
	return p.g2pp[height]
}

// G2 returns the G2 generator.
func (p *AMTParams) G2() *curve.G2Point { return p.g2 }

// WInv returns the inverse of the domain's primitive root of unity.
func (p *AMTParams) WInv() *curve.Fr { return p.wInv }

// Depth returns the tree depth these parameters were generated for.
func (p *AMTParams) Depth() int { return p.depth }
