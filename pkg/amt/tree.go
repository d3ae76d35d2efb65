package amt

import (
	"math/big"

	"github.com/amt-db/authdb/pkg/codec"
	"github.com/amt-db/authdb/pkg/curve"
	"github.com/amt-db/authdb/pkg/params"
	"github.com/amt-db/authdb/pkg/storage"
	"github.com/pkg/errors"
)

// Proof is an opening proof for one leaf: one sibling Node per level,
// ordered from the leaf's own level (index 0) up to the level just below
// the root. Ported from tree.rs's AMTProof = [AMTNode<PE>; DEPTHS].
type Proof []*Node

var fieldCodec = storage.Codec[*curve.Fr]{
	Encode: codec.EncodeFrConsensus,
	Decode: codec.DecodeFrConsensus,
	Zero:   func() *curve.Fr { return curve.FrFromUint64(0) },
}

var nodeCodec = storage.Codec[*Node]{
	Encode: func(n *Node) []byte {
		c := codec.EncodeBytes(codec.EncodeG1Local(n.Commitment))
		p := codec.EncodeBytes(codec.EncodeG1Local(n.Proof))
		out := make([]byte, 0, len(c)+len(p))
		out = append(out, c...)
		out = append(out, p...)
		return out
	},
	Decode: func(data []byte) (*Node, error) {
		c, consumed, err := codec.DecodeBytes(data)
		if err != nil {
			return nil, errors.Wrap(err, "decode node commitment field")
		}
		p, _, err := codec.DecodeBytes(data[consumed:])
		if err != nil {
			return nil, errors.Wrap(err, "decode node proof field")
		}
		comm, err := codec.DecodeG1Local(c)
		if err != nil {
			return nil, errors.Wrap(err, "decode node commitment point")
		}
		proof, err := codec.DecodeG1Local(p)
		if err != nil {
			return nil, errors.Wrap(err, "decode node proof point")
		}
		return &Node{Commitment: comm, Proof: proof}, nil
	},
	Zero: ZeroNode,
}

// Tree is a single Algebraic Multi-Tree layer over 2^Depth scalar-field
// leaves. Ported from tree.rs::AMTree, generalized from the original's
// AMTConfigTrait-parameterized leaf type to bare *curve.Fr leaves — the
// packed version-counter encoding that trait's Data associated type
// carried lives one layer up, in pkg/forest.
type Tree struct {
	name   string
	depth  int
	length int

	data  *storage.Access[storage.LeafIndex, *curve.Fr]
	nodes *storage.Access[NodeIndex, *Node]
	pp    *params.AMTParams
}

// New builds a Tree namespaced under name, backed by db, using the public
// parameters pp (whose Depth must equal depth).
func New(name string, depth int, db storage.Backend, pp *params.AMTParams) (*Tree, error) {
	if pp.Depth() != depth {
		return nil, errors.Errorf("amt: params depth %d does not match tree depth %d", pp.Depth(), depth)
	}
	return &Tree{
		name:   name,
		depth:  depth,
		length: 1 << depth,
		data:   storage.NewAccess[storage.LeafIndex, *curve.Fr]("data:"+name, storage.ColVersionTree, db, fieldCodec),
		nodes:  storage.NewAccess[NodeIndex, *Node]("node:"+name, storage.ColVersionTree, db, nodeCodec),
		pp:     pp,
	}, nil
}

// Depth returns the tree's fixed depth.
func (t *Tree) Depth() int { return t.depth }

// Length returns the tree's leaf count, 2^Depth.
func (t *Tree) Length() int { return t.length }

func (t *Tree) checkIndex(index int) error {
	if index < 0 || index >= t.length {
		return errors.Errorf("amt: leaf index %d out of range [0,%d)", index, t.length)
	}
	return nil
}

// Get returns the current value stored at a leaf.
func (t *Tree) Get(index int) (*curve.Fr, error) {
	if err := t.checkIndex(index); err != nil {
		return nil, err
	}
	return t.data.Get(storage.LeafIndex(index))
}

// Commitment returns the tree's root commitment.
func (t *Tree) Commitment() (*curve.G1Point, error) {
	root, err := t.nodes.Get(RootNodeIndex(t.depth))
	if err != nil {
		return nil, err
	}
	return root.Commitment, nil
}

// Flush writes every dirty leaf and node back through the backend.
func (t *Tree) Flush() error {
	if err := t.data.Flush(); err != nil {
		return err
	}
	return t.nodes.Flush()
}

// WriteGuard stages a new leaf value. Value may be mutated freely; Commit
// applies the change to the tree, updating the root commitment and every
// ancestor's opening proof. Replaces the original's Drop-based
// AMTNodeWriteGuard with an explicit call, since Go has no destructors.
type WriteGuard struct {
	tree     *Tree
	index    int
	oldValue *curve.Fr
	Value    *curve.Fr
}

// Write stages a write to a leaf: the guard starts out holding the
// leaf's current value, which the caller mutates through Value before
// calling Commit.
func (t *Tree) Write(index int) (*WriteGuard, error) {
	if err := t.checkIndex(index); err != nil {
		return nil, err
	}
	old, err := t.data.Get(storage.LeafIndex(index))
	if err != nil {
		return nil, err
	}
	oldCopy := new(curve.Fr).Set(old)
	valueCopy := new(curve.Fr).Set(old)
	return &WriteGuard{tree: t, index: index, oldValue: oldCopy, Value: valueCopy}, nil
}

// Commit applies the guard's staged Value to the tree.
func (g *WriteGuard) Commit() error {
	var delta curve.Fr
	delta.Sub(g.Value, g.oldValue)
	if err := g.tree.data.Set(storage.LeafIndex(g.index), g.Value); err != nil {
		return err
	}
	return g.tree.update(g.index, &delta)
}

// BulkIncrement adds delta directly into the leaf value at index and
// propagates the corresponding commitment/proof update, without the
// caller decoding or reconstructing the leaf's full packed contents
// first — the fast path spec.md §4.3 uses for version increments outside
// the configured proof-maintenance shard.
func (t *Tree) BulkIncrement(index int, delta *curve.Fr) error {
	if err := t.checkIndex(index); err != nil {
		return err
	}
	old, err := t.data.Get(storage.LeafIndex(index))
	if err != nil {
		return err
	}
	var newValue curve.Fr
	newValue.Add(old, delta)
	if err := t.data.Set(storage.LeafIndex(index), &newValue); err != nil {
		return err
	}
	return t.update(index, delta)
}

// update adds updateFr * ident(index) into the root commitment and, for
// every ancestor of the leaf, adds updateFr * quotient(depth, index) into
// that ancestor's opening proof. Ported from tree.rs::AMTree::update.
func (t *Tree) update(index int, updateFr *curve.Fr) error {
	incComm := curve.ScalarMulG1(t.pp.GetIdent(index), updateFr)

	rootIdx := RootNodeIndex(t.depth)
	root, err := t.nodes.Get(rootIdx)
	if err != nil {
		return err
	}
	root.Commitment = curve.AddG1(root.Commitment, incComm)
	if err := t.nodes.Set(rootIdx, root); err != nil {
		return err
	}

	leafIndex := bitreverse(uint(index), t.depth)
	nodeIndex := NewNodeIndex(t.depth, int(leafIndex), t.depth)

	for height := 0; height < t.depth; height++ {
		depth := t.depth - height
		visitIndex := nodeIndex.ToAncestor(height)

		quotient := t.pp.GetQuotient(depth, index)
		proofDelta := curve.ScalarMulG1(quotient, updateFr)

		node, err := t.nodes.Get(visitIndex)
		if err != nil {
			return err
		}
		node.Inc(incComm, proofDelta)
		if err := t.nodes.Set(visitIndex, node); err != nil {
			return err
		}
	}
	return nil
}

// Prove builds an opening proof for the given leaf: the sibling node at
// every level on the path from the leaf to the root. Ported from
// tree.rs::AMTree::prove.
func (t *Tree) Prove(index int) (Proof, error) {
	if err := t.checkIndex(index); err != nil {
		return nil, err
	}

	leafIndex := bitreverse(uint(index), t.depth)
	nodeIndex := NewNodeIndex(t.depth, int(leafIndex), t.depth)

	answers := make(Proof, t.depth)
	for visitDepth := t.depth; visitDepth >= 1; visitDepth-- {
		visitHeight := t.depth - visitDepth
		siblingIndex := nodeIndex.ToAncestor(visitHeight).ToSibling()

		node, err := t.nodes.Get(siblingIndex)
		if err != nil {
			return nil, err
		}
		answers[visitHeight] = node
	}
	return answers, nil
}

// Verify checks that value is the leaf at index under commitment, given
// an opening proof built by Prove, against the public parameters pp.
// Ported from tree.rs::AMTree::verify — including the original's subtle
// reuse of the outer leaf index (not the proof-array position) when
// computing w_pow at every height.
func Verify(index int, value *curve.Fr, commitment *curve.G1Point, proof Proof, pp *params.AMTParams) bool {
	depth := pp.Depth()
	if index < 0 || index >= (1<<depth) || len(proof) != depth {
		return false
	}

	selfIdent := curve.ScalarMulG1(pp.GetIdent(index), value)
	others := curve.ZeroG1()
	for _, node := range proof {
		others = curve.AddG1(others, node.Commitment)
	}

	if !commitment.Equal(curve.AddG1(selfIdent, others)) {
		return false
	}

	g2 := pp.G2()
	wInv := pp.WInv()
	idxMask := (1 << depth) - 1

	tauPow := func(height int) *curve.G2Point {
		return pp.GetG2PowTau(1 << uint(height))
	}
	wPow := func(height int) *curve.G2Point {
		exp := big.NewInt(int64((index << uint(height)) & idxMask))
		var w curve.Fr
		w.Exp(*wInv, exp)
		return curve.ScalarMulG2(g2, &w)
	}

	for proofPos, node := range proof {
		height := proofPos
		rhs := curve.AddG2(tauPow(height), curve.NegG2(wPow(height)))
		if !curve.PairingsEqual(node.Commitment, g2, node.Proof, rhs) {
			return false
		}
	}
	return true
}
