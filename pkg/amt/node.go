// Package amt implements a single Algebraic Multi-Tree layer: a
// fixed-depth, fixed-arity KZG vector commitment with O(log N) opening
// proofs that update in O(1) per write. Ported from
// original_source/amt-db/src/amt/{node,tree}.rs, generalized from the
// original's type-level depth parameter to a runtime Depth carried by
// every AMTree (Go has no const-generic equivalent of TypeUInt).
package amt

import "github.com/amt-db/authdb/pkg/curve"

// Node is a single commitment/proof pair stored at one position of the
// binary commitment tree. Ported from node.rs::AMTNode.
type Node struct {
	Commitment *curve.G1Point
	Proof      *curve.G1Point
}

// ZeroNode returns a Node holding the identity element in both fields,
// the value an as-yet-unwritten tree position reads back as.
func ZeroNode() *Node {
	return &Node{Commitment: curve.ZeroG1(), Proof: curve.ZeroG1()}
}

// Inc adds incComm/incProof into this node's commitment/proof in place,
// mirroring node.rs's AMTNode::inc.
func (n *Node) Inc(incComm, incProof *curve.G1Point) {
	n.Commitment = curve.AddG1(n.Commitment, incComm)
	n.Proof = curve.AddG1(n.Proof, incProof)
}

// NodeIndex addresses one node of a binary tree of a given total depth:
// depth is how many levels below the root this node sits, index is its
// position among the 2^depth nodes at that level. Ported from
// node.rs::NodeIndex, with the original's type-level depth bound dropped
// in favor of a per-tree runtime totalDepth.
type NodeIndex struct {
	depth      int
	index      int
	totalDepth int
}

// NewNodeIndex builds a NodeIndex at depth/index within a tree of the
// given total depth.
func NewNodeIndex(depth, index, totalDepth int) NodeIndex {
	if index >= (1 << depth) {
		panic("amt: node index out of range for depth")
	}
	if depth > totalDepth {
		panic("amt: node depth exceeds tree depth")
	}
	return NodeIndex{depth: depth, index: index, totalDepth: totalDepth}
}

// RootNodeIndex returns the index of the root of a tree with the given
// total depth.
func RootNodeIndex(totalDepth int) NodeIndex {
	return NewNodeIndex(0, 0, totalDepth)
}

// ToSibling returns the node index that shares this node's parent.
func (n NodeIndex) ToSibling() NodeIndex {
	return NewNodeIndex(n.depth, n.index^1, n.totalDepth)
}

// ToAncestor returns the index of the ancestor `height` levels above this
// node.
func (n NodeIndex) ToAncestor(height int) NodeIndex {
	if height > n.depth {
		panic("amt: ancestor height exceeds node depth")
	}
	return NewNodeIndex(n.depth-height, n.index>>height, n.totalDepth)
}

// Depth returns how many levels below the root this node sits.
func (n NodeIndex) Depth() int { return n.depth }

// Index returns this node's position among the nodes at its depth.
func (n NodeIndex) Index() int { return n.index }

// TotalDepth returns the tree's total depth.
func (n NodeIndex) TotalDepth() int { return n.totalDepth }

// Position implements storage.Positioner with the FlattenTree layout:
// position = 2^depth + index, so every depth's nodes occupy a disjoint
// range and the root is position 1. Ported from
// original_source/amt-db/src/storage/layout.rs::FlattenTree.
func (n NodeIndex) Position() uint64 {
	return (uint64(1) << uint(n.depth)) + uint64(n.index)
}

// bitreverse reverses the low l bits of n, used to convert a leaf's
// natural index into its position in the FFT-ordered (bit-reversed) leaf
// layout. Ported from original_source/src/amt/utils.rs::bitreverse.
func bitreverse(n uint, l int) uint {
	var r uint
	for i := 0; i < l; i++ {
		r = (r << 1) | (n & 1)
		n >>= 1
	}
	return r
}
