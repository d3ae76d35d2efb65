// Package epochmerkle implements the per-epoch static Merkle tree that
// commits to one epoch's ordered event list (leaf-record hashes, then
// forest subtree-update hashes): a
// fixed-depth keccak256 binary tree, built once per epoch and never
// mutated afterward. Ported from
// original_source/amt-db/src/merkle/mod.rs::StaticMerkleTree.
package epochmerkle

import (
	"encoding/binary"
	"math/bits"

	"github.com/amt-db/authdb/pkg/storage"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Hash is a keccak256 digest, used for both tree nodes and leaves.
type Hash [32]byte

// emptyHash is the value substituted for any node past the end of an
// epoch's data — keccak256 of the empty string, matching the original's
// keccak_hash::KECCAK_EMPTY constant.
var emptyHash = Hash(crypto.Keccak256Hash(nil))

func combineHash(a, b Hash) Hash {
	buf := make([]byte, 64)
	copy(buf[0:32], a[:])
	copy(buf[32:64], b[:])
	return Hash(crypto.Keccak256Hash(buf))
}

var hashCodec = storage.Codec[Hash]{
	Encode: func(h Hash) []byte { return h[:] },
	Decode: func(data []byte) (Hash, error) {
		var h Hash
		if len(data) != 32 {
			return h, errors.Errorf("epochmerkle: node value has %d bytes, want 32", len(data))
		}
		copy(h[:], data)
		return h, nil
	},
	Zero: func() Hash { return Hash{} },
}

// lowU64BE reads the low 8 bytes of h as a big-endian uint64, matching
// the original's H256::to_low_u64_be/from_low_u64_be used to smuggle a
// plain integer (the tree depth) through an H256-typed storage slot.
func lowU64BE(h Hash) uint64 { return binary.BigEndian.Uint64(h[24:32]) }

func hashFromLowU64BE(v uint64) Hash {
	var h Hash
	binary.BigEndian.PutUint64(h[24:32], v)
	return h
}

// namespace returns the per-epoch key prefix, matching the original's
// epoch.to_be_bytes() namespacing of its DBAccess.
func namespace(epoch uint64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, epoch)
	return "epochmerkle:" + string(buf)
}

func newAccess(db storage.Backend, epoch uint64) *storage.Access[storage.LeafIndex, Hash] {
	return storage.NewAccess[storage.LeafIndex, Hash](namespace(epoch), storage.ColMerkle, db, hashCodec)
}

// Proof is an inclusion proof for one leaf position: the sibling hash at
// every level from the leaf up to just below the root, ordered leaf-first.
// Ported from the original's MerkleProof = (Vec<H256>, u64).
type Proof struct {
	Path     []Hash
	Position uint64
}

// Tree is a previously-dumped epoch's Merkle tree, opened read-only for
// proof generation.
type Tree struct {
	epoch int64
	depth int
	root  Hash
	data  *storage.Access[storage.LeafIndex, Hash]
}

// Open loads the Merkle tree for epoch from db. The tree must already
// have been built by Dump.
func Open(db storage.Backend, epoch uint64) (*Tree, error) {
	acc := newAccess(db, epoch)

	depthWord, err := acc.Get(0)
	if err != nil {
		return nil, errors.Wrap(err, "epochmerkle: read depth")
	}
	root, err := acc.Get(1)
	if err != nil {
		return nil, errors.Wrap(err, "epochmerkle: read root")
	}

	return &Tree{
		epoch: int64(epoch),
		depth: int(lowU64BE(depthWord)),
		root:  root,
		data:  acc,
	}, nil
}

// Root returns the tree's root hash.
func (t *Tree) Root() Hash { return t.root }

// Depth returns the tree's fixed depth.
func (t *Tree) Depth() int { return t.depth }

// Prove builds an inclusion proof for the leaf at position. Ported from
// StaticMerkleTree::prove.
func (t *Tree) Prove(position uint64) (Proof, error) {
	path := make([]Hash, 0, t.depth)
	for depth := t.depth; depth >= 1; depth-- {
		height := t.depth - depth
		index := (uint64(1) << uint(depth)) | ((position >> uint(height)) ^ 1)

		answer, err := t.data.Get(storage.LeafIndex(index))
		if err != nil {
			return Proof{}, errors.Wrap(err, "epochmerkle: read sibling node")
		}
		if answer == (Hash{}) {
			answer = emptyHash
		}
		path = append(path, answer)
	}
	return Proof{Path: path, Position: position}, nil
}

// Verify checks that leaf is included at proof.Position under root.
// Ported from StaticMerkleTree::verify.
func Verify(root Hash, leaf Hash, proof Proof) bool {
	current := leaf
	for index, sibling := range proof.Path {
		rightAppend := (proof.Position>>uint(index))%2 == 0
		if rightAppend {
			current = combineHash(current, sibling)
		} else {
			current = combineHash(sibling, current)
		}
	}
	return current == root
}

// depthForLength returns ceil(log2(max(length,1))), matching Rust's
// length.next_power_of_two().trailing_zeros() (which special-cases 0 to
// a power of two of 1, i.e. depth 0).
func depthForLength(length int) int {
	if length <= 1 {
		return 0
	}
	return bits.Len(uint(length - 1))
}

// Dump builds and persists a new epoch's Merkle tree from data (one leaf
// hash per event, in commit order), returning its root.
// Ported from StaticMerkleTree::dump: built bottom-up, one level at a
// time, padding an odd-length level with emptyHash before combining pairs.
func Dump(db storage.Backend, epoch uint64, data []Hash) (Hash, error) {
	acc := newAccess(db, epoch)
	depth := depthForLength(len(data))

	thisLevel := append([]Hash(nil), data...)
	for level := depth; level >= 0; level-- {
		for i, h := range thisLevel {
			if err := acc.Set(storage.LeafIndex((uint64(1)<<uint(level))+uint64(i)), h); err != nil {
				return Hash{}, errors.Wrap(err, "epochmerkle: write node")
			}
		}

		if len(thisLevel)%2 != 0 {
			thisLevel = append(thisLevel, emptyHash)
		}
		next := make([]Hash, 0, len(thisLevel)/2)
		for i := 0; i < len(thisLevel); i += 2 {
			next = append(next, combineHash(thisLevel[i], thisLevel[i+1]))
		}
		thisLevel = next
	}

	if err := acc.Set(0, hashFromLowU64BE(uint64(depth))); err != nil {
		return Hash{}, errors.Wrap(err, "epochmerkle: write depth")
	}
	root, err := acc.Get(1)
	if err != nil {
		return Hash{}, errors.Wrap(err, "epochmerkle: read root")
	}

	if err := acc.Flush(); err != nil {
		return Hash{}, errors.Wrap(err, "epochmerkle: flush")
	}
	return root, nil
}
