package forest

import (
	"github.com/amt-db/authdb/pkg/codec"
	"github.com/amt-db/authdb/pkg/curve"
	"github.com/pkg/errors"
)

// VersionBits is the width of each packed counter word. Five of them plus
// a tree_version word must fit in one BN254 scalar field element
// (254-bit capacity), so 6*40 = 240 bits is the packing this scheme uses.
// Ported from ver_tree/node.rs::VERSION_BITS.
const VersionBits = 40

// MaxVersionNumber is the largest value a 40-bit counter can hold.
const MaxVersionNumber = (uint64(1) << VersionBits) - 1

// VerInfo is a key's permanent address within the forest, learned at
// AllocateVacantSlot and invariant thereafter: which AMT (Level), which
// leaf (Index) within it, and which of that leaf's counter slots (Slot)
// the key's version lives in.
type VerInfo struct {
	Version uint64
	Level   uint8
	Index   uint32
	Slot    uint8
}

// KeyVersionEntry pairs a key occupying one slot of a forest leaf with
// its current version counter.
type KeyVersionEntry struct {
	Key     Key
	Version uint64
}

// EpochPosition names one leaf of one epoch's Merkle tree: the epoch it
// belongs to, and its position among that epoch's ordered event list.
// Ported from original_source/amt-db/src/amt_db.rs::EpochPosition (the
// live ver_tree module omits this field entirely, so it is grounded on
// amt_db.rs/multi_layer_amt's otherwise-unwired orchestrator code, which
// spec.md §3's "tree_position" data-model entry confirms belongs here).
type EpochPosition struct {
	Epoch    uint64
	Position uint64
}

// Node is the local (uncommitted) bookkeeping record for one forest leaf:
// which keys occupy its up-to-S counter slots, how many times the
// subtree rooted at this leaf (if promoted to a child AMT) has been
// committed, and where that last commit's subtree-update record landed
// in the epoch Merkle tree. Ported from ver_tree/node.rs::Node, with
// TreePosition added per spec.md §3's leaf-node invariant.
type Node struct {
	KeyVersions  []KeyVersionEntry
	TreeVersion  uint64
	TreePosition EpochPosition
}

// AsFr packs this node into the scalar field element committed at its
// AMT leaf: word 0 is TreeVersion, word i+1 is KeyVersions[i].Version,
// each a 40-bit little-endian word, ported from
// ver_tree/node.rs::Node::as_fr_int.
func (n Node) AsFr(slotsPerLeaf int) *curve.Fr {
	buf := make([]byte, 32)
	codec.PutUint40(buf[0:5], n.TreeVersion)
	for i := 0; i < len(n.KeyVersions) && i < slotsPerLeaf; i++ {
		codec.PutUint40(buf[5+5*i:10+5*i], n.KeyVersions[i].Version)
	}

	// The packed word array is little-endian as a whole (ver_tree/node.rs
	// transmutes the byte buffer directly into little-endian u64 limbs),
	// so reverse before handing it to Fr.SetBytes, which takes big-endian
	// input.
	rev := make([]byte, 32)
	for i, b := range buf {
		rev[31-i] = b
	}
	var fr curve.Fr
	fr.SetBytes(rev)
	return &fr
}

// SlotVersion returns the version counter for the given slot, or an
// error if the slot is not occupied.
func (n Node) SlotVersion(slot uint8) (uint64, error) {
	if int(slot) >= len(n.KeyVersions) {
		return 0, errors.Errorf("forest: slot %d not occupied", slot)
	}
	return n.KeyVersions[slot].Version, nil
}

func encodeNode(n *Node) []byte {
	out := make([]byte, 0, 24+len(n.KeyVersions)*32)

	versionBuf := make([]byte, 8)
	codec.PutUint64(versionBuf, n.TreeVersion)
	out = append(out, versionBuf...)

	posBuf := make([]byte, 16)
	codec.PutUint64(posBuf[0:8], n.TreePosition.Epoch)
	codec.PutUint64(posBuf[8:16], n.TreePosition.Position)
	out = append(out, posBuf...)

	countBuf := make([]byte, 4)
	codec.PutUint32(countBuf, uint32(len(n.KeyVersions)))
	out = append(out, countBuf...)

	for _, kv := range n.KeyVersions {
		out = append(out, codec.EncodeBytes(kv.Key)...)
		verBuf := make([]byte, 8)
		codec.PutUint64(verBuf, kv.Version)
		out = append(out, verBuf...)
	}
	return out
}

func decodeNode(data []byte) (*Node, error) {
	if len(data) < 28 {
		return nil, codec.ErrShortBuffer
	}
	treeVersion, err := codec.Uint64(data[0:8])
	if err != nil {
		return nil, err
	}
	epoch, err := codec.Uint64(data[8:16])
	if err != nil {
		return nil, err
	}
	position, err := codec.Uint64(data[16:24])
	if err != nil {
		return nil, err
	}
	count, err := codec.Uint32(data[24:28])
	if err != nil {
		return nil, err
	}

	offset := 28
	entries := make([]KeyVersionEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		keyBytes, consumed, err := codec.DecodeBytes(data[offset:])
		if err != nil {
			return nil, errors.Wrap(err, "decode key bytes")
		}
		offset += consumed
		if len(data) < offset+8 {
			return nil, codec.ErrShortBuffer
		}
		version, err := codec.Uint64(data[offset : offset+8])
		if err != nil {
			return nil, err
		}
		offset += 8
		entries = append(entries, KeyVersionEntry{Key: Key(keyBytes), Version: version})
	}

	return &Node{
		KeyVersions:  entries,
		TreeVersion:  treeVersion,
		TreePosition: EpochPosition{Epoch: epoch, Position: position},
	}, nil
}
