package authdb

import (
	"github.com/amt-db/authdb/pkg/amt"
	"github.com/amt-db/authdb/pkg/codec"
	"github.com/amt-db/authdb/pkg/curve"
	"github.com/amt-db/authdb/pkg/epochmerkle"
	"github.com/amt-db/authdb/pkg/forest"
	"github.com/pkg/errors"
)

// Value is the record persisted in the key column: a committed key's raw
// bytes plus the VerInfo it was assigned and the epoch Merkle leaf that
// bound it. Ported from original_source/amt-db/src/amt_db.rs::Value.
type Value struct {
	Bytes    []byte
	VerInfo  forest.VerInfo
	Position forest.EpochPosition
}

func encodeValueLocal(v *Value) []byte {
	out := codec.EncodeBytes(v.Bytes)

	verBuf := make([]byte, 14)
	codec.PutUint64(verBuf[0:8], v.VerInfo.Version)
	verBuf[8] = v.VerInfo.Level
	codec.PutUint32(verBuf[9:13], v.VerInfo.Index)
	verBuf[13] = v.VerInfo.Slot
	out = append(out, verBuf...)

	posBuf := make([]byte, 16)
	codec.PutUint64(posBuf[0:8], v.Position.Epoch)
	codec.PutUint64(posBuf[8:16], v.Position.Position)
	out = append(out, posBuf...)
	return out
}

func decodeValueLocal(data []byte) (*Value, error) {
	bytes, consumed, err := codec.DecodeBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode value bytes")
	}
	rest := data[consumed:]
	if len(rest) < 30 {
		return nil, codec.ErrShortBuffer
	}
	version, err := codec.Uint64(rest[0:8])
	if err != nil {
		return nil, err
	}
	index, err := codec.Uint32(rest[9:13])
	if err != nil {
		return nil, err
	}
	epoch, err := codec.Uint64(rest[14:22])
	if err != nil {
		return nil, err
	}
	position, err := codec.Uint64(rest[22:30])
	if err != nil {
		return nil, err
	}

	return &Value{
		Bytes: bytes,
		VerInfo: forest.VerInfo{
			Version: version,
			Level:   rest[8],
			Index:   index,
			Slot:    rest[13],
		},
		Position: forest.EpochPosition{Epoch: epoch, Position: position},
	}, nil
}

// KeyValue is the leaf-record payload hashed into the epoch Merkle tree
// for a committed key write. Ported from amt_db.rs::KeyValue.
type KeyValue struct {
	Key     forest.Key
	VerInfo forest.VerInfo
	Value   []byte
}

func (kv KeyValue) encodeConsensus() []byte {
	out := codec.EncodeBytes(kv.Key)

	verBuf := make([]byte, 14)
	codec.PutUint64(verBuf[0:8], kv.VerInfo.Version)
	verBuf[8] = kv.VerInfo.Level
	codec.PutUint32(verBuf[9:13], kv.VerInfo.Index)
	verBuf[13] = kv.VerInfo.Slot
	out = append(out, verBuf...)

	out = append(out, codec.EncodeBytes(kv.Value)...)
	return out
}

// TreeValue is the subtree-update payload hashed into the epoch Merkle
// tree whenever a forest commit folds a child AMT's commitment into its
// parent. Ported from amt_db.rs::TreeValue.
type TreeValue struct {
	Name        forest.TreeName
	TreeVersion uint64
	Commitment  *curve.G1Point
}

func (tv TreeValue) encodeConsensus() []byte {
	out := codec.EncodeBytes(tv.Name.EncodeConsensus())
	verBuf := make([]byte, 8)
	codec.PutUint64(verBuf, tv.TreeVersion)
	out = append(out, verBuf...)
	out = append(out, codec.EncodeG1Consensus(tv.Commitment)...)
	return out
}

// AssociateProof is the leaf payload of a Proof: the value itself (if
// the key exists) and the VerInfo naming where its counter lives. Ported
// from amt_db.rs::AssociateProof.
type AssociateProof struct {
	Value   []byte
	VerInfo forest.VerInfo
}

// LevelProof is one level's worth of opening evidence: the AMT proof for
// the leaf at that level, the leaf's packed field-element form and the
// counter it is supposed to encode (key version at the bottom level,
// tree_version above it), and the epoch Merkle path binding that level's
// event record into its epoch's root. Ported from amt_db.rs::LevelProof.
type LevelProof struct {
	MerkleEpoch uint64
	MerkleProof epochmerkle.Proof
	AMTProof    amt.Proof
	Commitment  *curve.G1Point
	NodeFr      *curve.Fr
	NodeVersion uint64
}

// Proof is a full opening for one key: its associated value/VerInfo, and
// one LevelProof per forest level the key's name path passes through,
// ordered from the root AMT (index 0) down to the key's own leaf
// (index len-1). Ported from amt_db.rs::Proof.
type Proof struct {
	Associate AssociateProof
	Levels    []LevelProof
}
