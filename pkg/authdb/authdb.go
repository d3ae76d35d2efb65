// Package authdb implements the top-level authenticated key-value store:
// the public get/set/commit/prove/verify contract that mediates the
// pending-writes list, a read cache, the multi-layer AMT forest, and the
// per-epoch Merkle tree, writing all three backend columns through in one
// buffered flush per commit. Ported from
// original_source/amt-db/src/amt_db.rs::AmtDb — the orchestrator lib.rs
// actually wires in (`simple_db.rs`) is an earlier, unfinished stub with
// no Merkle tree or proof support, so amt_db.rs is used as the grounding
// source for this package despite also not being declared in lib.rs.
package authdb

import (
	"sync"

	"github.com/amt-db/authdb/pkg/amt"
	"github.com/amt-db/authdb/pkg/codec"
	"github.com/amt-db/authdb/pkg/config"
	"github.com/amt-db/authdb/pkg/curve"
	"github.com/amt-db/authdb/pkg/epochmerkle"
	"github.com/amt-db/authdb/pkg/forest"
	"github.com/amt-db/authdb/pkg/params"
	"github.com/amt-db/authdb/pkg/storage"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// epochKey is the fixed key the current epoch counter lives at in the
// merkle column, matching amt_db.rs::EPOCH_NUMBER_KEY.
var epochKey = []byte{0x00, 0x00}

type pendingWrite struct {
	key   forest.Key
	value []byte
}

// cacheEntry is a read-cache slot: nil means the key is known absent.
type cacheEntry struct {
	value *Value
}

// AuthDB is the authenticated store's public orchestrator.
type AuthDB struct {
	mu sync.Mutex

	db     storage.Backend
	pp     *params.AMTParams
	forest *forest.VersionTree
	log    *zap.Logger

	pending []pendingWrite
	cache   map[string]*cacheEntry
}

// Open builds an AuthDB over db, using pp for every AMT in the forest
// (depth, slots, and maxLevel come from pp/config, not from db), and
// shard to optionally restrict full version tracking.
func Open(db storage.Backend, pp *params.AMTParams, slots, maxLevel int, shard *forest.Shard, log *zap.Logger) *AuthDB {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthDB{
		db:     db,
		pp:     pp,
		forest: forest.New(db, pp, pp.Depth(), slots, maxLevel, shard),
		log:    log,
		cache:  make(map[string]*cacheEntry),
	}
}

// OpenWithConfig validates cfg and builds an AuthDB from it, applying
// cfg.TreeDepth/SlotsPerLeaf/MaxForestLevels to the forest instead of
// requiring the caller to pass each one individually. pp must already be
// generated for cfg.TreeDepth.
func OpenWithConfig(cfg *config.Config, db storage.Backend, pp *params.AMTParams, shard *forest.Shard, log *zap.Logger) (*AuthDB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "authdb: invalid config")
	}
	if pp.Depth() != int(cfg.TreeDepth) {
		return nil, errors.Errorf("authdb: params depth %d does not match config tree depth %d", pp.Depth(), cfg.TreeDepth)
	}
	return Open(db, pp, int(cfg.SlotsPerLeaf), int(cfg.MaxForestLevels), shard, log), nil
}

// Get returns the raw value bytes committed for key, or (nil, nil) if
// the key has never been committed. Uncommitted pending writes are not
// visible — only the previous commit's state is.
func (a *AuthDB) Get(key forest.Key) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	val, err := a.readValue(key)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, nil
	}
	return val.Bytes, nil
}

// readValue loads a key's Value record through the read cache, without
// holding a.mu (callers must already hold it).
func (a *AuthDB) readValue(key forest.Key) (*Value, error) {
	if e, ok := a.cache[string(key)]; ok {
		return e.value, nil
	}

	raw, err := a.db.Get(storage.ColKeyRecords, key)
	if err != nil {
		return nil, errors.Wrap(err, "authdb: read key record")
	}
	if raw == nil {
		a.cache[string(key)] = &cacheEntry{}
		return nil, nil
	}
	val, err := decodeValueLocal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "authdb: decode key record")
	}
	a.cache[string(key)] = &cacheEntry{value: val}
	return val, nil
}

// Set appends (key, value) to the pending-writes list. It does not
// consult the forest, the cache, or the backend.
func (a *AuthDB) Set(key forest.Key, value []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, pendingWrite{key: key, value: value})
}

// CurrentEpoch reads the persisted epoch counter, defaulting to 0.
func (a *AuthDB) CurrentEpoch() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentEpochLocked()
}

func (a *AuthDB) currentEpochLocked() (uint64, error) {
	raw, err := a.db.Get(storage.ColMerkle, epochKey)
	if err != nil {
		return 0, errors.Wrap(err, "authdb: read epoch counter")
	}
	if raw == nil {
		return 0, nil
	}
	return codec.Uint64(raw)
}

// Commit applies every pending write: each key's version is incremented
// in the forest (allocating a slot on first write), a leaf-record hash
// is emitted for the epoch Merkle tree, the forest's dirty subtrees are
// committed bottom-up (emitting a subtree-update hash per change), and
// the resulting event list is dumped into a new epoch Merkle tree. All
// three columns are written through in this one call; the read cache is
// cleared and the epoch counter advances. Ported from
// amt_db.rs::AmtDb::commit.
func (a *AuthDB) Commit() (*curve.G1Point, epochmerkle.Hash, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	epoch, err := a.currentEpochLocked()
	if err != nil {
		return nil, epochmerkle.Hash{}, err
	}

	pending := a.pending
	a.pending = nil

	hashes := make([]epochmerkle.Hash, 0, len(pending))
	records := make([]struct {
		key   forest.Key
		value []byte
	}, 0, len(pending))

	for position, pw := range pending {
		prior, err := a.priorVersionLocked(pw.key)
		if err != nil {
			return nil, epochmerkle.Hash{}, err
		}

		info, err := a.forest.IncKeyVersion(pw.key, prior)
		if err != nil {
			if errors.Is(err, forest.ErrMaxLevelExceeded) {
				return nil, epochmerkle.Hash{}, &MaxLevelExceeded{cause: err}
			}
			return nil, epochmerkle.Hash{}, errors.Wrap(err, "authdb: increment key version")
		}

		val := &Value{
			Bytes:   pw.value,
			VerInfo: info,
			Position: forest.EpochPosition{
				Epoch:    epoch,
				Position: uint64(position),
			},
		}
		records = append(records, struct {
			key   forest.Key
			value []byte
		}{key: pw.key, value: encodeValueLocal(val)})

		hash := crypto.Keccak256Hash(KeyValue{Key: pw.key, VerInfo: info, Value: pw.value}.encodeConsensus())
		hashes = append(hashes, epochmerkle.Hash(hash))
	}

	for _, r := range records {
		if err := a.db.Put(storage.ColKeyRecords, r.key, r.value); err != nil {
			return nil, epochmerkle.Hash{}, errors.Wrap(err, "authdb: write key record")
		}
	}

	rootCommitment, updates, err := a.forest.Commit(epoch, uint64(len(hashes)))
	if err != nil {
		return nil, epochmerkle.Hash{}, errors.Wrap(err, "authdb: commit forest")
	}

	for _, u := range updates {
		hash := crypto.Keccak256Hash(TreeValue{Name: u.Name, TreeVersion: u.TreeVersion, Commitment: u.Commitment}.encodeConsensus())
		hashes = append(hashes, epochmerkle.Hash(hash))
	}

	merkleRoot, err := epochmerkle.Dump(a.db, epoch, hashes)
	if err != nil {
		return nil, epochmerkle.Hash{}, errors.Wrap(err, "authdb: dump epoch merkle tree")
	}

	newEpoch := make([]byte, 8)
	codec.PutUint64(newEpoch, epoch+1)
	if err := a.db.Put(storage.ColMerkle, epochKey, newEpoch); err != nil {
		return nil, epochmerkle.Hash{}, errors.Wrap(err, "authdb: write epoch counter")
	}

	if err := a.db.Flush(); err != nil {
		return nil, epochmerkle.Hash{}, errors.Wrap(err, "authdb: flush backend")
	}

	a.cache = make(map[string]*cacheEntry)

	a.log.Sugar().Infow("authdb: committed epoch",
		"epoch", epoch, "writes", len(pending), "subtree_updates", len(updates))

	return rootCommitment, merkleRoot, nil
}

// priorVersionLocked returns the VerInfo a key was last assigned, from
// the read cache or (on a cache miss) the backend directly — mirroring
// amt_db.rs::commit's lookup, which does not see other pending writes to
// the same key processed earlier in the same commit batch.
func (a *AuthDB) priorVersionLocked(key forest.Key) (*forest.VerInfo, error) {
	if e, ok := a.cache[string(key)]; ok {
		if e.value == nil {
			return nil, nil
		}
		info := e.value.VerInfo
		return &info, nil
	}

	raw, err := a.db.Get(storage.ColKeyRecords, key)
	if err != nil {
		return nil, errors.Wrap(err, "authdb: read key record")
	}
	if raw == nil {
		return nil, nil
	}
	val, err := decodeValueLocal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "authdb: decode key record")
	}
	info := val.VerInfo
	return &info, nil
}

// Prove builds a full opening proof for key: its committed value and
// VerInfo, plus one LevelProof per forest level from the root AMT down
// to the key's own leaf. Ported from amt_db.rs::AmtDb::prove.
func (a *AuthDB) Prove(key forest.Key) (*Proof, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, err := a.db.Get(storage.ColKeyRecords, key)
	if err != nil {
		return nil, errors.Wrap(err, "authdb: read key record")
	}
	if raw == nil {
		return nil, ErrKeyNotFound
	}
	val, err := decodeValueLocal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "authdb: decode key record")
	}
	info := val.VerInfo
	depth := a.forest.Depth()

	levels := make([]LevelProof, int(info.Level)+1)

	bottomName := treeNameAtLevel(key, info.Level, depth)
	bottomIndex := key.IndexAtLevel(info.Level, depth)
	commitment, node, amtProof, err := a.proveAMTNode(bottomName, bottomIndex)
	if err != nil {
		return nil, err
	}
	version, err := node.SlotVersion(info.Slot)
	if err != nil {
		return nil, errors.Wrap(err, "authdb: bottom-level slot")
	}
	merkleEpoch, merkleProof, err := a.proveMerkle(val.Position)
	if err != nil {
		return nil, err
	}
	levels[info.Level] = LevelProof{
		MerkleEpoch: merkleEpoch,
		MerkleProof: merkleProof,
		AMTProof:    amtProof,
		Commitment:  commitment,
		NodeFr:      node.AsFr(a.forest.Slots()),
		NodeVersion: version,
	}

	for level := int(info.Level); level >= 1; level-- {
		name := treeNameAtLevel(key, uint8(level-1), depth)
		index := key.IndexAtLevel(uint8(level-1), depth)

		commitment, node, amtProof, err := a.proveAMTNode(name, index)
		if err != nil {
			return nil, err
		}
		merkleEpoch, merkleProof, err := a.proveMerkle(node.TreePosition)
		if err != nil {
			return nil, err
		}
		levels[level-1] = LevelProof{
			MerkleEpoch: merkleEpoch,
			MerkleProof: merkleProof,
			AMTProof:    amtProof,
			Commitment:  commitment,
			NodeFr:      node.AsFr(a.forest.Slots()),
			NodeVersion: node.TreeVersion,
		}
	}

	return &Proof{
		Associate: AssociateProof{Value: val.Bytes, VerInfo: info},
		Levels:    levels,
	}, nil
}

func treeNameAtLevel(key forest.Key, level uint8, depth int) forest.TreeName {
	if level == 0 {
		return forest.RootTreeName()
	}
	return forest.TreeNameFromKey(key, level, depth)
}

// proveAMTNode returns the commitment, leaf-bookkeeping node, and AMT
// opening proof for one forest leaf.
func (a *AuthDB) proveAMTNode(name forest.TreeName, index uint32) (*curve.G1Point, *forest.Node, amt.Proof, error) {
	tree, err := a.forest.Tree(name)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "authdb: open amt")
	}
	commitment, err := tree.Commitment()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "authdb: read amt commitment")
	}
	node, err := a.forest.NodeAt(name, index)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "authdb: read forest node")
	}
	proof, err := tree.Prove(int(index))
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "authdb: build amt proof")
	}
	return commitment, node, proof, nil
}

func (a *AuthDB) proveMerkle(pos forest.EpochPosition) (uint64, epochmerkle.Proof, error) {
	tree, err := epochmerkle.Open(a.db, pos.Epoch)
	if err != nil {
		return 0, epochmerkle.Proof{}, errors.Wrap(err, "authdb: open epoch merkle tree")
	}
	proof, err := tree.Prove(pos.Position)
	if err != nil {
		return 0, epochmerkle.Proof{}, errors.Wrap(err, "authdb: prove epoch merkle path")
	}
	return pos.Epoch, proof, nil
}

// FlushRoot flushes the backend's buffered writes without advancing the
// epoch or touching the pending-writes list. It does not write out the
// forest's in-memory caches; those reach the backend only through Commit.
// Ported from
// amt_db.rs::AmtDb::flush_root.
func (a *AuthDB) FlushRoot() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db.Flush()
}

// EpochRootLookup resolves an epoch number to its Merkle root, supplied
// by the caller of Verify (the store keeps no in-memory epoch→root
// index beyond the current epoch's counter).
type EpochRootLookup func(epoch uint64) (epochmerkle.Hash, error)

// Verify checks a Proof built by Prove against epochRoot-resolvable
// Merkle roots and the public parameters pp: every level's AMT pairing
// equation, the bottom level's leaf-record Merkle proof, every
// intermediate level's subtree-update Merkle proof, and version
// consistency between each level's packed field element and its
// reported counter. Ported from amt_db.rs::AmtDb::verify.
func Verify(key forest.Key, proof *Proof, epochRoot EpochRootLookup, pp *params.AMTParams, slots int) error {
	depth := pp.Depth()
	info := proof.Associate.VerInfo

	for level, lp := range proof.Levels {
		index := key.IndexAtLevel(uint8(level), depth)
		if !amt.Verify(int(index), lp.NodeFr, lp.Commitment, lp.AMTProof, pp) {
			return &ProofMismatch{Reason: "AMT pairing", Level: level}
		}
	}

	bottom := proof.Levels[len(proof.Levels)-1]
	if proof.Associate.Value != nil {
		hash := crypto.Keccak256Hash(KeyValue{Key: key, VerInfo: info, Value: proof.Associate.Value}.encodeConsensus())
		root, err := epochRoot(bottom.MerkleEpoch)
		if err != nil {
			return errors.Wrap(err, "authdb: resolve epoch root")
		}
		if !epochmerkle.Verify(root, epochmerkle.Hash(hash), bottom.MerkleProof) {
			return &ProofMismatch{Reason: "Merkle", Level: len(proof.Levels) - 1}
		}
	}

	for level := 0; level < len(proof.Levels)-1; level++ {
		lp := proof.Levels[level]
		child := proof.Levels[level+1]
		name := treeNameAtLevel(key, uint8(level+1), depth)

		hash := crypto.Keccak256Hash(TreeValue{Name: name, TreeVersion: lp.NodeVersion, Commitment: child.Commitment}.encodeConsensus())
		root, err := epochRoot(lp.MerkleEpoch)
		if err != nil {
			return errors.Wrap(err, "authdb: resolve epoch root")
		}
		if !epochmerkle.Verify(root, epochmerkle.Hash(hash), lp.MerkleProof) {
			return &ProofMismatch{Reason: "Merkle", Level: level}
		}
	}

	if versionFromFr(bottom.NodeFr, int(info.Slot)+1) != bottom.NodeVersion {
		return &ProofMismatch{Reason: "version-consistency", Level: len(proof.Levels) - 1}
	}
	for level := 0; level < len(proof.Levels)-1; level++ {
		lp := proof.Levels[level]
		if versionFromFr(lp.NodeFr, 0) != lp.NodeVersion {
			return &ProofMismatch{Reason: "version-consistency", Level: level}
		}
	}

	return nil
}

// versionFromFr extracts the 40-bit word at the given slot position
// (0 = tree_version, i>0 = slot i-1) from a leaf's packed field element,
// the inverse of forest.Node.AsFr. Ported from
// ver_tree/node.rs::Node::versions_from_fr_int.
func versionFromFr(f *curve.Fr, word int) uint64 {
	b := f.Bytes()
	rev := make([]byte, len(b))
	for i, c := range b {
		rev[len(b)-1-i] = c
	}
	start := word * 5
	if start+5 > len(rev) {
		return 0
	}
	v, _ := codec.Uint40(rev[start : start+5])
	return v
}
