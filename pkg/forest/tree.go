package forest

import (
	"math/big"
	"sort"
	"sync"

	"github.com/amt-db/authdb/pkg/amt"
	"github.com/amt-db/authdb/pkg/curve"
	"github.com/amt-db/authdb/pkg/params"
	"github.com/amt-db/authdb/pkg/storage"
	"github.com/pkg/errors"
)

// ErrMaxLevelExceeded is returned when a key collides all the way down to
// the forest's maximum depth without finding a vacant slot.
var ErrMaxLevelExceeded = errors.New("forest: maximum forest level exceeded")

var nodeStorageCodec = storage.Codec[*Node]{
	Encode: encodeNode,
	Decode: decodeNode,
	Zero:   func() *Node { return &Node{} },
}

// SubtreeUpdate records one child AMT's commitment having been folded
// into its parent leaf during a commit walk — the record the epoch
// Merkle tree hashes as a subtree-update leaf.
type SubtreeUpdate struct {
	Name        TreeName
	TreeVersion uint64
	Commitment  *curve.G1Point
}

// Shard optionally restricts full per-leaf version tracking (required to
// generate proofs) to keys whose root-AMT leaf descends from a given
// NodeIndex; keys outside the shard use the cheaper bulk-increment path
// and cannot be proven.
type Shard struct {
	Depth int
	Index int
}

// contains reports whether leafIndex (a root-AMT leaf index) descends
// from this shard's NodeIndex.
func (s *Shard) contains(depth int, leafIndex uint32) bool {
	if s == nil {
		return true
	}
	height := depth - s.Depth
	if height < 0 {
		return false
	}
	return int(leafIndex)>>uint(height) == s.Index
}

// VersionTree is the multi-layer AMT forest: a root AMT whose leaves hold
// up to SlotsPerLeaf version counters each, with per-leaf bookkeeping
// (forest.Node) recording which key occupies which slot, and child AMTs
// created lazily wherever a leaf's slots fill up. Grounded on spec.md
// §4.3 and the data encodings of
// original_source/amt-db/src/ver_tree/{key,name,node}.rs.
type VersionTree struct {
	mu sync.Mutex

	db       storage.Backend
	pp       *params.AMTParams
	depth    int
	slots    int
	maxLevel int
	shard    *Shard

	trees    map[string]*amt.Tree
	names    map[string]TreeName
	nodeAcc  map[string]*storage.Access[storage.LeafIndex, *Node]
	dirty    map[string]bool
}

// New builds an empty VersionTree. depth is the per-layer AMT depth (D in
// spec.md), slots is S (counters per leaf), maxLevel bounds how many
// child layers a key may be promoted through before allocation fails
// with ErrMaxLevelExceeded (config.Config.MaxForestLevels), and shard
// optionally restricts full version tracking to one subtree (nil means
// every key is tracked).
func New(db storage.Backend, pp *params.AMTParams, depth, slots, maxLevel int, shard *Shard) *VersionTree {
	return &VersionTree{
		db:       db,
		pp:       pp,
		depth:    depth,
		slots:    slots,
		maxLevel: maxLevel,
		shard:    shard,
		trees:    make(map[string]*amt.Tree),
		names:    make(map[string]TreeName),
		nodeAcc:  make(map[string]*storage.Access[storage.LeafIndex, *Node]),
		dirty:    make(map[string]bool),
	}
}

func (vt *VersionTree) treeFor(name TreeName) (*amt.Tree, error) {
	k := name.Key()
	if t, ok := vt.trees[k]; ok {
		return t, nil
	}
	t, err := amt.New(name.Key(), vt.depth, vt.db, vt.pp)
	if err != nil {
		return nil, err
	}
	vt.trees[k] = t
	vt.names[k] = name
	return t, nil
}

func (vt *VersionTree) nodeAccess(name TreeName) *storage.Access[storage.LeafIndex, *Node] {
	k := name.Key()
	if a, ok := vt.nodeAcc[k]; ok {
		return a
	}
	a := storage.NewAccess[storage.LeafIndex, *Node]("vnode:"+k, storage.ColVersionTree, vt.db, nodeStorageCodec)
	vt.nodeAcc[k] = a
	return a
}

// Get returns a key's current VerInfo if it has been allocated, or
// ok=false if the key has never been written.
func (vt *VersionTree) Get(key Key) (VerInfo, bool, error) {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	level := uint8(0)
	name := RootTreeName()
	for {
		idx := key.IndexAtLevel(level, vt.depth)
		node, err := vt.nodeAccess(name).Get(storage.LeafIndex(idx))
		if err != nil {
			return VerInfo{}, false, err
		}
		for slot, kv := range node.KeyVersions {
			if string(kv.Key) == string(key) {
				return VerInfo{Version: kv.Version, Level: level, Index: idx, Slot: uint8(slot)}, true, nil
			}
		}
		if len(node.KeyVersions) < vt.slots {
			return VerInfo{}, false, nil
		}
		level++
		name = TreeNameFromKey(key, level, vt.depth)
	}
}

// AllocateVacantSlot assigns a key its permanent VerInfo, descending into
// child AMTs wherever a level's leaf is already full. Ported from
// spec.md §4.3's allocate_vacant_slot.
func (vt *VersionTree) AllocateVacantSlot(key Key) (VerInfo, error) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	return vt.allocateVacantSlotLocked(key)
}

func (vt *VersionTree) allocateVacantSlotLocked(key Key) (VerInfo, error) {
	level := uint8(0)
	name := RootTreeName()

	for {
		idx := key.IndexAtLevel(level, vt.depth)
		acc := vt.nodeAccess(name)
		node, err := acc.Get(storage.LeafIndex(idx))
		if err != nil {
			return VerInfo{}, err
		}

		if len(node.KeyVersions) < vt.slots {
			slot := len(node.KeyVersions)
			node.KeyVersions = append(node.KeyVersions, KeyVersionEntry{Key: key, Version: 0})
			if err := acc.Set(storage.LeafIndex(idx), node); err != nil {
				return VerInfo{}, err
			}
			return VerInfo{Version: 0, Level: level, Index: idx, Slot: uint8(slot)}, nil
		}

		if int(level)+1 > vt.maxLevel {
			return VerInfo{}, ErrMaxLevelExceeded
		}
		level++
		name = TreeNameFromKey(key, level, vt.depth)
	}
}

// IncKeyVersion increments a key's version counter, allocating a slot
// first if prior is nil. When the key lives below the root AMT (level > 0),
// or its root-AMT leaf falls inside the configured shard (or no shard is
// configured), the increment is applied as a normal tree write so the AMT
// opening proof stays consistent; otherwise a bulk update bumps the packed
// counter field directly.
// Ported from spec.md §4.3's inc_key_ver.
func (vt *VersionTree) IncKeyVersion(key Key, prior *VerInfo) (VerInfo, error) {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	var info VerInfo
	var err error
	if prior == nil {
		info, err = vt.allocateVacantSlotLocked(key)
		if err != nil {
			return VerInfo{}, err
		}
	} else {
		info = *prior
	}

	name := treeNameForInfo(key, info, vt.depth)
	tree, err := vt.treeFor(name)
	if err != nil {
		return VerInfo{}, err
	}
	acc := vt.nodeAccess(name)

	node, err := acc.Get(storage.LeafIndex(info.Index))
	if err != nil {
		return VerInfo{}, err
	}
	if int(info.Slot) >= len(node.KeyVersions) {
		return VerInfo{}, errors.Errorf("forest: slot %d not allocated at %s leaf %d", info.Slot, name, info.Index)
	}
	node.KeyVersions[info.Slot].Version++

	inShard := info.Level != 0 || vt.shard.contains(vt.depth, info.Index)

	if inShard {
		guard, err := tree.Write(int(info.Index))
		if err != nil {
			return VerInfo{}, err
		}
		guard.Value = node.AsFr(vt.slots)
		if err := guard.Commit(); err != nil {
			return VerInfo{}, err
		}
	} else {
		delta := bulkSlotDelta(info.Slot)
		if err := tree.BulkIncrement(int(info.Index), delta); err != nil {
			return VerInfo{}, err
		}
	}

	if err := acc.Set(storage.LeafIndex(info.Index), node); err != nil {
		return VerInfo{}, err
	}
	vt.dirty[name.Key()] = true

	info.Version = node.KeyVersions[info.Slot].Version
	return info, nil
}

// bulkSlotDelta returns 2^(40*(slot+1)), the value a +1 increment of slot
// adds to a node's packed field element, without needing to decode or
// re-encode the rest of the leaf's contents.
func bulkSlotDelta(slot uint8) *curve.Fr {
	exp := uint(VersionBits) * (uint(slot) + 1)
	v := new(big.Int).Lsh(big.NewInt(1), exp)
	return curve.FrFromBigInt(v)
}

func treeNameForInfo(key Key, info VerInfo, depth int) TreeName {
	if info.Level == 0 {
		return RootTreeName()
	}
	return TreeNameFromKey(key, info.Level, depth)
}

// Commit performs the depth-first commit walk described in spec.md §4.3:
// deepest level first, every dirty subtree is flushed, its parent leaf's
// tree_version is incremented, and a subtree-update record carrying the
// subtree's new commitment is emitted, until only the root AMT remains
// dirty. The parent leaf does not store the child's commitment itself; the
// commitment appears only in the subtree-update record. epoch and startPos (the count of leaf-record hashes
// already emitted this epoch, ahead of the subtree-update hashes this
// call produces) are stamped into each folded-into parent leaf's
// TreePosition, so a later Prove call knows where to find that leaf's
// own subtree-update record in the epoch Merkle tree. Returns the root
// commitment and the ordered list of subtree-update records the epoch
// Merkle tree hashes as leaves. Every forest leaf-bookkeeping cache is
// written through to the backend before returning.
func (vt *VersionTree) Commit(epoch, startPos uint64) (*curve.G1Point, []SubtreeUpdate, error) {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	maxLevel := 0
	for k, name := range vt.names {
		if vt.dirty[k] && int(name.Level) > maxLevel {
			maxLevel = int(name.Level)
		}
	}

	var updates []SubtreeUpdate

	for level := maxLevel; level >= 1; level-- {
		var keys []string
		for k, name := range vt.names {
			if vt.dirty[k] && int(name.Level) == level {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool {
			return vt.names[keys[i]].Path.Cmp(vt.names[keys[j]].Path) < 0
		})

		for _, k := range keys {
			name := vt.names[k]
			tree := vt.trees[k]

			if err := tree.Flush(); err != nil {
				return nil, nil, err
			}
			commitment, err := tree.Commitment()
			if err != nil {
				return nil, nil, err
			}

			parentName, leafIndex, ok := name.Parent(vt.depth)
			if !ok {
				return nil, nil, errors.Errorf("forest: non-root dirty tree %s has no parent", name)
			}

			parentTree, err := vt.treeFor(parentName)
			if err != nil {
				return nil, nil, err
			}
			parentAcc := vt.nodeAccess(parentName)
			parentNode, err := parentAcc.Get(storage.LeafIndex(leafIndex))
			if err != nil {
				return nil, nil, err
			}
			parentNode.TreeVersion++
			parentNode.TreePosition = EpochPosition{Epoch: epoch, Position: startPos + uint64(len(updates))}

			guard, err := parentTree.Write(int(leafIndex))
			if err != nil {
				return nil, nil, err
			}
			guard.Value = parentNode.AsFr(vt.slots)
			if err := guard.Commit(); err != nil {
				return nil, nil, err
			}
			if err := parentAcc.Set(storage.LeafIndex(leafIndex), parentNode); err != nil {
				return nil, nil, err
			}

			updates = append(updates, SubtreeUpdate{
				Name:        name,
				TreeVersion: parentNode.TreeVersion,
				Commitment:  commitment,
			})

			vt.dirty[parentName.Key()] = true
			delete(vt.dirty, k)
		}
	}

	root, err := vt.treeFor(RootTreeName())
	if err != nil {
		return nil, nil, err
	}
	if err := root.Flush(); err != nil {
		return nil, nil, err
	}
	rootCommitment, err := root.Commitment()
	if err != nil {
		return nil, nil, err
	}
	delete(vt.dirty, RootTreeName().Key())

	for _, acc := range vt.nodeAcc {
		if err := acc.Flush(); err != nil {
			return nil, nil, err
		}
	}

	return rootCommitment, updates, nil
}

// Depth returns the per-layer AMT depth (D in spec.md).
func (vt *VersionTree) Depth() int { return vt.depth }

// Slots returns S, the number of version counters packed per leaf.
func (vt *VersionTree) Slots() int { return vt.slots }

// Tree returns the AMT for a given name, creating it if it does not yet
// exist. Used by the AuthDB layer to build opening proofs; NodeAt returns
// the matching leaf-bookkeeping Node.
func (vt *VersionTree) Tree(name TreeName) (*amt.Tree, error) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	return vt.treeFor(name)
}

// NodeAt returns the leaf-bookkeeping Node at a given tree/index.
func (vt *VersionTree) NodeAt(name TreeName, index uint32) (*Node, error) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	return vt.nodeAccess(name).Get(storage.LeafIndex(index))
}
