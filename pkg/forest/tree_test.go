package forest

import (
	"testing"

	"github.com/amt-db/authdb/pkg/params"
	"github.com/amt-db/authdb/pkg/storage/memory"
	"github.com/stretchr/testify/require"
)

func testForest(t *testing.T, depth, slots, maxLevel int) *VersionTree {
	t.Helper()
	pt, err := params.Setup(depth)
	require.NoError(t, err)
	pp, err := params.FromPowerTau(pt)
	require.NoError(t, err)
	return New(memory.New(), pp, depth, slots, maxLevel, nil)
}

// TestSlotSaturationTriggersPromotion ports spec.md S2: six keys sharing
// the same root-AMT leaf fill its five slots, then the sixth is promoted
// into a child AMT named after the overflowing leaf.
func TestSlotSaturationTriggersPromotion(t *testing.T) {
	const depth = 8
	const slots = 5
	vt := testForest(t, depth, slots, 8)

	keys := make([]Key, 6)
	for i := 0; i < 6; i++ {
		keys[i] = Key([]byte{1, 2, byte(i), 0})
	}
	// Every key shares the same level-0 window (byte 0 = 1).
	leaf0 := keys[0].IndexAtLevel(0, depth)
	for i := 1; i < 6; i++ {
		require.Equal(t, leaf0, keys[i].IndexAtLevel(0, depth))
	}

	infos := make([]VerInfo, 6)
	for i, k := range keys {
		info, err := vt.IncKeyVersion(k, nil)
		require.NoError(t, err)
		infos[i] = info
	}

	for i := 0; i < slots; i++ {
		require.Equal(t, uint8(0), infos[i].Level, "key %d should stay at root level", i)
		require.Equal(t, uint8(i), infos[i].Slot)
	}
	require.Equal(t, uint8(1), infos[5].Level, "sixth key must be promoted")

	_, _, err := vt.Commit(0, 0)
	require.NoError(t, err)

	childName := TreeNameFromKey(keys[5], 1, depth)
	_, ok := vt.trees[childName.Key()]
	require.True(t, ok, "child AMT for the overflowing leaf must exist after commit")
}

// TestRepeatedWritesDoNotReallocate ports spec.md S3: writing the same key
// across several commits leaves its (level, slot) fixed while its version
// counts up.
func TestRepeatedWritesDoNotReallocate(t *testing.T) {
	vt := testForest(t, 8, 5, 8)
	key := Key("repeated")

	info1, err := vt.IncKeyVersion(key, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), info1.Version)
	_, _, err = vt.Commit(0, 0)
	require.NoError(t, err)

	info2, err := vt.IncKeyVersion(key, &info1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), info2.Version)
	require.Equal(t, info1.Level, info2.Level)
	require.Equal(t, info1.Index, info2.Index)
	require.Equal(t, info1.Slot, info2.Slot)
}

// TestMaxLevelExceeded confirms allocation fails once every level down to
// maxLevel is saturated by colliding keys.
func TestMaxLevelExceeded(t *testing.T) {
	const depth = 8
	const slots = 1
	const maxLevel = 2
	vt := testForest(t, depth, slots, maxLevel)

	// Keys sharing every window up to maxLevel collide all the way down.
	base := make([]byte, maxLevel+2)
	var lastErr error
	for i := 0; i < 8; i++ {
		k := append([]byte{}, base...)
		k[len(k)-1] = byte(i)
		_, err := vt.IncKeyVersion(Key(k), nil)
		if err != nil {
			lastErr = err
			break
		}
	}
	require.ErrorIs(t, lastErr, ErrMaxLevelExceeded)
}

// TestNodeAsFrPacking ports spec.md P6: a leaf's packed field element is
// the little-endian concatenation of 40-bit (tree_version, slot...) words,
// zero-padded to 256 bits, with the top bits zero.
func TestNodeAsFrPacking(t *testing.T) {
	n := Node{
		TreeVersion: 3,
		KeyVersions: []KeyVersionEntry{
			{Key: Key("a"), Version: 10},
			{Key: Key("b"), Version: 20},
		},
	}
	fr := n.AsFr(5)
	b := fr.Bytes()

	// Bytes() is big-endian; reverse to read out little-endian 40-bit words.
	rev := make([]byte, len(b))
	for i, c := range b {
		rev[len(b)-1-i] = c
	}
	require.Equal(t, uint64(3), le40(rev[0:5]))
	require.Equal(t, uint64(10), le40(rev[5:10]))
	require.Equal(t, uint64(20), le40(rev[10:15]))
	for _, z := range rev[15:] {
		require.Zero(t, z, "bytes beyond the packed words must be zero")
	}
}

func le40(b []byte) uint64 {
	var v uint64
	for i := 0; i < 5; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func TestGetReturnsUnallocated(t *testing.T) {
	vt := testForest(t, 8, 5, 8)
	_, ok, err := vt.Get(Key("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTreeNameParentRoundTrip(t *testing.T) {
	const depth = 8
	key := Key([]byte{1, 2, 3, 4})
	name := TreeNameFromKey(key, 3, depth)

	parent, leaf, ok := name.Parent(depth)
	require.True(t, ok)
	require.Equal(t, uint8(2), parent.Level)
	require.Equal(t, key.IndexAtLevel(2, depth), leaf)

	grandparent, _, ok := parent.Parent(depth)
	require.True(t, ok)
	require.Equal(t, RootTreeName().Key(), grandparent.Key())

	_, _, ok = RootTreeName().Parent(depth)
	require.False(t, ok, "root tree has no parent")
}

// TestMultipleKeysAcrossLeaves spreads keys across distinct root-AMT
// leaves (by varying each key's first byte, the level-0 window) so none
// collide — no promotion should occur and the commit walk should produce
// no subtree-update records.
func TestMultipleKeysAcrossLeaves(t *testing.T) {
	vt := testForest(t, 8, 5, 8)
	for i := 0; i < 64; i++ {
		k := Key([]byte{byte(i), 0, 0, 0})
		info, err := vt.IncKeyVersion(k, nil)
		require.NoError(t, err)
		require.Equal(t, uint8(0), info.Level)
		require.Equal(t, uint32(i), info.Index)
	}
	_, updates, err := vt.Commit(0, 0)
	require.NoError(t, err)
	require.Empty(t, updates, "no key collided past a single root leaf, so no subtree was promoted")
}
