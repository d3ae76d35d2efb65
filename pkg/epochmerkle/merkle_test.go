package epochmerkle

import (
	"encoding/binary"
	"testing"

	"github.com/amt-db/authdb/pkg/storage/memory"
	"github.com/stretchr/testify/require"
)

func hashFromLowU64(v uint64) Hash {
	var h Hash
	binary.BigEndian.PutUint64(h[24:32], v)
	return h
}

// TestDumpAndProveRoundTrip mirrors the original's test_static_merkle_tree:
// for every epoch length from 1 to 32, every leaf's proof must verify
// against the dumped root.
func TestDumpAndProveRoundTrip(t *testing.T) {
	db := memory.New()
	defer func() { _ = db.Close() }()

	for epoch := uint64(1); epoch <= 32; epoch++ {
		data := make([]Hash, epoch)
		for i := range data {
			data[i] = hashFromLowU64(uint64(i) + 65536)
		}

		root, err := Dump(db, epoch, data)
		require.NoError(t, err)

		tree, err := Open(db, epoch)
		require.NoError(t, err)
		require.Equal(t, root, tree.Root())

		for i := uint64(0); i < epoch; i++ {
			proof, err := tree.Prove(i)
			require.NoError(t, err)
			require.True(t, Verify(root, hashFromLowU64(i+65536), proof),
				"proof failed at epoch %d position %d", epoch, i)
		}
	}
}

func TestVerifyRejectsWrongLeaf(t *testing.T) {
	db := memory.New()
	defer func() { _ = db.Close() }()

	data := []Hash{hashFromLowU64(1), hashFromLowU64(2), hashFromLowU64(3), hashFromLowU64(4)}
	root, err := Dump(db, 1, data)
	require.NoError(t, err)

	tree, err := Open(db, 1)
	require.NoError(t, err)

	proof, err := tree.Prove(0)
	require.NoError(t, err)
	require.False(t, Verify(root, hashFromLowU64(999), proof))
}

// TestCrossEpochIndependence ports spec.md S6: events committed at one
// epoch must not affect another epoch's root, even on the same backend.
func TestCrossEpochIndependence(t *testing.T) {
	db := memory.New()
	defer func() { _ = db.Close() }()

	dataA := []Hash{hashFromLowU64(1), hashFromLowU64(2)}
	dataB := []Hash{hashFromLowU64(3), hashFromLowU64(4), hashFromLowU64(5)}

	rootA, err := Dump(db, 10, dataA)
	require.NoError(t, err)
	rootB, err := Dump(db, 11, dataB)
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB)

	treeA, err := Open(db, 10)
	require.NoError(t, err)
	require.Equal(t, rootA, treeA.Root())

	treeB, err := Open(db, 11)
	require.NoError(t, err)
	require.Equal(t, rootB, treeB.Root())
}

// TestDeterministicAcrossFreshDatabases ports spec.md P5/S5: identical
// event lists dumped into two independent backends produce identical
// roots.
func TestDeterministicAcrossFreshDatabases(t *testing.T) {
	data := []Hash{hashFromLowU64(11), hashFromLowU64(22), hashFromLowU64(33), hashFromLowU64(44), hashFromLowU64(55)}

	db1 := memory.New()
	root1, err := Dump(db1, 0, data)
	require.NoError(t, err)

	db2 := memory.New()
	root2, err := Dump(db2, 0, data)
	require.NoError(t, err)

	require.Equal(t, root1, root2)
}

func TestSingleLeafTreeRootIsTheLeaf(t *testing.T) {
	db := memory.New()
	defer func() { _ = db.Close() }()

	leaf := hashFromLowU64(42)
	root, err := Dump(db, 7, []Hash{leaf})
	require.NoError(t, err)
	require.Equal(t, leaf, root)

	tree, err := Open(db, 7)
	require.NoError(t, err)
	require.Equal(t, 0, tree.Depth())

	proof, err := tree.Prove(0)
	require.NoError(t, err)
	require.Empty(t, proof.Path)
	require.True(t, Verify(root, leaf, proof))
}
