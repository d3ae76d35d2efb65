package amt

import (
	"testing"

	"github.com/amt-db/authdb/pkg/curve"
	"github.com/amt-db/authdb/pkg/params"
	"github.com/amt-db/authdb/pkg/storage/memory"
	"github.com/stretchr/testify/require"
)

func testTree(t *testing.T, depth int) (*Tree, *params.AMTParams) {
	t.Helper()
	pt, err := params.Setup(depth)
	require.NoError(t, err)
	pp, err := params.FromPowerTau(pt)
	require.NoError(t, err)
	tree, err := New("test", depth, memory.New(), pp)
	require.NoError(t, err)
	return tree, pp
}

// TestSoundness ports spec.md P1: every leaf verifies against its own
// opening proof, and a proof built for one leaf rejects any other leaf's
// value.
func TestSoundness(t *testing.T) {
	const depth = 3
	tree, pp := testTree(t, depth)

	length := 1 << depth
	values := make([]*curve.Fr, length)
	for i := 0; i < length; i++ {
		values[i] = curve.FrFromUint64(uint64(100 + i))
		guard, err := tree.Write(i)
		require.NoError(t, err)
		guard.Value = values[i]
		require.NoError(t, guard.Commit())
	}

	commitment, err := tree.Commitment()
	require.NoError(t, err)

	for i := 0; i < length; i++ {
		proof, err := tree.Prove(i)
		require.NoError(t, err)
		require.True(t, Verify(i, values[i], commitment, proof, pp),
			"leaf %d must verify against its own value", i)

		for j := 0; j < length; j++ {
			if j == i {
				continue
			}
			require.False(t, Verify(i, values[j], commitment, proof, pp),
				"leaf %d must not verify against leaf %d's value", i, j)
		}
	}
}

// TestIncrementalConsistency ports spec.md P2: after any sequence of
// write/update operations, the root commitment equals the sum of
// ident(i)*value_i across every leaf, which is exactly what a proof built
// against the current commitment for a fresh value must check out as.
func TestIncrementalConsistency(t *testing.T) {
	const depth = 3
	tree, pp := testTree(t, depth)

	length := 1 << depth
	final := make([]*curve.Fr, length)
	for i := range final {
		final[i] = curve.FrFromUint64(0)
	}

	// Write every leaf twice, the second write overwriting the first, to
	// exercise the delta (not absolute) update path.
	for round := 0; round < 2; round++ {
		for i := 0; i < length; i++ {
			v := curve.FrFromUint64(uint64((round+1)*17 + i))
			final[i] = v
			guard, err := tree.Write(i)
			require.NoError(t, err)
			guard.Value = v
			require.NoError(t, guard.Commit())
		}
	}

	commitment, err := tree.Commitment()
	require.NoError(t, err)

	for i := 0; i < length; i++ {
		proof, err := tree.Prove(i)
		require.NoError(t, err)
		require.True(t, Verify(i, final[i], commitment, proof, pp))
	}
}

// TestBulkIncrementMatchesWrite confirms BulkIncrement (the fast path used
// outside the configured shard) produces the same final leaf value and
// commitment as an equivalent Write/Commit sequence would, starting from
// two otherwise-identical empty trees under the same parameters.
func TestBulkIncrementMatchesWrite(t *testing.T) {
	const depth = 2
	pt, err := params.Setup(depth)
	require.NoError(t, err)
	pp, err := params.FromPowerTau(pt)
	require.NoError(t, err)

	treeA, err := New("a", depth, memory.New(), pp)
	require.NoError(t, err)
	treeB, err := New("b", depth, memory.New(), pp)
	require.NoError(t, err)

	delta := curve.FrFromUint64(7)

	guard, err := treeA.Write(1)
	require.NoError(t, err)
	var expect curve.Fr
	expect.Add(guard.Value, delta)
	guard.Value = &expect
	require.NoError(t, guard.Commit())

	require.NoError(t, treeB.BulkIncrement(1, delta))

	ca, err := treeA.Commitment()
	require.NoError(t, err)
	cb, err := treeB.Commitment()
	require.NoError(t, err)
	require.True(t, ca.Equal(cb))
}

// TestVerifyRejectsTamperedProof ports spec.md S4: flipping a proof
// sibling's commitment must make Verify reject.
func TestVerifyRejectsTamperedProof(t *testing.T) {
	const depth = 3
	tree, pp := testTree(t, depth)
	length := 1 << depth

	for i := 0; i < length; i++ {
		guard, err := tree.Write(i)
		require.NoError(t, err)
		guard.Value = curve.FrFromUint64(uint64(i + 1))
		require.NoError(t, guard.Commit())
	}

	commitment, err := tree.Commitment()
	require.NoError(t, err)

	proof, err := tree.Prove(2)
	require.NoError(t, err)
	require.True(t, Verify(2, curve.FrFromUint64(3), commitment, proof, pp))

	tampered := make(Proof, len(proof))
	copy(tampered, proof)
	tampered[0] = &Node{
		Commitment: curve.AddG1(proof[0].Commitment, curve.G1Generator),
		Proof:      proof[0].Proof,
	}
	require.False(t, Verify(2, curve.FrFromUint64(3), commitment, tampered, pp))
}

func TestVerifyRejectsWrongProofLength(t *testing.T) {
	const depth = 3
	_, pp := testTree(t, depth)
	require.False(t, Verify(0, curve.FrFromUint64(1), curve.ZeroG1(), Proof{}, pp))
}
