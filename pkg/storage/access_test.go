package storage_test

import (
	"testing"

	"github.com/amt-db/authdb/pkg/storage"
	"github.com/amt-db/authdb/pkg/storage/memory"
	"github.com/stretchr/testify/require"
)

var uint64Codec = storage.Codec[uint64]{
	Encode: func(v uint64) []byte {
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		return b
	},
	Decode: func(b []byte) (uint64, error) {
		var v uint64
		for i := 0; i < 8; i++ {
			v |= uint64(b[i]) << (8 * i)
		}
		return v, nil
	},
	Zero: func() uint64 { return 0 },
}

func TestAccessGetBeforeWriteReturnsZero(t *testing.T) {
	acc := storage.NewAccess[storage.LeafIndex, uint64]("test", storage.ColVersionTree, memory.New(), uint64Codec)
	v, err := acc.Get(storage.LeafIndex(5))
	require.NoError(t, err)
	require.Zero(t, v)
}

func TestAccessSetThenGetServesFromCache(t *testing.T) {
	acc := storage.NewAccess[storage.LeafIndex, uint64]("test", storage.ColVersionTree, memory.New(), uint64Codec)
	require.NoError(t, acc.Set(storage.LeafIndex(1), 42))
	v, err := acc.Get(storage.LeafIndex(1))
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)
}

func TestAccessFlushPersistsAcrossInstances(t *testing.T) {
	backend := memory.New()
	acc := storage.NewAccess[storage.LeafIndex, uint64]("test", storage.ColVersionTree, backend, uint64Codec)
	require.NoError(t, acc.Set(storage.LeafIndex(3), 99))
	require.NoError(t, acc.Flush())

	acc2 := storage.NewAccess[storage.LeafIndex, uint64]("test", storage.ColVersionTree, backend, uint64Codec)
	v, err := acc2.Get(storage.LeafIndex(3))
	require.NoError(t, err)
	require.Equal(t, uint64(99), v)
}

func TestAccessUnflushedWritesAreNotVisibleToFreshAccessor(t *testing.T) {
	backend := memory.New()
	acc := storage.NewAccess[storage.LeafIndex, uint64]("test", storage.ColVersionTree, backend, uint64Codec)
	require.NoError(t, acc.Set(storage.LeafIndex(4), 7))

	acc2 := storage.NewAccess[storage.LeafIndex, uint64]("test", storage.ColVersionTree, backend, uint64Codec)
	v, err := acc2.Get(storage.LeafIndex(4))
	require.NoError(t, err)
	require.Zero(t, v, "never-flushed write must not be visible through a different accessor")
}

func TestAccessNamesNamespaceKeysSeparately(t *testing.T) {
	backend := memory.New()
	accA := storage.NewAccess[storage.LeafIndex, uint64]("a", storage.ColVersionTree, backend, uint64Codec)
	accB := storage.NewAccess[storage.LeafIndex, uint64]("b", storage.ColVersionTree, backend, uint64Codec)

	require.NoError(t, accA.Set(storage.LeafIndex(0), 111))
	require.NoError(t, accA.Flush())

	v, err := accB.Get(storage.LeafIndex(0))
	require.NoError(t, err)
	require.Zero(t, v, "accessors namespaced under different names must not collide")
}
