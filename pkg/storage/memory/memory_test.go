package memory

import (
	"testing"

	"github.com/amt-db/authdb/pkg/storage"
	"github.com/stretchr/testify/require"
)

func TestGetMissingReturnsNilNil(t *testing.T) {
	b := New()
	v, err := b.Get(storage.ColKeyRecords, []byte("missing"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestPutGetRoundTrip(t *testing.T) {
	b := New()
	require.NoError(t, b.Put(storage.ColKeyRecords, []byte("k"), []byte("v")))
	got, err := b.Get(storage.ColKeyRecords, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

// TestColumnsAreIsolated confirms the same key in two different columns
// stores independent values.
func TestColumnsAreIsolated(t *testing.T) {
	b := New()
	require.NoError(t, b.Put(storage.ColKeyRecords, []byte("k"), []byte("records")))
	require.NoError(t, b.Put(storage.ColMerkle, []byte("k"), []byte("merkle")))

	got, err := b.Get(storage.ColKeyRecords, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("records"), got)

	got, err = b.Get(storage.ColMerkle, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("merkle"), got)
}

// TestGetCopiesStoredValue confirms mutating a slice returned from Get
// cannot corrupt the backend's stored copy.
func TestGetCopiesStoredValue(t *testing.T) {
	b := New()
	require.NoError(t, b.Put(storage.ColKeyRecords, []byte("k"), []byte("original")))

	got, err := b.Get(storage.ColKeyRecords, []byte("k"))
	require.NoError(t, err)
	got[0] = 'X'

	got2, err := b.Get(storage.ColKeyRecords, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got2)
}

func TestClosedBackendRejectsOperations(t *testing.T) {
	b := New()
	require.NoError(t, b.Close())

	_, err := b.Get(storage.ColKeyRecords, []byte("k"))
	require.ErrorIs(t, err, storage.ErrClosed)

	err = b.Put(storage.ColKeyRecords, []byte("k"), []byte("v"))
	require.ErrorIs(t, err, storage.ErrClosed)

	require.Error(t, b.HealthCheck())
}

func TestHealthCheckOnOpenBackend(t *testing.T) {
	b := New()
	require.NoError(t, b.HealthCheck())
}
