package redis

import (
	"fmt"
	"os"
	"testing"

	"github.com/amt-db/authdb/pkg/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// getTestRedisAddress returns the Redis address for testing. Uses
// REDIS_TEST_ADDRESS if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis fails the test if Redis is not available, matching the
// teacher's persistence/redis_test.go posture: these tests exercise a real
// server rather than mocking one out, isolated to database 15.
func requireRedis(t *testing.T) *Backend {
	t.Helper()

	b, err := Open(&Config{
		Address:   getTestRedisAddress(),
		DB:        15,
		KeyPrefix: fmt.Sprintf("test:%s:", t.Name()),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("redis not available at %s: %v", getTestRedisAddress(), err)
	}
	return b
}

func TestRedisBackend_PutAndGet(t *testing.T) {
	b := requireRedis(t)
	defer func() { _ = b.Close() }()

	require.NoError(t, b.Put(storage.ColKeyRecords, []byte("key-1"), []byte("value-1")))

	got, err := b.Get(storage.ColKeyRecords, []byte("key-1"))
	require.NoError(t, err)
	require.Equal(t, []byte("value-1"), got)
}

func TestRedisBackend_GetMissingReturnsNilNil(t *testing.T) {
	b := requireRedis(t)
	defer func() { _ = b.Close() }()

	got, err := b.Get(storage.ColKeyRecords, []byte("missing"))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisBackend_ColumnsAreIsolated(t *testing.T) {
	b := requireRedis(t)
	defer func() { _ = b.Close() }()

	require.NoError(t, b.Put(storage.ColKeyRecords, []byte("k"), []byte("records")))
	require.NoError(t, b.Put(storage.ColMerkle, []byte("k"), []byte("merkle")))

	got, err := b.Get(storage.ColKeyRecords, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("records"), got)

	got, err = b.Get(storage.ColMerkle, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("merkle"), got)
}

func TestRedisBackend_HealthCheck(t *testing.T) {
	b := requireRedis(t)
	defer func() { _ = b.Close() }()

	require.NoError(t, b.HealthCheck())
}

func TestRedisBackend_ClosedBackendRejectsOperations(t *testing.T) {
	b := requireRedis(t)
	require.NoError(t, b.Close())

	_, err := b.Get(storage.ColKeyRecords, []byte("k"))
	require.ErrorIs(t, err, storage.ErrClosed)

	err = b.Put(storage.ColKeyRecords, []byte("k"), []byte("v"))
	require.ErrorIs(t, err, storage.ErrClosed)
}

func TestRedisBackend_RejectsEmptyAddress(t *testing.T) {
	_, err := Open(&Config{Address: ""}, zap.NewNop())
	require.Error(t, err)
}

func TestRedisBackend_RejectsNilConfig(t *testing.T) {
	_, err := Open(nil, zap.NewNop())
	require.Error(t, err)
}
