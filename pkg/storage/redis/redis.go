// Package redis implements pkg/storage.Backend on top of go-redis/v9,
// adapted from the teacher's pkg/persistence/redis.RedisPersistence: same
// schema-version guard and connection-ping-on-construct posture,
// generalized from the teacher's fixed key prefixes to pkg/storage's
// three generic columns.
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/amt-db/authdb/pkg/storage"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keySchemaVersion     = "authdb:metadata:schema_version"
	currentSchemaVersion = "v1"
)

var colPrefix = map[storage.Column]string{
	storage.ColVersionTree: "authdb:vtree:",
	storage.ColKeyRecords:  "authdb:krec:",
	storage.ColMerkle:      "authdb:merkle:",
}

// Config holds the parameters for connecting to a Redis server.
type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// Backend is a storage.Backend implementation backed by a Redis server.
type Backend struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// Open connects to Redis and verifies it is reachable, then validates (or
// sets) the schema version key.
func Open(cfg *Config, logger *zap.Logger) (*Backend, error) {
	if cfg == nil {
		return nil, errors.New("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "connect to redis at %s", cfg.Address)
	}

	b := &Backend{client: client, logger: logger, keyPrefix: cfg.KeyPrefix}

	if err := b.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "initialize schema")
	}

	logger.Sugar().Infow("redis storage backend initialized", "address", cfg.Address, "db", cfg.DB)
	return b, nil
}

func (b *Backend) prefixKey(key string) string {
	if b.keyPrefix == "" {
		return key
	}
	return b.keyPrefix + key
}

func (b *Backend) initSchema(ctx context.Context) error {
	schemaKey := b.prefixKey(keySchemaVersion)

	existing, err := b.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return b.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return errors.Wrap(err, "read schema version")
	}
	if existing != currentSchemaVersion {
		return errors.Errorf("unsupported schema version: %s (expected %s)", existing, currentSchemaVersion)
	}
	return nil
}

func (b *Backend) namespacedKey(col storage.Column, key []byte) string {
	return b.prefixKey(colPrefix[col]) + string(key)
}

// Get implements storage.Backend.
func (b *Backend) Get(col storage.Column, key []byte) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, storage.ErrClosed
	}

	data, err := b.client.Get(context.Background(), b.namespacedKey(col, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	return data, nil
}

// Put implements storage.Backend.
func (b *Backend) Put(col storage.Column, key []byte, value []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return storage.ErrClosed
	}

	if err := b.client.Set(context.Background(), b.namespacedKey(col, key), value, 0).Err(); err != nil {
		return errors.Wrap(err, "redis put")
	}
	return nil
}

// Flush is a no-op: every Set is already applied server-side. Present to
// satisfy storage.Backend and to mirror the durability-point the badger
// and memory backends expose.
func (b *Backend) Flush() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return storage.ErrClosed
	}
	return nil
}

// Close closes the underlying Redis client. Idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if err := b.client.Close(); err != nil {
		return errors.Wrap(err, "close redis client")
	}
	b.logger.Sugar().Info("redis storage backend closed")
	return nil
}

// HealthCheck pings the Redis server.
func (b *Backend) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return storage.ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return errors.Wrap(b.client.Ping(ctx).Err(), "redis ping")
}
