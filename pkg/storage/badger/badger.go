// Package badger implements pkg/storage.Backend on top of dgraph-io/badger,
// adapted from the teacher's pkg/persistence/badger.BadgerPersistence:
// same SyncWrites-for-durability posture, schema-version guard, and
// background value-log GC loop, generalized from the teacher's
// fixed-schema key prefixes to pkg/storage's three generic columns.
package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/amt-db/authdb/pkg/storage"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

var colPrefix = map[storage.Column]byte{
	storage.ColVersionTree: 'v',
	storage.ColKeyRecords:  'k',
	storage.ColMerkle:      'm',
}

// Backend is a durable, disk-based storage.Backend implementation using
// Badger as the underlying LSM store.
type Backend struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// Open opens (or creates) a Badger database at dataPath, with SyncWrites
// enabled for durability and a background GC goroutine running every
// 5 minutes.
func Open(dataPath string, logger *zap.Logger) (*Backend, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, errors.Wrap(err, "resolve badger data path")
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &loggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open badger database at %s", absPath)
	}

	b := &Backend{db: db, logger: logger}

	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "initialize schema")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.gcCancel = cancel
	b.gcWg.Add(1)
	go b.runGC(ctx)

	logger.Sugar().Infow("badger storage backend initialized", "path", absPath)
	return b, nil
}

func (b *Backend) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return err
		}

		var existing string
		if err := item.Value(func(val []byte) error {
			existing = string(val)
			return nil
		}); err != nil {
			return err
		}
		if existing != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected %s)", existing, currentSchemaVersion)
		}
		return nil
	})
}

func (b *Backend) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.db.RunValueLogGC(0.5); err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("badger value log GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func namespacedKey(col storage.Column, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = colPrefix[col]
	copy(out[1:], key)
	return out
}

// Get implements storage.Backend.
func (b *Backend) Get(col storage.Column, key []byte) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, storage.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(namespacedKey(col, key))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "badger get")
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

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(namespacedKey(col, key), value)
	})
	if err != nil {
		return errors.Wrap(err, "badger put")
	}
	return nil
}

// Flush syncs the value log and LSM tree to disk.
func (b *Backend) Flush() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return storage.ErrClosed
	}
	return errors.Wrap(b.db.Sync(), "badger sync")
}

// Close shuts down the GC loop and closes the underlying database.
// Idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return errors.Wrap(err, "close badger database")
	}
	b.logger.Sugar().Info("badger storage backend closed")
	return nil
}

// HealthCheck verifies the database is open and the schema key is readable.
func (b *Backend) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return storage.ErrClosed
	}
	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return errors.New("schema version not found - database may be corrupted")
		}
		return err
	})
}
