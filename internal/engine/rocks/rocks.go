//go:build rocksdb

// Package rocks adapts RocksDB to the engine interface. It is compiled only
// with the rocksdb build tag because it links against the C library.
package rocks

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/linxGnu/grocksdb"
	"go.uber.org/zap"

	"github.com/iamBelugaa/kvs/internal/engine"
	"github.com/iamBelugaa/kvs/pkg/errors"
	"github.com/iamBelugaa/kvs/pkg/filesys"
	"github.com/iamBelugaa/kvs/pkg/options"
)

// Available reports whether this binary was built with RocksDB support.
const Available = true

var _ engine.Engine = (*DB)(nil)
var _ engine.StatsProvider = (*DB)(nil)

// DB is an engine backed by a RocksDB database in the data directory.
type DB struct {
	db     *grocksdb.DB
	opts   *grocksdb.Options
	wo     *grocksdb.WriteOptions
	ro     *grocksdb.ReadOptions
	log    *zap.SugaredLogger
	closed atomic.Bool

	// mu makes the existence check and delete of Remove atomic.
	mu sync.Mutex
}

// Open opens or creates the database in opts.DataDir.
func Open(ctx context.Context, log *zap.SugaredLogger, opts *options.Options) (engine.Engine, error) {
	if err := filesys.CreateDir(opts.DataDir, 0755); err != nil {
		return nil, errors.ClassifyDirectoryCreationError(err, opts.DataDir)
	}

	dbOpts := grocksdb.NewDefaultOptions()
	dbOpts.SetCreateIfMissing(true)

	db, err := grocksdb.OpenDb(dbOpts, opts.DataDir)
	if err != nil {
		dbOpts.Destroy()
		return nil, errors.NewStorageError(err, errors.ErrSegmentOpenFailed, "Failed to open RocksDB").
			WithPath(opts.DataDir)
	}

	wo := grocksdb.NewDefaultWriteOptions()
	wo.SetSync(opts.SyncWrites)

	log.Infow("RocksDB engine opened", "dataDir", opts.DataDir, "syncWrites", opts.SyncWrites)
	return &DB{db: db, opts: dbOpts, wo: wo, ro: grocksdb.NewDefaultReadOptions(), log: log}, nil
}

func (d *DB) Get(ctx context.Context, key string) (string, bool, error) {
	if d.closed.Load() {
		return "", false, errors.ErrClosed
	}

	slice, err := d.db.Get(d.ro, []byte(key))
	if err != nil {
		return "", false, errors.NewStorageError(err, errors.ErrIOReadFailed, "RocksDB get failed")
	}
	defer slice.Free()

	if !slice.Exists() {
		return "", false, nil
	}
	return string(slice.Data()), true, nil
}

func (d *DB) Set(ctx context.Context, key, value string) error {
	if d.closed.Load() {
		return errors.ErrClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.db.Put(d.wo, []byte(key), []byte(value)); err != nil {
		return errors.NewStorageError(err, errors.ErrIOWriteFailed, "RocksDB put failed")
	}
	return nil
}

func (d *DB) Remove(ctx context.Context, key string) error {
	if d.closed.Load() {
		return errors.ErrClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	slice, err := d.db.Get(d.ro, []byte(key))
	if err != nil {
		return errors.NewStorageError(err, errors.ErrIOReadFailed, "RocksDB get failed")
	}
	exists := slice.Exists()
	slice.Free()

	if !exists {
		return errors.NewKeyNotFoundError(key, "remove")
	}

	if err := d.db.Delete(d.wo, []byte(key)); err != nil {
		return errors.NewStorageError(err, errors.ErrIOWriteFailed, "RocksDB delete failed")
	}
	return nil
}

// Stats reports RocksDB's estimate of live keys.
func (d *DB) Stats() engine.Stats {
	if d.closed.Load() {
		return engine.Stats{}
	}

	n, _ := strconv.Atoi(d.db.GetProperty("rocksdb.estimate-num-keys"))
	return engine.Stats{Keys: n}
}

func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return errors.ErrClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.db.Close()
	d.wo.Destroy()
	d.ro.Destroy()
	d.opts.Destroy()

	d.log.Infow("RocksDB engine closed")
	return nil
}
