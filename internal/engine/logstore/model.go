package logstore

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/iamBelugaa/kvs/internal/index"
	"github.com/iamBelugaa/kvs/internal/storage"
	"github.com/iamBelugaa/kvs/internal/storage/segmentpool"
	"github.com/iamBelugaa/kvs/pkg/options"
)

// Store is the log-structured engine. Reads go through the shared index and
// a pool of segment readers; every mutation goes through the writer mutex.
type Store struct {
	dir     string
	options *options.Options
	log     *zap.SugaredLogger
	index   *index.Index
	readers *segmentpool.SegmentPool
	closed  atomic.Bool

	// removeFile deletes one generation file. Set to storage.Remove by Open.
	removeFile func(dir string, gen uint64) error

	// mu guards writer and serializes Set, Remove and compaction.
	mu     sync.Mutex
	writer *storage.Segment

	// Mirrors of writer state readable without mu.
	generation  atomic.Uint64
	uncompacted atomic.Uint64
	compactions atomic.Uint64
}
