package segmentpool

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Reader reads committed records from generation files. Each Reader owns a
// private cache of open handles keyed by generation and must be used by one
// goroutine at a time.
type Reader struct {
	pool    *SegmentPool
	handles map[uint64]*os.File
}

// SegmentPool hands out Readers and keeps a bounded number of idle ones for
// reuse. It also publishes the safe point: the lowest generation still
// referenced by the index. Readers drop handles below it.
type SegmentPool struct {
	dir       string
	maxIdle   int
	closed    bool
	mu        sync.Mutex
	idle      []*Reader
	safePoint atomic.Uint64
	log       *zap.SugaredLogger
}
