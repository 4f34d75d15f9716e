package storage

import (
	"bufio"
	"os"

	"go.uber.org/zap"
)

// Segment is the append-only writer of one generation file. It is not safe
// for concurrent use; the store serializes access through its writer mutex.
type Segment struct {
	dir        string
	path       string
	generation uint64
	offset     int64
	syncWrites bool
	broken     bool
	file       *os.File
	log        *zap.SugaredLogger
}

// BatchWriter buffers many records into one segment. Compaction uses it to
// copy live records without a syscall per record.
type BatchWriter struct {
	segment *Segment
	buf     *bufio.Writer
	offset  int64
}
