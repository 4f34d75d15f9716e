// Package segmentpool manages the read side of generation files.
package segmentpool

import (
	"io"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/iamBelugaa/kvs/internal/command"
	"github.com/iamBelugaa/kvs/internal/index"
	"github.com/iamBelugaa/kvs/pkg/errors"
	"github.com/iamBelugaa/kvs/pkg/seginfo"
)

// New creates a pool reading generation files from dir.
func New(dir string, maxIdle int, log *zap.SugaredLogger) *SegmentPool {
	if maxIdle <= 0 {
		maxIdle = 1
	}

	log.Debugw("Initializing segment reader pool", "dir", dir, "maxIdle", maxIdle)
	return &SegmentPool{dir: dir, maxIdle: maxIdle, log: log}
}

// SafePoint returns the current safe point.
func (sp *SegmentPool) SafePoint() uint64 {
	return sp.safePoint.Load()
}

// SetSafePoint raises the safe point to generation. It never moves backwards.
func (sp *SegmentPool) SetSafePoint(generation uint64) {
	for {
		cur := sp.safePoint.Load()
		if generation <= cur || sp.safePoint.CompareAndSwap(cur, generation) {
			return
		}
	}
}

// Acquire returns an idle reader or a new one.
func (sp *SegmentPool) Acquire() *Reader {
	sp.mu.Lock()
	if n := len(sp.idle); n > 0 {
		r := sp.idle[n-1]
		sp.idle[n-1] = nil
		sp.idle = sp.idle[:n-1]
		sp.mu.Unlock()
		return r
	}
	sp.mu.Unlock()

	return &Reader{pool: sp, handles: make(map[uint64]*os.File)}
}

// Release returns r to the pool, closing it if the pool is full or closed.
func (sp *SegmentPool) Release(r *Reader) {
	r.closeStaleHandles()

	sp.mu.Lock()
	if !sp.closed && len(sp.idle) < sp.maxIdle {
		sp.idle = append(sp.idle, r)
		sp.mu.Unlock()
		return
	}
	sp.mu.Unlock()

	if err := r.Close(); err != nil {
		sp.log.Warnw("Failed to close surplus segment reader", "error", err)
	}
}

// Idle reports how many readers are waiting for reuse.
func (sp *SegmentPool) Idle() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.idle)
}

// Close closes every idle reader. Readers released afterwards are closed
// immediately.
func (sp *SegmentPool) Close() error {
	sp.mu.Lock()
	idle := sp.idle
	sp.idle = nil
	sp.closed = true
	sp.mu.Unlock()

	var err error
	for _, r := range idle {
		err = multierr.Append(err, r.Close())
	}

	if err != nil {
		sp.log.Errorw("Failed to close segment readers during shutdown", "error", err)
		return err
	}

	sp.log.Debugw("Segment reader pool closed", "readersClosed", len(idle))
	return nil
}

// ReadCommand reads and decodes the record at pos.
func (r *Reader) ReadCommand(pos index.CommandPos) (command.Command, error) {
	file, err := r.handle(pos.Generation)
	if err != nil {
		return command.Command{}, err
	}

	buf := make([]byte, pos.Length)
	if _, err := file.ReadAt(buf, pos.Offset); err != nil {
		code := errors.ErrIOReadFailed
		if err == io.EOF {
			code = errors.ErrRecordTruncated
		}
		return command.Command{}, r.error(err, code, "Failed to read record", pos)
	}

	cmd, err := command.Unmarshal(buf)
	if err != nil {
		if se, ok := errors.AsStorageError(err); ok {
			se.WithGeneration(pos.Generation).WithOffset(pos.Offset)
		}
		return command.Command{}, err
	}
	return cmd, nil
}

// CopyTo copies the raw record at pos into w.
func (r *Reader) CopyTo(w io.Writer, pos index.CommandPos) (int64, error) {
	file, err := r.handle(pos.Generation)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, io.NewSectionReader(file, pos.Offset, pos.Length))
	if err == nil && n != pos.Length {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return n, r.error(err, errors.ErrIOReadFailed, "Failed to copy record", pos)
	}
	return n, nil
}

// Close closes every cached handle.
func (r *Reader) Close() error {
	var err error
	for gen, f := range r.handles {
		err = multierr.Append(err, f.Close())
		delete(r.handles, gen)
	}
	return err
}

func (r *Reader) handle(generation uint64) (*os.File, error) {
	r.closeStaleHandles()

	if f, ok := r.handles[generation]; ok {
		return f, nil
	}

	path := seginfo.Path(r.pool.dir, generation)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, seginfo.FileName(generation)).
			WithGeneration(generation)
	}

	r.handles[generation] = f
	return f, nil
}

// closeStaleHandles drops handles of generations below the safe point.
func (r *Reader) closeStaleHandles() {
	safePoint := r.pool.SafePoint()
	for gen, f := range r.handles {
		if gen >= safePoint {
			continue
		}
		if err := f.Close(); err != nil {
			r.pool.log.Warnw("Failed to close stale segment handle", "generation", gen, "error", err)
		}
		delete(r.handles, gen)
	}
}

func (r *Reader) error(err error, code errors.ErrorCode, msg string, pos index.CommandPos) *errors.StorageError {
	return errors.NewStorageError(err, code, msg).
		WithPath(seginfo.Path(r.pool.dir, pos.Generation)).
		WithFileName(seginfo.FileName(pos.Generation)).
		WithGeneration(pos.Generation).
		WithOffset(pos.Offset).
		WithDetail("length", pos.Length)
}
