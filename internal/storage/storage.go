// Package storage owns the write side of generation files: creating them,
// appending encoded commands and removing them once compacted.
package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/iamBelugaa/kvs/pkg/errors"
	"github.com/iamBelugaa/kvs/pkg/options"
	"github.com/iamBelugaa/kvs/pkg/seginfo"
)

// Create opens the file of generation in dir for appending, creating it if
// needed. The write offset starts at the current end of the file.
func Create(dir string, generation uint64, syncWrites bool, log *zap.SugaredLogger) (*Segment, error) {
	fileName := seginfo.FileName(generation)
	filePath := seginfo.Path(dir, generation)

	log.Debugw("Opening segment file", "path", filePath, "generation", generation)

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, filePath, fileName).WithGeneration(generation)
	}

	// Position the file pointer at the end of the file.
	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			log.Errorw("Failed to close file after seek error", "seekError", err, "closeError", closeErr)
		}
		return nil, errors.NewStorageError(
			err, errors.ErrIOSeekFailed, "Failed to seek to end of segment file",
		).
			WithPath(filePath).
			WithFileName(fileName).
			WithGeneration(generation)
	}

	log.Debugw("Segment file opened", "generation", generation, "offset", offset)

	return &Segment{
		dir:        dir,
		log:        log,
		file:       file,
		path:       filePath,
		offset:     offset,
		generation: generation,
		syncWrites: syncWrites,
	}, nil
}

// Generation returns the generation this segment writes.
func (s *Segment) Generation() uint64 {
	return s.generation
}

// Offset returns the position the next record will be written at.
func (s *Segment) Offset() int64 {
	return s.offset
}

// Append writes one encoded record and returns the offset it starts at.
// A failed write is truncated away so the file never ends in a torn record.
func (s *Segment) Append(record []byte) (int64, error) {
	if s.broken {
		return 0, s.error(nil, errors.ErrSegmentBroken, "Segment is unusable after an earlier failed write")
	}

	start := s.offset
	n, err := s.file.Write(record)
	if err == nil && n != len(record) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.rollback(start)
		return 0, s.error(
			err, errors.ErrIOWriteFailed,
			fmt.Sprintf(
				"Failed to append record: %s written, expected %s",
				options.FormatBytes(uint64(n)), options.FormatBytes(uint64(len(record))),
			),
		).
			WithOffset(start)
	}

	if s.syncWrites {
		if err := s.file.Sync(); err != nil {
			s.rollback(start)
			return 0, s.error(err, errors.ErrIOSyncFailed, "Failed to sync segment file").WithOffset(start)
		}
	}

	s.offset += int64(n)
	return start, nil
}

func (s *Segment) rollback(offset int64) {
	if err := s.file.Truncate(offset); err != nil {
		s.broken = true
		s.log.Errorw(
			"Failed to truncate torn record, segment marked broken",
			"generation", s.generation, "offset", offset, "error", err,
		)
	}
}

// Sync commits the file contents to stable storage.
func (s *Segment) Sync() error {
	if err := s.file.Sync(); err != nil {
		return s.error(err, errors.ErrIOSyncFailed, "Failed to sync segment file")
	}
	return nil
}

// Close syncs and closes the file.
func (s *Segment) Close() error {
	syncErr := s.file.Sync()
	if err := s.file.Close(); err != nil {
		return s.error(err, errors.ErrIOCloseFailed, "Failed to close segment file")
	}
	if syncErr != nil {
		return s.error(syncErr, errors.ErrIOSyncFailed, "Failed to sync segment file before close")
	}
	return nil
}

func (s *Segment) error(err error, code errors.ErrorCode, msg string) *errors.StorageError {
	return errors.NewStorageError(err, code, msg).
		WithPath(s.path).
		WithFileName(seginfo.FileName(s.generation)).
		WithGeneration(s.generation)
}

// NewBatchWriter buffers writes into s starting at its current offset.
func NewBatchWriter(s *Segment) *BatchWriter {
	return &BatchWriter{segment: s, buf: bufio.NewWriterSize(s.file, 256*1024), offset: s.offset}
}

// Offset returns where the next byte written through w will land.
func (w *BatchWriter) Offset() int64 {
	return w.offset
}

func (w *BatchWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.offset += int64(n)
	if err != nil {
		return n, w.segment.error(err, errors.ErrIOWriteFailed, "Failed to write batch").WithOffset(w.offset)
	}
	return n, nil
}

// Flush writes buffered data and syncs the segment.
func (w *BatchWriter) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return w.segment.error(err, errors.ErrIOWriteFailed, "Failed to flush batch")
	}
	w.segment.offset = w.offset
	return w.segment.Sync()
}

// Remove deletes the file of generation from dir. A missing file is not an error.
func Remove(dir string, generation uint64) error {
	path := seginfo.Path(dir, generation)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError(err, errors.ErrSegmentRemoveFailed, "Failed to remove segment file").
			WithPath(path).
			WithGeneration(generation)
	}
	return nil
}
