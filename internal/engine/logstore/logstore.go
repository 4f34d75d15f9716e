// Package logstore implements the log-structured engine: commands are
// appended to generation files, an in-memory ordered index points at the
// latest Set of every key, and compaction rewrites live records into a fresh
// generation once enough stale bytes pile up.
package logstore

import (
	"context"
	"io"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/iamBelugaa/kvs/internal/command"
	"github.com/iamBelugaa/kvs/internal/engine"
	"github.com/iamBelugaa/kvs/internal/index"
	"github.com/iamBelugaa/kvs/internal/storage"
	"github.com/iamBelugaa/kvs/internal/storage/segmentpool"
	"github.com/iamBelugaa/kvs/pkg/errors"
	"github.com/iamBelugaa/kvs/pkg/filesys"
	"github.com/iamBelugaa/kvs/pkg/options"
	"github.com/iamBelugaa/kvs/pkg/seginfo"
)

// Reads racing a compaction may find their generation deleted. They retry
// with a fresh index lookup this many times.
const maxReadAttempts = 4

var _ engine.Engine = (*Store)(nil)
var _ engine.StatsProvider = (*Store)(nil)

// Open replays every generation file in opts.DataDir and starts a new
// generation for writing.
func Open(ctx context.Context, log *zap.SugaredLogger, opts *options.Options) (*Store, error) {
	dir := opts.DataDir
	log.Infow(
		"Opening log store",
		"dataDir", dir,
		"syncWrites", opts.SyncWrites,
		"compactionThreshold", opts.CompactionThreshold,
	)

	if err := filesys.CreateDir(dir, 0755); err != nil {
		return nil, errors.ClassifyDirectoryCreationError(err, dir)
	}

	gens, err := seginfo.ListGenerations(dir)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrSegmentListFailed, "Failed to discover generation files").
			WithPath(dir)
	}

	idx := index.New()
	var uncompacted uint64
	for _, gen := range gens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := replay(dir, gen, idx)
		if err != nil {
			log.Errorw("Failed to replay generation", "generation", gen, "error", err)
			return nil, err
		}
		uncompacted += n
	}

	current := uint64(1)
	if len(gens) > 0 {
		current = gens[len(gens)-1] + 1
	}

	writer, err := storage.Create(dir, current, opts.SyncWrites, log)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:     dir,
		log:     log,
		index:   idx,
		writer:  writer,
		options: opts,
		readers: segmentpool.New(dir, opts.MaxIdleReaders, log),

		removeFile: storage.Remove,
	}
	s.generation.Store(current)
	s.uncompacted.Store(uncompacted)

	log.Infow(
		"Log store opened",
		"keys", idx.Len(),
		"generation", current,
		"replayedGenerations", len(gens),
		"uncompacted", options.FormatBytes(uncompacted),
	)
	return s, nil
}

// replay applies every command of one generation to idx and returns the
// number of stale bytes it produced.
func replay(dir string, gen uint64, idx *index.Index) (uint64, error) {
	path := seginfo.Path(dir, gen)
	file, err := os.Open(path)
	if err != nil {
		return 0, errors.ClassifyFileOpenError(err, path, seginfo.FileName(gen)).WithGeneration(gen)
	}
	defer file.Close()

	var uncompacted uint64
	dec := command.NewDecoder(file)
	for {
		cmd, offset, length, err := dec.Next()
		if err == io.EOF {
			return uncompacted, nil
		}
		if err != nil {
			if se, ok := errors.AsStorageError(err); ok {
				se.WithGeneration(gen).WithPath(path).WithFileName(seginfo.FileName(gen))
			}
			return 0, err
		}

		switch cmd.Kind {
		case command.KindSet:
			pos := index.CommandPos{Generation: gen, Offset: offset, Length: length}
			if prev, replaced := idx.Set(cmd.Key, pos); replaced {
				uncompacted += uint64(prev.Length)
			}
		case command.KindRemove:
			if prev, ok := idx.Delete(cmd.Key); ok {
				uncompacted += uint64(prev.Length)
			}
			uncompacted += uint64(length)
		}
	}
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, errors.ErrClosed
	}

	var lastErr error
	for range maxReadAttempts {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		pos, ok := s.index.Get(key)
		if !ok {
			return "", false, nil
		}

		r := s.readers.Acquire()
		cmd, err := r.ReadCommand(pos)
		s.readers.Release(r)

		if err != nil {
			// The generation was compacted away between lookup and read.
			if pos.Generation < s.readers.SafePoint() {
				lastErr = err
				continue
			}
			return "", false, err
		}

		if cmd.Kind != command.KindSet || cmd.Key != key {
			return "", false, errors.NewStorageError(
				errors.ErrUnexpectedCommandType, errors.ErrRecordUnexpectedCommand,
				"Index points at a record that is not a Set of the requested key",
			).
				WithGeneration(pos.Generation).
				WithOffset(pos.Offset).
				WithDetail("kind", cmd.Kind.String())
		}
		return cmd.Value, true, nil
	}

	return "", false, lastErr
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := isValidKey(key); err != nil {
		return err
	}
	if err := isValidValue(value); err != nil {
		return err
	}

	record, err := command.Set(key, value).MarshalBinary()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return errors.ErrClosed
	}

	offset, err := s.writer.Append(record)
	if err != nil {
		return err
	}

	pos := index.CommandPos{Generation: s.writer.Generation(), Offset: offset, Length: int64(len(record))}
	if prev, replaced := s.index.Set(key, pos); replaced {
		s.uncompacted.Add(uint64(prev.Length))
	}

	return s.maybeCompact(ctx)
}

// Remove deletes key. Nothing is written when key is absent.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := isValidKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return errors.ErrClosed
	}

	if !s.index.Contains(key) {
		return errors.NewKeyNotFoundError(key, "remove")
	}

	record, err := command.Remove(key).MarshalBinary()
	if err != nil {
		return err
	}

	if _, err := s.writer.Append(record); err != nil {
		return err
	}

	prev, _ := s.index.Delete(key)
	s.uncompacted.Add(uint64(prev.Length) + uint64(len(record)))

	return s.maybeCompact(ctx)
}

// Stats reports the store's bookkeeping without taking the writer lock.
func (s *Store) Stats() engine.Stats {
	return engine.Stats{
		Keys:             s.index.Len(),
		UncompactedBytes: s.uncompacted.Load(),
		Generation:       s.generation.Load(),
		SafePoint:        s.readers.SafePoint(),
		Compactions:      s.compactions.Load(),
	}
}

// Close syncs the active generation and closes every file handle.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return errors.ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := multierr.Combine(s.writer.Close(), s.readers.Close())
	if err != nil {
		s.log.Errorw("Failed to close log store cleanly", "error", err)
		return err
	}

	s.log.Infow("Log store closed", "generation", s.writer.Generation(), "keys", s.index.Len())
	return nil
}
