package logstore

import (
	"context"

	"go.uber.org/multierr"

	"github.com/iamBelugaa/kvs/internal/index"
	"github.com/iamBelugaa/kvs/internal/storage"
	"github.com/iamBelugaa/kvs/pkg/errors"
	"github.com/iamBelugaa/kvs/pkg/options"
	"github.com/iamBelugaa/kvs/pkg/seginfo"
)

// maybeCompact runs a compaction once stale bytes exceed the threshold.
// The triggering write is already durable when a compaction error is
// returned; the next write retries. Callers hold s.mu.
func (s *Store) maybeCompact(ctx context.Context) error {
	if s.uncompacted.Load() <= s.options.CompactionThreshold {
		return nil
	}

	if err := s.compact(ctx); err != nil {
		s.log.Errorw(
			"Compaction failed",
			"generation", s.writer.Generation(),
			"uncompacted", options.FormatBytes(s.uncompacted.Load()),
			"error", err,
		)
		return err
	}
	return nil
}

// Compact rewrites every live record into a new generation and deletes the
// generations it supersedes.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return errors.ErrClosed
	}
	return s.compact(ctx)
}

// compact copies live records into generation g+1 and moves the writer to
// g+2, where g is the current generation. Callers hold s.mu.
func (s *Store) compact(ctx context.Context) error {
	current := s.writer.Generation()
	compactGen, nextGen := current+1, current+2

	s.log.Infow(
		"Starting compaction",
		"generation", current,
		"compactionGeneration", compactGen,
		"keys", s.index.Len(),
		"uncompacted", options.FormatBytes(s.uncompacted.Load()),
	)

	target, err := storage.Create(s.dir, compactGen, false, s.log)
	if err != nil {
		return err
	}

	next, err := storage.Create(s.dir, nextGen, s.options.SyncWrites, s.log)
	if err != nil {
		s.discard(target)
		return err
	}

	moved, written, err := s.copyLive(ctx, target)
	if err == nil {
		err = target.Close()
	}
	if err != nil {
		s.discard(target, next)
		return err
	}

	previous := s.writer
	s.writer = next
	s.generation.Store(nextGen)
	if err := previous.Close(); err != nil {
		s.log.Warnw("Failed to close superseded generation", "generation", current, "error", err)
	}

	for _, e := range moved {
		s.index.Set(e.Key, e.Pos)
	}
	s.readers.SetSafePoint(compactGen)
	s.uncompacted.Store(0)
	s.compactions.Add(1)

	removed := s.removeStale(compactGen)

	s.log.Infow(
		"Compaction completed",
		"compactionGeneration", compactGen,
		"generation", nextGen,
		"keys", len(moved),
		"liveBytes", options.FormatBytes(uint64(written)),
		"removedGenerations", removed,
	)
	return nil
}

// copyLive writes the record of every indexed key, in key order, into
// target and returns the entries re-pointed at their new positions.
func (s *Store) copyLive(ctx context.Context, target *storage.Segment) ([]index.Entry, int64, error) {
	r := s.readers.Acquire()
	defer s.readers.Release(r)

	w := storage.NewBatchWriter(target)
	entries := s.index.Snapshot()

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		start := w.Offset()
		n, err := r.CopyTo(w, e.Pos)
		if err != nil {
			return nil, 0, err
		}
		entries[i].Pos = index.CommandPos{Generation: target.Generation(), Offset: start, Length: n}
	}

	if err := w.Flush(); err != nil {
		return nil, 0, err
	}
	return entries, w.Offset(), nil
}

// discard closes and deletes segments created by an abandoned compaction.
func (s *Store) discard(segments ...*storage.Segment) {
	var err error
	for _, seg := range segments {
		err = multierr.Append(err, seg.Close())
		err = multierr.Append(err, storage.Remove(s.dir, seg.Generation()))
	}
	if err != nil {
		s.log.Warnw("Failed to clean up abandoned compaction files", "error", err)
	}
}

// removeStale deletes generations below safePoint in ascending order and
// stops at the first failure. A younger file may hold the tombstone masking
// a Set in an older one, so only a prefix of generations is ever removed.
// The rest are left for the next compaction.
func (s *Store) removeStale(safePoint uint64) int {
	gens, err := seginfo.ListGenerations(s.dir)
	if err != nil {
		s.log.Warnw("Failed to list stale generations", "error", err)
		return 0
	}

	var removed int
	for _, gen := range gens {
		if gen >= safePoint {
			break
		}
		if err := s.removeFile(s.dir, gen); err != nil {
			s.log.Warnw("Failed to remove stale generation, keeping younger ones", "generation", gen, "error", err)
			break
		}
		removed++
	}
	return removed
}
