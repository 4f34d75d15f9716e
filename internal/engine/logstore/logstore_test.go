package logstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iamBelugaa/kvs/internal/index"
	"github.com/iamBelugaa/kvs/pkg/errors"
	"github.com/iamBelugaa/kvs/pkg/options"
	"github.com/iamBelugaa/kvs/pkg/seginfo"
)

func openStore(t *testing.T, dir string, opts ...options.OptionFunc) *Store {
	t.Helper()

	o := options.Apply(append([]options.OptionFunc{options.WithDataDir(dir)}, opts...)...)
	s, err := Open(context.Background(), zaptest.NewLogger(t).Sugar(), &o)
	require.NoError(t, err)
	return s
}

func dirSize(t *testing.T, dir string) int64 {
	t.Helper()

	gens, err := seginfo.ListGenerations(dir)
	require.NoError(t, err)

	var total int64
	for _, gen := range gens {
		info, err := os.Stat(seginfo.Path(dir, gen))
		require.NoError(t, err)
		total += info.Size()
	}
	return total
}

func mustGet(t *testing.T, s *Store, key string) (string, bool) {
	t.Helper()
	v, ok, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func TestSetGetOverwrite(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())
	defer s.Close()

	require.NoError(t, s.Set(ctx, "key1", "value1"))
	require.NoError(t, s.Set(ctx, "key2", "value2"))

	v, ok := mustGet(t, s, "key1")
	require.True(t, ok)
	assert.Equal(t, "value1", v)

	require.NoError(t, s.Set(ctx, "key1", "value3"))
	v, _ = mustGet(t, s, "key1")
	assert.Equal(t, "value3", v)

	_, ok = mustGet(t, s, "missing")
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "", ""))
	v, ok = mustGet(t, s, "")
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir)
	defer s.Close()

	err := s.Remove(ctx, "nothing")
	require.Error(t, err)
	assert.True(t, errors.IsKeyNotFound(err))
	assert.Equal(t, "Key not found", err.Error())
	assert.Zero(t, dirSize(t, dir))

	require.NoError(t, s.Set(ctx, "k", "v"))
	require.NoError(t, s.Remove(ctx, "k"))

	_, ok := mustGet(t, s, "k")
	assert.False(t, ok)

	err = s.Remove(ctx, "k")
	assert.True(t, errors.IsKeyNotFound(err))
}

func TestDurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openStore(t, dir)
	require.NoError(t, s.Set(ctx, "a", "1"))
	require.NoError(t, s.Set(ctx, "b", "2"))
	require.NoError(t, s.Remove(ctx, "a"))

	_, ok := mustGet(t, s, "a")
	assert.False(t, ok)
	v, _ := mustGet(t, s, "b")
	assert.Equal(t, "2", v)
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	defer s.Close()

	_, ok = mustGet(t, s, "a")
	assert.False(t, ok)
	v, ok = mustGet(t, s, "b")
	require.True(t, ok)
	assert.Equal(t, "2", v)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Keys)
	assert.Equal(t, uint64(2), stats.Generation)
	assert.NotZero(t, stats.UncompactedBytes)
}

func TestReplayAccountsStaleBytes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openStore(t, dir)
	require.NoError(t, s.Set(ctx, "a", "1"))
	require.NoError(t, s.Set(ctx, "a", "2"))
	require.NoError(t, s.Set(ctx, "b", "3"))
	require.NoError(t, s.Remove(ctx, "b"))
	before := s.Stats().UncompactedBytes
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	defer s.Close()
	assert.Equal(t, before, s.Stats().UncompactedBytes)
}

func TestCompactionShrinksLog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, options.WithCompactionThreshold(1<<30))

	for iter := range 10 {
		for i := range 100 {
			require.NoError(t, s.Set(ctx, fmt.Sprintf("key%d", i), fmt.Sprintf("%d", iter)))
		}
	}
	require.NoError(t, s.Remove(ctx, "key0"))

	before := dirSize(t, dir)
	require.NoError(t, s.Compact(ctx))
	after := dirSize(t, dir)
	assert.Less(t, after, before)

	stats := s.Stats()
	assert.Zero(t, stats.UncompactedBytes)
	assert.Equal(t, uint64(1), stats.Compactions)
	assert.Equal(t, uint64(2), stats.SafePoint)
	assert.Equal(t, uint64(3), stats.Generation)

	gens, err := seginfo.ListGenerations(dir)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, gens)

	check := func(s *Store) {
		_, ok := mustGet(t, s, "key0")
		assert.False(t, ok)
		for i := 1; i < 100; i++ {
			v, ok := mustGet(t, s, fmt.Sprintf("key%d", i))
			require.True(t, ok)
			assert.Equal(t, "9", v)
		}
	}
	check(s)

	require.NoError(t, s.Close())
	s = openStore(t, dir)
	defer s.Close()
	check(s)
	assert.Zero(t, s.Stats().UncompactedBytes)
}

func TestFailedStaleRemovalKeepsTombstones(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openStore(t, dir)
	require.NoError(t, s.Set(ctx, "y", "old"))
	require.NoError(t, s.Set(ctx, "z", "kept"))
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	require.NoError(t, s.Remove(ctx, "y"))

	var attempted []uint64
	s.removeFile = func(dir string, gen uint64) error {
		attempted = append(attempted, gen)
		if gen == 1 {
			return os.ErrPermission
		}
		return os.Remove(seginfo.Path(dir, gen))
	}
	require.NoError(t, s.Compact(ctx))
	assert.Equal(t, []uint64{1}, attempted)

	gens, err := seginfo.ListGenerations(dir)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4}, gens)
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	_, ok := mustGet(t, s, "y")
	assert.False(t, ok)
	v, ok := mustGet(t, s, "z")
	require.True(t, ok)
	assert.Equal(t, "kept", v)

	require.NoError(t, s.Compact(ctx))
	gens, err = seginfo.ListGenerations(dir)
	require.NoError(t, err)
	assert.Equal(t, []uint64{6, 7}, gens)
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	defer s.Close()
	_, ok = mustGet(t, s, "y")
	assert.False(t, ok)
	v, ok = mustGet(t, s, "z")
	require.True(t, ok)
	assert.Equal(t, "kept", v)
}

func TestCompactionTriggersOnThreshold(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, options.WithCompactionThreshold(options.MinCompactionThreshold))
	defer s.Close()

	value := strings.Repeat("x", 100)
	for range 200 {
		require.NoError(t, s.Set(ctx, "hot", value))
	}

	stats := s.Stats()
	assert.NotZero(t, stats.Compactions)
	assert.LessOrEqual(t, stats.UncompactedBytes, options.MinCompactionThreshold)
	assert.Less(t, dirSize(t, dir), int64(200*len(value)))

	v, ok := mustGet(t, s, "hot")
	require.True(t, ok)
	assert.Equal(t, value, v)
}

func TestFailedCompactionIsReturned(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, options.WithCompactionThreshold(options.MinCompactionThreshold))
	defer s.Close()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	value := strings.Repeat("x", 100)
	var err error
	for i := 0; err == nil && i < 1000; i++ {
		err = s.Set(cancelled, "hot", fmt.Sprintf("%s%d", value, i))
	}
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.Stats().Compactions)
	assert.Greater(t, s.Stats().UncompactedBytes, options.MinCompactionThreshold)

	v, ok := mustGet(t, s, "hot")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(v, value))

	gens, err := seginfo.ListGenerations(dir)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, gens)

	require.NoError(t, s.Set(context.Background(), "hot", "fresh"))
	assert.Equal(t, uint64(1), s.Stats().Compactions)
	v, ok = mustGet(t, s, "hot")
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestConcurrentReadsDuringCompaction(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir(), options.WithCompactionThreshold(1<<30))
	defer s.Close()

	const keys = 100
	for i := range keys {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i)))
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for i := range keys {
					v, ok, err := s.Get(ctx, fmt.Sprintf("key%d", i))
					if !assert.NoError(t, err) || !assert.True(t, ok) {
						return
					}
					assert.Equal(t, fmt.Sprintf("value%d", i), v)
				}
			}
		}()
	}

	for range 20 {
		for i := range keys {
			require.NoError(t, s.Set(ctx, fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i)))
		}
		require.NoError(t, s.Compact(ctx))
	}
	close(done)
	wg.Wait()

	assert.Equal(t, uint64(20), s.Stats().Compactions)
}

func TestConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, options.WithCompactionThreshold(options.MinCompactionThreshold))

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				assert.NoError(t, s.Set(ctx, fmt.Sprintf("w%d-k%d", w, i%10), fmt.Sprintf("%d", i)))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	defer s.Close()
	assert.Equal(t, 80, s.Stats().Keys)
	v, _ := mustGet(t, s, "w3-k9")
	assert.Equal(t, "49", v)
}

func TestCorruptGenerationFailsOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openStore(t, dir)
	require.NoError(t, s.Set(ctx, "a", "1"))
	require.NoError(t, s.Close())

	f, err := os.OpenFile(seginfo.Path(dir, 1), os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xde, 0xad, 0xbe})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	o := options.Apply(options.WithDataDir(dir))
	_, err = Open(ctx, zaptest.NewLogger(t).Sugar(), &o)
	require.Error(t, err)
	assert.True(t, errors.IsCorrupt(err))

	se, ok := errors.AsStorageError(err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), se.Generation())
}

func TestIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine"), []byte("kvs"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.x.bak"), []byte("junk"), 0644))

	s := openStore(t, dir)
	defer s.Close()
	assert.Equal(t, uint64(1), s.Stats().Generation)
}

func TestGetRejectsNonSetRecord(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())
	defer s.Close()

	require.NoError(t, s.Set(ctx, "a", "1"))
	setPos, _ := s.index.Get("a")
	require.NoError(t, s.Remove(ctx, "a"))

	tombstone := index.CommandPos{
		Generation: setPos.Generation,
		Offset:     setPos.Offset + setPos.Length,
		Length:     s.writer.Offset() - (setPos.Offset + setPos.Length),
	}
	s.index.Set("a", tombstone)

	_, _, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, errors.ErrUnexpectedCommandType)
}

func TestValidationAndClose(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())

	err := s.Set(ctx, strings.Repeat("k", int(options.MaxKeySize)+1), "v")
	ve, ok := errors.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "key", ve.Field())

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), errors.ErrClosed)
	assert.ErrorIs(t, s.Set(ctx, "a", "b"), errors.ErrClosed)
	_, _, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, errors.ErrClosed)
}
