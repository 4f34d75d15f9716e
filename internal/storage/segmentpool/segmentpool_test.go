package segmentpool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iamBelugaa/kvs/internal/command"
	"github.com/iamBelugaa/kvs/internal/index"
	"github.com/iamBelugaa/kvs/internal/storage"
	"github.com/iamBelugaa/kvs/pkg/errors"
)

func writeCommands(t *testing.T, dir string, gen uint64, cmds ...command.Command) []index.CommandPos {
	t.Helper()

	seg, err := storage.Create(dir, gen, false, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer seg.Close()

	positions := make([]index.CommandPos, 0, len(cmds))
	for _, cmd := range cmds {
		record, err := cmd.MarshalBinary()
		require.NoError(t, err)
		off, err := seg.Append(record)
		require.NoError(t, err)
		positions = append(positions, index.CommandPos{Generation: gen, Offset: off, Length: int64(len(record))})
	}
	return positions
}

func TestReaderReadsCommands(t *testing.T) {
	dir := t.TempDir()
	pos := writeCommands(t, dir, 1, command.Set("a", "1"), command.Remove("a"), command.Set("b", "2"))

	pool := New(dir, 2, zaptest.NewLogger(t).Sugar())
	r := pool.Acquire()
	defer pool.Release(r)

	cmd, err := r.ReadCommand(pos[2])
	require.NoError(t, err)
	assert.Equal(t, command.Set("b", "2"), cmd)

	cmd, err = r.ReadCommand(pos[1])
	require.NoError(t, err)
	assert.Equal(t, command.KindRemove, cmd.Kind)

	var buf bytes.Buffer
	n, err := r.CopyTo(&buf, pos[0])
	require.NoError(t, err)
	assert.Equal(t, pos[0].Length, n)

	copied, err := command.Unmarshal(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, command.Set("a", "1"), copied)
}

func TestReaderMissingGeneration(t *testing.T) {
	pool := New(t.TempDir(), 1, zaptest.NewLogger(t).Sugar())
	r := pool.Acquire()
	defer pool.Release(r)

	_, err := r.ReadCommand(index.CommandPos{Generation: 4, Length: 10})
	se, ok := errors.AsStorageError(err)
	require.True(t, ok)
	assert.Equal(t, uint64(4), se.Generation())
}

func TestSafePointPrunesHandles(t *testing.T) {
	dir := t.TempDir()
	old := writeCommands(t, dir, 1, command.Set("a", "1"))
	cur := writeCommands(t, dir, 2, command.Set("a", "2"))

	pool := New(dir, 1, zaptest.NewLogger(t).Sugar())
	r := pool.Acquire()

	_, err := r.ReadCommand(old[0])
	require.NoError(t, err)
	_, err = r.ReadCommand(cur[0])
	require.NoError(t, err)
	assert.Len(t, r.handles, 2)

	pool.SetSafePoint(2)
	pool.SetSafePoint(1)
	assert.Equal(t, uint64(2), pool.SafePoint())

	pool.Release(r)
	assert.Len(t, r.handles, 1)
	assert.Contains(t, r.handles, uint64(2))
}

func TestPoolReusesReaders(t *testing.T) {
	pool := New(t.TempDir(), 1, zaptest.NewLogger(t).Sugar())

	a, b := pool.Acquire(), pool.Acquire()
	pool.Release(a)
	pool.Release(b)
	assert.Equal(t, 1, pool.Idle())

	assert.Same(t, a, pool.Acquire())

	require.NoError(t, pool.Close())
	assert.Zero(t, pool.Idle())
}
