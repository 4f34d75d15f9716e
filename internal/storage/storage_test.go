package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iamBelugaa/kvs/pkg/seginfo"
)

func TestAppendTracksOffsets(t *testing.T) {
	dir := t.TempDir()
	log := zaptest.NewLogger(t).Sugar()

	seg, err := Create(dir, 3, true, log)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seg.Generation())

	off, err := seg.Append([]byte("hello"))
	require.NoError(t, err)
	assert.Zero(t, off)

	off, err = seg.Append([]byte("world!"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), off)
	assert.Equal(t, int64(11), seg.Offset())
	require.NoError(t, seg.Close())

	data, err := os.ReadFile(seginfo.Path(dir, 3))
	require.NoError(t, err)
	assert.Equal(t, "helloworld!", string(data))
}

func TestCreateResumesAtEnd(t *testing.T) {
	dir := t.TempDir()
	log := zaptest.NewLogger(t).Sugar()
	require.NoError(t, os.WriteFile(seginfo.Path(dir, 1), []byte("abc"), 0644))

	seg, err := Create(dir, 1, false, log)
	require.NoError(t, err)
	defer seg.Close()

	assert.Equal(t, int64(3), seg.Offset())
}

func TestBatchWriter(t *testing.T) {
	dir := t.TempDir()
	log := zaptest.NewLogger(t).Sugar()

	seg, err := Create(dir, 2, false, log)
	require.NoError(t, err)

	w := NewBatchWriter(seg)
	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = w.Write([]byte("de"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), w.Offset())

	require.NoError(t, w.Flush())
	assert.Equal(t, int64(5), seg.Offset())
	require.NoError(t, seg.Close())

	info, err := os.Stat(seginfo.Path(dir, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(seginfo.Path(dir, 7), nil, 0644))

	require.NoError(t, Remove(dir, 7))
	_, err := os.Stat(seginfo.Path(dir, 7))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, Remove(dir, 7))
}
