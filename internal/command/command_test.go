package command

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamBelugaa/kvs/pkg/errors"
)

func encode(t *testing.T, cmds ...Command) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, cmd := range cmds {
		record, err := cmd.MarshalBinary()
		require.NoError(t, err)
		buf.Write(record)
	}
	return buf.Bytes()
}

func TestDecoderReportsPositions(t *testing.T) {
	cmds := []Command{
		Set("a", "1"),
		Set("b", strings.Repeat("v", 300)),
		Remove("a"),
		Set("", ""),
	}
	data := encode(t, cmds...)

	dec := NewDecoder(bytes.NewReader(data))
	var offset int64
	for _, want := range cmds {
		got, start, length, err := dec.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, offset, start)

		single, err := Unmarshal(data[start : start+length])
		require.NoError(t, err)
		assert.Equal(t, want, single)

		offset += length
	}

	_, _, _, err := dec.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int64(len(data)), dec.Offset())
}

func TestDecoderEmptyStream(t *testing.T) {
	_, _, _, err := NewDecoder(bytes.NewReader(nil)).Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderDetectsTornTail(t *testing.T) {
	data := encode(t, Set("a", "1"), Set("b", "2"))
	dec := NewDecoder(bytes.NewReader(data[:len(data)-3]))

	_, _, _, err := dec.Next()
	require.NoError(t, err)

	_, start, _, err := dec.Next()
	require.Error(t, err)
	assert.True(t, errors.IsCorrupt(err))

	se, ok := errors.AsStorageError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrRecordTruncated, se.Code())
	assert.Equal(t, start, se.Offset())
}

func TestDecoderDetectsFlippedByte(t *testing.T) {
	data := encode(t, Set("key", "value"))
	data[len(data)-1] ^= 0xff

	_, _, _, err := NewDecoder(bytes.NewReader(data)).Next()
	se, ok := errors.AsStorageError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrRecordChecksumMismatch, se.Code())
}

func TestMarshalRejectsUnknownKind(t *testing.T) {
	_, err := Command{Kind: 9, Key: "k"}.MarshalBinary()
	assert.Error(t, err)
}

func TestUnmarshalShortRecord(t *testing.T) {
	_, err := Unmarshal([]byte{1, 2, 3})
	assert.True(t, errors.IsCorrupt(err))
}

func TestRemoveCarriesNoValue(t *testing.T) {
	set, err := Set("k", "").MarshalBinary()
	require.NoError(t, err)
	rm, err := Remove("k").MarshalBinary()
	require.NoError(t, err)

	assert.Greater(t, len(set), len(rm))
}
