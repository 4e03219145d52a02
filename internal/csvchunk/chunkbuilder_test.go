package csvchunk

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func gunzip(t *testing.T, data []byte) string {
	t.Helper()
	r, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestChunkBuilder_WriteRowAndClose(t *testing.T) {
	b := New()
	require.NoError(t, b.WriteRow([]string{"1", "x"}))
	data, rows, err := b.Close()
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)
	require.Equal(t, "1,x\r\n", gunzip(t, data))
}

func TestChunkBuilder_RotateResetsRowsAndReopens(t *testing.T) {
	b := New()
	require.NoError(t, b.WriteRow([]string{"a"}))
	require.NoError(t, b.WriteRow([]string{"b"}))

	data, rows, err := b.Rotate()
	require.NoError(t, err)
	require.EqualValues(t, 2, rows)
	require.Equal(t, "a\r\nb\r\n", gunzip(t, data))

	require.NoError(t, b.WriteRow([]string{"c"}))
	data2, rows2, err := b.Close()
	require.NoError(t, err)
	require.EqualValues(t, 1, rows2)
	require.Equal(t, "c\r\n", gunzip(t, data2))
}

func TestChunkBuilder_BytesBufferedGrows(t *testing.T) {
	b := New()
	before, err := b.BytesBuffered()
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, b.WriteRow([]string{"some longer field value to accumulate bytes"}))
	}
	after, err := b.BytesBuffered()
	require.NoError(t, err)
	require.Greater(t, after, before)
}

func TestCellToString(t *testing.T) {
	require.Equal(t, "", CellToString(nil))
	require.Equal(t, "hello", CellToString("hello"))
	require.Equal(t, "42", CellToString(42))

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.Equal(t, ts.Format(time.RFC3339), CellToString(ts))

	require.Equal(t, "caf�", CellToString([]byte{'c', 'a', 'f', 0xff}))
}
