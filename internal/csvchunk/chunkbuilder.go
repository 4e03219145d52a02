// Package csvchunk implements the Chunked CSV Encoder (spec component F):
// a single ChunkBuilder abstraction composing a CSV writer over a gzip
// stream over a byte buffer, rotating on demand.
package csvchunk

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
)

// ChunkBuilder owns one rolling buffer/gzip/CSV-writer stack. It is not
// safe for concurrent use; each job's worker owns exactly one instance.
type ChunkBuilder struct {
	buf  *bytes.Buffer
	gz   *gzip.Writer
	csv  *csv.Writer
	rows int64
}

// New opens a fresh buffer+gzip+CSV writer. No header row; CRLF line
// terminators per the CSV dialect.
func New() *ChunkBuilder {
	b := &ChunkBuilder{buf: &bytes.Buffer{}}
	b.gz = gzip.NewWriter(b.buf)
	b.csv = csv.NewWriter(b.gz)
	b.csv.UseCRLF = true
	return b
}

// WriteRow appends one CSV record. Cells must already be converted to
// their string representation by the caller per the cell-conversion
// policy (4.H step 7.c).
func (b *ChunkBuilder) WriteRow(cells []string) error {
	if err := b.csv.Write(cells); err != nil {
		return err
	}
	b.rows++
	return nil
}

// BytesBuffered flushes pending CSV/gzip data into the byte buffer and
// returns its current compressed size.
func (b *ChunkBuilder) BytesBuffered() (int, error) {
	b.csv.Flush()
	if err := b.csv.Error(); err != nil {
		return 0, err
	}
	if err := b.gz.Flush(); err != nil {
		return 0, err
	}
	return b.buf.Len(), nil
}

// Rotate finalizes the current gzip stream, returns its bytes and row
// count since the last rotation, and opens a fresh buffer+gzip+CSV
// writer. Row count resets.
func (b *ChunkBuilder) Rotate() ([]byte, int64, error) {
	data, rows, err := b.finish()
	if err != nil {
		return nil, 0, err
	}
	b.buf = &bytes.Buffer{}
	b.gz = gzip.NewWriter(b.buf)
	b.csv = csv.NewWriter(b.gz)
	b.csv.UseCRLF = true
	b.rows = 0
	return data, rows, nil
}

// Close finalizes the gzip stream like Rotate but does not reopen.
func (b *ChunkBuilder) Close() ([]byte, int64, error) {
	return b.finish()
}

func (b *ChunkBuilder) finish() ([]byte, int64, error) {
	b.csv.Flush()
	if err := b.csv.Error(); err != nil {
		return nil, 0, err
	}
	if err := b.gz.Close(); err != nil {
		return nil, 0, err
	}
	return b.buf.Bytes(), b.rows, nil
}
