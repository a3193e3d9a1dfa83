// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package motion

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// recordSize is the on-disk size of one vector: int8 x, int8 y, uint16 sad.
const recordSize = 4

// Grid returns the vector field dimensions the H.264 encoder emits for a
// frame of width x height: one vector per 16x16 macroblock plus one extra column.
func Grid(width, height int) (rows, cols int) {
	cols = (width+15)/16 + 1
	rows = (height + 15) / 16
	return rows, cols
}

// Reader decodes consecutive vector fields from a raw stream.
type Reader struct {
	r    io.Reader
	rows int
	cols int
	raw  []byte
}

// NewReader returns a reader of rows x cols fields.
func NewReader(r io.Reader, rows, cols int) *Reader {
	return &Reader{r: r, rows: rows, cols: cols, raw: make([]byte, rows*cols*recordSize)}
}

// Next reads one field. It returns io.EOF at a clean end of stream and
// io.ErrUnexpectedEOF for a truncated field.
func (r *Reader) Next() (Field, error) {
	if _, err := io.ReadFull(r.r, r.raw); err != nil {
		return Field{}, err
	}
	f := Field{Rows: r.rows, Cols: r.cols, Vectors: make([]Vector, r.rows*r.cols)}
	for i := range f.Vectors {
		rec := r.raw[i*recordSize : (i+1)*recordSize]
		f.Vectors[i] = Vector{
			X:   int8(rec[0]),
			Y:   int8(rec[1]),
			SAD: binary.LittleEndian.Uint16(rec[2:4]),
		}
	}
	return f, nil
}

// Run feeds every field from r to a, calling onMotion when a raises an event.
// It returns nil when the stream ends cleanly or ctx is cancelled.
func Run(ctx context.Context, r *Reader, a Analyzer, onMotion func()) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read motion vectors: %w", err)
		}
		if a.Analyze(f) {
			onMotion()
		}
	}
}
