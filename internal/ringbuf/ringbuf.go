// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ringbuf implements the growable byte ring that sits between the
// camera's irregular writes and fixed-size network frames.
package ringbuf

// MinSize is the capacity allocated on the first growth.
const MinSize = 1024

// Buffer is a growable circular byte buffer. It is owned by a single writer
// and is not safe for concurrent use.
type Buffer struct {
	buf       []byte
	available int // bytes ready for reading
	readPos   int
	writePos  int
}

// New returns an empty buffer. Storage is allocated lazily on first write.
func New() *Buffer {
	return &Buffer{}
}

// Len reports the number of bytes available for reading.
func (b *Buffer) Len() int { return b.available }

// Cap reports the current logical capacity.
func (b *Buffer) Cap() int { return len(b.buf) }

// Write appends data. It never fails; when the remaining capacity is too
// small the storage is doubled until the data fits, keeping byte order.
func (b *Buffer) Write(data []byte) {
	if len(data) == 0 {
		return
	}
	if len(b.buf) < b.available+len(data) {
		b.grow(len(data))
	}

	n := copy(b.buf[b.writePos:], data)
	if n < len(data) {
		copy(b.buf, data[n:])
	}
	b.writePos = (b.writePos + len(data)) % len(b.buf)
	b.available += len(data)
}

// grow reallocates so that extra more bytes fit after the pending ones.
// Pending bytes are moved to the front and the cursors reset.
func (b *Buffer) grow(extra int) {
	size := len(b.buf)
	for size <= b.available+extra {
		size = max(size, MinSize) * 2
	}

	next := make([]byte, size)
	pending := b.available
	b.readInto(next[:pending])

	b.buf = next
	b.readPos = 0
	b.writePos = pending
	b.available = pending
}

// Read returns up to n bytes. A negative n, or one larger than what is
// available, returns everything pending. It never blocks.
func (b *Buffer) Read(n int) []byte {
	if n < 0 || n > b.available {
		n = b.available
	}
	out := make([]byte, n)
	b.readInto(out)
	return out
}

// ReadAll drains the buffer.
func (b *Buffer) ReadAll() []byte {
	return b.Read(-1)
}

// readInto fills dst from the read cursor, wrapping past the end of storage.
func (b *Buffer) readInto(dst []byte) {
	if len(dst) == 0 {
		return
	}
	n := copy(dst, b.buf[b.readPos:])
	if n < len(dst) {
		copy(dst[n:], b.buf)
	}
	b.readPos = (b.readPos + len(dst)) % len(b.buf)
	b.available -= len(dst)
}
