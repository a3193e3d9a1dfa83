// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

import (
	"fmt"

	"github.com/ManuGH/campipe/internal/ringbuf"
)

// DefaultFrameSize is the network frame size used when none is configured.
const DefaultFrameSize = 4096

// FrameWriter chunks arbitrary writes into fixed-size DATA frames. The first
// write of a logical stream is preceded by a START frame and Close ends the
// stream with an END frame. It is owned by a single producer goroutine.
type FrameWriter struct {
	source    string
	frameSize int
	buf       *ringbuf.Buffer
	pub       Publisher
	started   bool
}

// NewFrameWriter returns a writer emitting frames for source through pub.
func NewFrameWriter(pub Publisher, source string, frameSize int) *FrameWriter {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &FrameWriter{
		source:    source,
		frameSize: frameSize,
		buf:       ringbuf.New(),
		pub:       pub,
	}
}

// FrameSize reports the configured DATA frame size.
func (w *FrameWriter) FrameSize() int { return w.frameSize }

// Pending reports the bytes held back until the next threshold crossing or flush.
func (w *FrameWriter) Pending() int { return w.buf.Len() }

// Write implements io.Writer. It emits as many full DATA frames as the
// buffered bytes allow and keeps the remainder pending.
func (w *FrameWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)

	if !w.started {
		if err := w.emit(KindStart, nil); err != nil {
			return 0, err
		}
		w.started = true
	}

	for w.buf.Len() >= w.frameSize {
		if err := w.emit(KindData, w.buf.Read(w.frameSize)); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush emits DATA frames while strictly more than one frame is pending and
// then one final DATA frame with the remainder, which may be empty.
func (w *FrameWriter) Flush() error {
	if !w.started {
		return nil
	}
	for w.buf.Len() > w.frameSize {
		if err := w.emit(KindData, w.buf.Read(w.frameSize)); err != nil {
			return err
		}
	}
	return w.emit(KindData, w.buf.ReadAll())
}

// Close ends the logical stream with a single END frame. Pending bytes are
// not flushed; call Flush first. Closing a stream that was never started, or
// closing twice, emits nothing.
func (w *FrameWriter) Close() error {
	if !w.started {
		return nil
	}
	w.started = false
	return w.emit(KindEnd, nil)
}

func (w *FrameWriter) emit(kind FrameKind, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	if err := w.pub.Publish(Frame{Source: w.source, Kind: kind, Payload: payload}); err != nil {
		return fmt.Errorf("publish %s frame for %s: %w", kind, w.source, err)
	}
	return nil
}
