// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transport carries the camera video stream as discrete frames
// tagged with a source identifier and a START/DATA/END kind.
package transport

import (
	"errors"
	"fmt"
)

// FrameKind demarcates a logical video stream on the wire.
type FrameKind uint8

const (
	KindStart FrameKind = iota + 1
	KindData
	KindEnd
)

// ErrUnknownFrameKind is returned when a wire message carries an unrecognised kind.
var ErrUnknownFrameKind = errors.New("unknown frame kind")

func (k FrameKind) String() string {
	switch k {
	case KindStart:
		return "START"
	case KindData:
		return "DATA"
	case KindEnd:
		return "END"
	default:
		return fmt.Sprintf("FrameKind(%d)", uint8(k))
	}
}

// ParseFrameKind maps the wire name back to a FrameKind.
func ParseFrameKind(s string) (FrameKind, error) {
	switch s {
	case "START":
		return KindStart, nil
	case "DATA":
		return KindData, nil
	case "END":
		return KindEnd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFrameKind, s)
	}
}

// Frame is one network-transmitted chunk of a stream. Frames are treated as
// immutable once published.
type Frame struct {
	Source  string
	Kind    FrameKind
	Payload []byte
}

// Publisher sends frames to whoever is subscribed. Implementations must not
// block on slow subscribers.
type Publisher interface {
	Publish(f Frame) error
}
