// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package encoder wraps the external muxer that turns a raw H.264 byte
// stream on stdin into a segment file.
package encoder

import (
	"context"
	"errors"
	"io"
	"syscall"
)

// Segment describes one output file.
type Segment struct {
	Source    string
	Path      string
	Framerate int
}

// Process is a running encoder for one segment.
type Process interface {
	io.Writer
	// CloseInput signals end of input.
	CloseInput() error
	// Wait blocks until the process exits. When ctx ends first the process
	// group is terminated and the wait result is still returned.
	Wait(ctx context.Context) error
	// Kill forcibly stops the process group.
	Kill() error
	PID() int
}

// Encoder spawns encoder processes.
type Encoder interface {
	Start(ctx context.Context, seg Segment) (Process, error)
}

// IsBrokenInput reports write errors after which only the affected session
// should be dropped: the process went away (EPIPE) or rejected the write
// (EINVAL).
func IsBrokenInput(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.EINVAL)
}
