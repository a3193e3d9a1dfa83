// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/campipe/internal/encoder"
	"github.com/ManuGH/campipe/internal/procgroup"
	"github.com/ManuGH/campipe/internal/telemetry"
)

var tracer = telemetry.Tracer("campipe/camera")

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

// ExecCapturer takes a still by running a command that writes one JPEG to
// stdout. Captures are serialized: the sensor serves one at a time.
type ExecCapturer struct {
	Command string
	Args    []string

	mu sync.Mutex
}

// Capture runs the command to completion. There is no mid-capture
// cancellation; ctx only bounds waiting for the exclusive sensor.
func (c *ExecCapturer) Capture(ctx context.Context, w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	_, span := tracer.Start(ctx, "still.capture")
	defer span.End()

	out := &countingWriter{w: w}
	err := c.run(out)
	span.SetAttributes(telemetry.StillAttributes(c.Command, out.n)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "capture failed")
	}
	return err
}

func (c *ExecCapturer) run(w io.Writer) error {
	stderr := encoder.NewLineRing(10)
	cmd := exec.Command(c.Command, c.Args...)
	procgroup.Set(cmd)
	cmd.Stdout = w
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if tail := stderr.Lines(); len(tail) > 0 {
			return fmt.Errorf("%s: %w: %s", c.Command, err, strings.Join(tail, " | "))
		}
		return fmt.Errorf("%s: %w", c.Command, err)
	}
	return nil
}
