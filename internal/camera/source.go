// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/ManuGH/campipe/internal/config"
	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/procgroup"
)

// Stream is where the raw video bytes go: a FrameWriter in production.
type Stream interface {
	io.Writer
	Flush() error
	Close() error
}

// VideoArgs builds the raspivid argument list: H.264 to stdout, no preview,
// inline SPS/PPS so a recorder can join mid-stream.
func VideoArgs(c config.CameraConfig, annotation string, vectorsPath string) []string {
	args := []string{
		"-o", "-",
		"-t", "0",
		"-n",
		"-ih",
		"-b", strconv.Itoa(c.Bitrate),
		"-fps", strconv.Itoa(c.Framerate),
		"-w", strconv.Itoa(c.Resolution.Width),
		"-h", strconv.Itoa(c.Resolution.Height),
	}
	if c.VFlip {
		args = append(args, "-vf")
	}
	if c.HFlip {
		args = append(args, "-hf")
	}
	if annotation != "" {
		args = append(args, "-a", annotation)
	}
	if vectorsPath != "" {
		args = append(args, "-x", vectorsPath)
	}
	return append(args, c.VideoArgs...)
}

// VideoSource runs the capture command and streams its stdout.
type VideoSource struct {
	Command   string
	Args      []string
	KillGrace time.Duration
}

// Run streams one capture process into s. On EOF the stream is flushed and
// closed so subscribers see END. When ctx ends the process group is
// terminated and s is still closed.
func (v *VideoSource) Run(ctx context.Context, s Stream) error {
	logger := log.WithComponent("camera").With().Str(log.FieldCommand, v.Command).Logger()

	cmd := exec.Command(v.Command, v.Args...)
	procgroup.Set(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("video stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start video source: %w", err)
	}
	logger.Info().Int(log.FieldPID, cmd.Process.Pid).Str(log.FieldEvent, "camera.video_started").Msg("video source started")

	copyDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(s, stdout)
		copyDone <- err
	}()

	waitCh := make(chan error, 1)
	var copyErr, waitErr error
	select {
	case copyErr = <-copyDone:
		if copyErr != nil {
			// Nobody drains stdout anymore.
			_ = procgroup.Kill(cmd, syscall.SIGKILL)
		}
		go func() { waitCh <- cmd.Wait() }()
		waitErr = <-waitCh
	case <-ctx.Done():
		go func() {
			// Wait must not race the pipe reader.
			<-copyDone
			waitCh <- cmd.Wait()
		}()
		waitErr = procgroup.Terminate(cmd, waitCh, v.KillGrace)
		if ctx.Err() != nil {
			waitErr = nil
		}
	}

	flushErr := s.Flush()
	closeErr := s.Close()
	logger.Info().Str(log.FieldEvent, "camera.video_stopped").AnErr("wait_error", waitErr).Msg("video source stopped")

	switch {
	case copyErr != nil:
		return fmt.Errorf("stream video: %w", copyErr)
	case flushErr != nil:
		return flushErr
	case closeErr != nil:
		return closeErr
	case waitErr != nil:
		return fmt.Errorf("video source exited: %w", waitErr)
	}
	return nil
}
