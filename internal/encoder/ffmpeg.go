// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/procgroup"
)

const stderrTailLines = 20

// Config configures the ffmpeg encoder.
type Config struct {
	Binary string
	// ExtraArgs are inserted before the output path.
	ExtraArgs []string
	// KillGrace is the SIGTERM grace before SIGKILL when a wait is abandoned.
	KillGrace time.Duration
	// KillTimeout bounds the wait after SIGKILL.
	KillTimeout time.Duration
}

// FFmpeg remuxes raw H.264 from stdin without re-encoding.
type FFmpeg struct {
	cfg Config
}

// NewFFmpeg returns an ffmpeg encoder with defaults filled in.
func NewFFmpeg(cfg Config) *FFmpeg {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 2 * time.Second
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = 5 * time.Second
	}
	return &FFmpeg{cfg: cfg}
}

// Args builds the ffmpeg argument list for seg.
func (f *FFmpeg) Args(seg Segment) []string {
	fr := strconv.Itoa(seg.Framerate)
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "h264",
		"-framerate", fr,
		"-i", "-",
		"-codec", "copy",
		"-r", fr,
	}
	args = append(args, f.cfg.ExtraArgs...)
	return append(args, "-y", seg.Path)
}

// Start spawns ffmpeg for seg in its own process group.
func (f *FFmpeg) Start(ctx context.Context, seg Segment) (Process, error) {
	if seg.Framerate <= 0 {
		return nil, fmt.Errorf("start encoder: invalid framerate %d", seg.Framerate)
	}
	return start(ctx, f.cfg, seg, f.cfg.Binary, f.Args(seg))
}

// Command runs an arbitrary binary as encoder: stdin receives the stream,
// the segment path is appended as last argument. Used for non-ffmpeg
// muxers.
type Command struct {
	cfg  Config
	Args []string
}

// NewCommand returns an encoder running cfg.Binary with args.
func NewCommand(cfg Config, args ...string) *Command {
	ff := NewFFmpeg(cfg)
	return &Command{cfg: ff.cfg, Args: args}
}

func (c *Command) Start(ctx context.Context, seg Segment) (Process, error) {
	args := append(append([]string{}, c.Args...), seg.Path)
	return start(ctx, c.cfg, seg, c.cfg.Binary, args)
}

func start(ctx context.Context, cfg Config, seg Segment, bin string, args []string) (*process, error) {
	logger := log.WithContext(log.ContextWithSource(ctx, seg.Source), log.WithComponent("encoder"))

	// Not exec.CommandContext: the recorder decides when a segment ends,
	// not the caller's context.
	cmd := exec.Command(bin, args...)
	procgroup.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdin: %w", err)
	}
	ring := NewLineRing(stderrTailLines)
	cmd.Stderr = ring

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start encoder %s: %w", bin, err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		ring:   ring,
		waitCh: make(chan error, 1),
		cfg:    cfg,
		logger: logger.With().Int(log.FieldPID, cmd.Process.Pid).Str(log.FieldPath, seg.Path).Logger(),
	}
	go func() { p.waitCh <- cmd.Wait() }()

	p.logger.Debug().Str(log.FieldCommand, bin+" "+strings.Join(args, " ")).Msg("encoder started")
	return p, nil
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	ring   *LineRing
	waitCh chan error
	cfg    Config
	logger zerolog.Logger

	inputClosed atomic.Bool
	closeOnce   sync.Once
	closeErr    error

	waitOnce sync.Once
	waitErr  error
}

// Write feeds the encoder. Once the process has exited its stdin is closed
// by Wait, which surfaces as EPIPE like a write into a dead reader.
func (p *process) Write(b []byte) (int, error) {
	n, err := p.stdin.Write(b)
	if err != nil && errors.Is(err, os.ErrClosed) && !p.inputClosed.Load() {
		return n, &os.PathError{Op: "write", Path: "|0", Err: syscall.EPIPE}
	}
	return n, err
}

func (p *process) CloseInput() error {
	p.closeOnce.Do(func() {
		p.inputClosed.Store(true)
		p.closeErr = p.stdin.Close()
	})
	return p.closeErr
}

func (p *process) Wait(ctx context.Context) error {
	p.waitOnce.Do(func() {
		var err error
		select {
		case err = <-p.waitCh:
		case <-ctx.Done():
			p.logger.Warn().Msg("encoder did not exit in time, terminating process group")
			err = procgroup.TerminateWithin(p.cmd, p.waitCh, p.cfg.KillGrace, p.cfg.KillTimeout)
			if errors.Is(err, procgroup.ErrWaitTimeout) {
				p.waitErr = err
				return
			}
			if err == nil {
				err = ctx.Err()
			}
		}
		p.waitErr = p.exitError(err)
	})
	return p.waitErr
}

func (p *process) exitError(err error) error {
	if err == nil {
		return nil
	}
	tail := p.ring.Lines()
	if len(tail) == 0 {
		return fmt.Errorf("encoder exited: %w", err)
	}
	return fmt.Errorf("encoder exited: %w: %s", err, strings.Join(tail, " | "))
}

func (p *process) Kill() error {
	return procgroup.Kill(p.cmd, syscall.SIGKILL)
}

func (p *process) PID() int {
	return p.cmd.Process.Pid
}
