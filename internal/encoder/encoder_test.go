// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package encoder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFFmpegArgs(t *testing.T) {
	f := NewFFmpeg(Config{ExtraArgs: []string{"-movflags", "+faststart"}})
	got := f.Args(Segment{Source: "cam1", Path: "/rec/cam1.mp4", Framerate: 25})
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "h264", "-framerate", "25", "-i", "-",
		"-codec", "copy", "-r", "25",
		"-movflags", "+faststart",
		"-y", "/rec/cam1.mp4",
	}, got)
}

func TestFFmpegRejectsZeroFramerate(t *testing.T) {
	_, err := NewFFmpeg(Config{}).Start(context.Background(), Segment{Path: "x.mp4"})
	require.Error(t, err)
}

func catEncoder() *Command {
	return NewCommand(Config{Binary: "sh"}, "-c", `cat > "$0"`)
}

func TestCommandWritesSegment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cam1.mp4")
	p, err := catEncoder().Start(context.Background(), Segment{Source: "cam1", Path: path, Framerate: 25})
	require.NoError(t, err)
	assert.Positive(t, p.PID())

	data := bytes.Repeat([]byte{0xAB}, 5000)
	n, err := p.Write(data)
	require.NoError(t, err)
	require.Equal(t, 5000, n)

	require.NoError(t, p.CloseInput())
	require.NoError(t, p.CloseInput())
	require.NoError(t, p.Wait(context.Background()))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWaitErrorCarriesStderrTail(t *testing.T) {
	c := NewCommand(Config{Binary: "sh"}, "-c", `echo "no such muxer" >&2; exit 3`)
	p, err := c.Start(context.Background(), Segment{Path: "ignored"})
	require.NoError(t, err)

	err = p.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such muxer")
	// A second Wait returns the cached result.
	assert.Equal(t, err, p.Wait(context.Background()))
}

func TestWriteAfterExitIsBrokenInput(t *testing.T) {
	c := NewCommand(Config{Binary: "sh"}, "-c", `exit 0`)
	p, err := c.Start(context.Background(), Segment{Path: "ignored"})
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background()))

	_, err = p.Write([]byte("late"))
	require.Error(t, err)
	assert.True(t, IsBrokenInput(err), "got %v", err)
}

func TestWaitTimeoutTerminatesGroup(t *testing.T) {
	c := NewCommand(Config{Binary: "sh", KillGrace: 100 * time.Millisecond}, "-c", `sleep 30; : "$0"`)
	p, err := c.Start(context.Background(), Segment{Path: "ignored"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.Error(t, p.Wait(ctx))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestIsBrokenInput(t *testing.T) {
	assert.True(t, IsBrokenInput(&os.PathError{Op: "write", Err: syscall.EPIPE}))
	assert.True(t, IsBrokenInput(syscall.EINVAL))
	assert.False(t, IsBrokenInput(syscall.ENOSPC))
	assert.False(t, IsBrokenInput(nil))
}

func TestLineRingKeepsLastLines(t *testing.T) {
	r := NewLineRing(3)
	_, _ = r.Write([]byte("one\ntwo\n"))
	_, _ = r.Write([]byte("thr"))
	_, _ = r.Write([]byte("ee\nfour\r\n\nfive"))
	assert.Equal(t, []string{"three", "four", "five"}, r.Lines())
}

func TestKillStopsRunningEncoder(t *testing.T) {
	c := NewCommand(Config{Binary: "sh"}, "-c", `sleep 30`)
	p, err := c.Start(context.Background(), Segment{Path: "ignored"})
	require.NoError(t, err)

	require.NoError(t, p.Kill())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = p.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "killed")
	require.NoError(t, ctx.Err(), "exited from SIGKILL, not from the wait deadline")
}
