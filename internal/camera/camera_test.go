// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/campipe/internal/config"
	"github.com/ManuGH/campipe/internal/motion"
)

type recordingStream struct {
	bytes.Buffer
	flushed int
	closed  int
}

func (s *recordingStream) Flush() error { s.flushed++; return nil }
func (s *recordingStream) Close() error { s.closed++; return nil }

func TestRenderAnnotation(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)

	got, err := RenderAnnotation("{{.Hostname}} {{.Time}}", "cam1", now, "2006-01-02 15:04")
	require.NoError(t, err)
	assert.Equal(t, "cam1 2024-03-09 14:05", got)

	got, err = RenderAnnotation("", "cam1", now, time.RFC3339)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = RenderAnnotation("{{.Nope", "cam1", now, time.RFC3339)
	require.Error(t, err)
}

func TestRenderAnnotationClockStaysLive(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	render := func(at time.Time) string {
		got, err := RenderAnnotation(config.Defaults().Camera.Annotation, "cam%1", at, "2006-01-02 15:04:05")
		require.NoError(t, err)
		return got
	}

	assert.Equal(t, "cam%%1 %Y-%m-%d %H:%M:%S", render(now))
	assert.Equal(t, render(now), render(now.Add(time.Hour)), "the capture tool fills in the time")
}

func TestStrftime(t *testing.T) {
	tests := []struct{ layout, want string }{
		{"2006-01-02 15:04:05", "%Y-%m-%d %H:%M:%S"},
		{"Mon Jan 2 03:04PM", "%a %b %-d %I:%M%p"},
		{"Jan _2 3:4:5pm", "%b %e %-I:%-M:%-S%P"},
		{"Monday, January 02 06", "%A, %B %d %y"},
		{"15:04 MST -0700", "%H:%M %Z %z"},
		{"at %", "at %%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Strftime(tt.layout), tt.layout)
	}
}

func TestVideoArgs(t *testing.T) {
	c := config.Defaults().Camera
	c.Bitrate = 1000000
	c.Framerate = 30
	c.Resolution = config.Resolution{Width: 640, Height: 480}
	c.VFlip = true
	c.VideoArgs = []string{"-ex", "night"}

	args := VideoArgs(c, "front door", "/tmp/vec")
	assert.Equal(t, []string{
		"-o", "-", "-t", "0", "-n", "-ih",
		"-b", "1000000", "-fps", "30", "-w", "640", "-h", "480",
		"-vf", "-a", "front door", "-x", "/tmp/vec", "-ex", "night",
	}, args)

	c.VFlip = false
	c.VideoArgs = nil
	assert.NotContains(t, VideoArgs(c, "", ""), "-x")
	assert.NotContains(t, VideoArgs(c, "", ""), "-a")
}

func TestVideoSourceStreamsStdout(t *testing.T) {
	src := &VideoSource{Command: "sh", Args: []string{"-c", "printf 'h264-bytes'"}, KillGrace: time.Second}
	var s recordingStream

	require.NoError(t, src.Run(t.Context(), &s))
	assert.Equal(t, "h264-bytes", s.String())
	assert.Equal(t, 1, s.flushed)
	assert.Equal(t, 1, s.closed)
}

func TestVideoSourceReportsExitStatus(t *testing.T) {
	src := &VideoSource{Command: "sh", Args: []string{"-c", "exit 3"}, KillGrace: time.Second}
	var s recordingStream

	err := src.Run(t.Context(), &s)
	require.Error(t, err)
	assert.Equal(t, 1, s.closed)
}

func TestVideoSourceStopsOnCancel(t *testing.T) {
	src := &VideoSource{Command: "sh", Args: []string{"-c", "printf x; exec sleep 30"}, KillGrace: 500 * time.Millisecond}
	var s recordingStream

	ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, src.Run(ctx, &s))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, s.closed)
}

func TestExecCapturer(t *testing.T) {
	c := &ExecCapturer{Command: "sh", Args: []string{"-c", "printf jpeg"}}
	var buf bytes.Buffer
	require.NoError(t, c.Capture(t.Context(), &buf))
	assert.Equal(t, "jpeg", buf.String())

	failing := &ExecCapturer{Command: "sh", Args: []string{"-c", "echo 'no camera' >&2; exit 1"}}
	err := failing.Capture(t.Context(), &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no camera")
}

func TestExecCapturerHonoursCancelledContext(t *testing.T) {
	c := &ExecCapturer{Command: "sh", Args: []string{"-c", "printf jpeg"}}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	var buf bytes.Buffer
	require.ErrorIs(t, c.Capture(ctx, &buf), context.Canceled)
	assert.Zero(t, buf.Len())
}

func writeField(t *testing.T, buf *bytes.Buffer, rows, cols int, moving int, x int8) {
	t.Helper()
	for i := 0; i < rows*cols; i++ {
		v := int8(0)
		if i < moving {
			v = x
		}
		buf.WriteByte(byte(v))
		buf.WriteByte(0)
		require.NoError(t, binary.Write(buf, binary.LittleEndian, uint16(0)))
	}
}

func TestMotionWatcherRaisesEvents(t *testing.T) {
	cfg := config.Defaults()
	cfg.Camera.Resolution = config.Resolution{Width: 64, Height: 32}
	cfg.Motion.VectorsPath = filepath.Join(t.TempDir(), "vectors")

	rows, cols := motion.Grid(64, 32)
	var raw bytes.Buffer
	writeField(t, &raw, rows, cols, 0, 0)
	writeField(t, &raw, rows, cols, rows*cols, 100)
	writeField(t, &raw, rows, cols, 1, 100)
	require.NoError(t, os.WriteFile(cfg.Motion.VectorsPath, raw.Bytes(), 0o600))

	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var got []time.Time
	d := motion.NewDetector(motion.Thresholds{Magnitude: 60, Blocks: 2})
	w := NewMotionWatcher(cfg, d, func(ts time.Time) { got = append(got, ts) })
	w.now = func() time.Time { return stamp }

	require.NoError(t, w.Run(t.Context()))
	assert.Equal(t, []time.Time{stamp}, got)
}

func TestMotionWatcherMissingStream(t *testing.T) {
	cfg := config.Defaults()
	cfg.Motion.VectorsPath = filepath.Join(t.TempDir(), "absent")
	w := NewMotionWatcher(cfg, motion.NewDetector(motion.Thresholds{Magnitude: 1, Blocks: 1}), func(time.Time) {})
	require.Error(t, w.Run(t.Context()))
}
