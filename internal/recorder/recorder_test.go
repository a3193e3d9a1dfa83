// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/campipe/internal/catalog"
	"github.com/ManuGH/campipe/internal/encoder"
	"github.com/ManuGH/campipe/internal/events"
	"github.com/ManuGH/campipe/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeProc buffers input and writes it to the segment path on Wait, like a
// muxer that finalizes its container at end of input.
type fakeProc struct {
	enc      *fakeEncoder
	seg      encoder.Segment
	buf      bytes.Buffer
	closed   bool
	waited   bool
	killed   bool
	writeErr error
	noOutput bool
}

func (p *fakeProc) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.closed {
		return 0, errors.New("write after close")
	}
	return p.buf.Write(b)
}

func (p *fakeProc) CloseInput() error {
	p.closed = true
	p.enc.log("close " + p.seg.Source)
	return nil
}

func (p *fakeProc) Wait(context.Context) error {
	p.waited = true
	p.enc.log("wait " + p.seg.Source)
	if p.noOutput {
		return errors.New("exit status 1")
	}
	return os.WriteFile(p.seg.Path, p.buf.Bytes(), 0o644)
}

func (p *fakeProc) Kill() error { p.killed = true; return nil }
func (p *fakeProc) PID() int    { return 4242 }

type fakeEncoder struct {
	mu       sync.Mutex
	procs    []*fakeProc
	calls    []string
	noOutput bool
}

func (e *fakeEncoder) log(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, s)
}

func (e *fakeEncoder) Start(_ context.Context, seg encoder.Segment) (encoder.Process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := os.Stat(filepath.Dir(seg.Path)); err != nil {
		return nil, err
	}
	p := &fakeProc{enc: e, seg: seg, noOutput: e.noOutput}
	e.procs = append(e.procs, p)
	e.calls = append(e.calls, "start "+seg.Source)
	return p, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func noTicker(time.Duration) (<-chan time.Time, func()) { return nil, func() {} }

func newTestRecorder(t *testing.T, enc encoder.Encoder, c *clock, opts ...Option) (*Recorder, string) {
	t.Helper()
	dir := t.TempDir()
	opts = append([]Option{WithClock(c.now), WithTicker(noTicker)}, opts...)
	r := New(Config{Folder: dir, MaxDuration: time.Minute, PollInterval: 5 * time.Second, Framerate: 25}, enc, opts...)
	return r, dir
}

func data(source string, n int) transport.Frame {
	return transport.Frame{Source: source, Kind: transport.KindData, Payload: bytes.Repeat([]byte{'x'}, n)}
}

func TestSegmentPath(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, filepath.Join("/rec", "2024-03-01", "cam1-20240301-090507.mp4"), SegmentPath("/rec", "cam1", ts, "mp4"))
	assert.Equal(t, "tcp___10.0.0.5_5555", SanitizeSource("tcp://10.0.0.5:5555"))
	assert.Equal(t, "unknown", SanitizeSource(".."))
}

func TestRotationProducesThreeSegments(t *testing.T) {
	ctx := context.Background()
	enc := &fakeEncoder{}
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	r, dir := newTestRecorder(t, enc, c)

	require.NoError(t, r.HandleFrame(ctx, transport.Frame{Source: "cam1", Kind: transport.KindStart}))
	// One DATA frame per second for 2.5 x max_duration.
	for i := 0; i < 150; i++ {
		require.NoError(t, r.HandleFrame(ctx, data("cam1", 10)))
		c.advance(time.Second)
	}
	require.NoError(t, r.HandleFrame(ctx, transport.Frame{Source: "cam1", Kind: transport.KindEnd}))

	require.Len(t, enc.procs, 3)
	for i, p := range enc.procs {
		assert.True(t, p.closed, "segment %d input closed", i)
		assert.True(t, p.waited, "segment %d awaited", i)
		_, err := os.Stat(p.seg.Path)
		require.NoError(t, err)
	}
	// The previous encoder is finished before the next is started.
	assert.Equal(t, []string{
		"start cam1",
		"close cam1", "wait cam1", "start cam1",
		"close cam1", "wait cam1", "start cam1",
		"close cam1", "wait cam1",
	}, enc.calls)

	// Rotate-then-write: the frame at 60s opens the second segment.
	assert.Equal(t, 600, enc.procs[0].buf.Len())
	assert.Equal(t, 600, enc.procs[1].buf.Len())
	assert.Equal(t, 300, enc.procs[2].buf.Len())

	files, err := filepath.Glob(filepath.Join(dir, "2024-03-01", "cam1-*.mp4"))
	require.NoError(t, err)
	assert.Len(t, files, 3)
	assert.Empty(t, r.Sessions())
}

type brokenOnce struct {
	fakeEncoder
	failSource string
}

func (e *brokenOnce) Start(ctx context.Context, seg encoder.Segment) (encoder.Process, error) {
	p, err := e.fakeEncoder.Start(ctx, seg)
	if err == nil && seg.Source == e.failSource {
		p.(*fakeProc).writeErr = &os.PathError{Op: "write", Path: "|0", Err: syscall.EPIPE}
	}
	return p, err
}

func TestBrokenPipeClosesOnlyThatSession(t *testing.T) {
	ctx := context.Background()
	enc := &brokenOnce{failSource: "cam2"}
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := &memCatalog{}
	r, _ := newTestRecorder(t, enc, c, WithCatalog(store))

	require.NoError(t, r.HandleFrame(ctx, data("cam1", 100)))
	require.NoError(t, r.HandleFrame(ctx, data("cam2", 100)))
	assert.ElementsMatch(t, []string{"cam1"}, r.Sessions())

	require.NoError(t, r.HandleFrame(ctx, data("cam1", 100)))
	assert.ElementsMatch(t, []string{"cam1"}, r.Sessions())
	assert.Equal(t, 200, enc.procs[0].buf.Len())
	assert.False(t, enc.procs[0].killed)
	assert.True(t, enc.procs[1].killed, "broken encoder is killed before its wait")

	require.Len(t, store.finished, 1)
	assert.Equal(t, catalog.StatusAborted, store.finished[0].Status)
}

func TestFatalWriteErrorStopsRun(t *testing.T) {
	enc := &fakeEncoder{}
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	r, _ := newTestRecorder(t, enc, c)

	require.NoError(t, r.HandleFrame(context.Background(), data("cam1", 1)))
	enc.procs[0].writeErr = syscall.ENOSPC
	err := r.HandleFrame(context.Background(), data("cam1", 1))
	require.ErrorIs(t, err, syscall.ENOSPC)
}

func TestMissingSegmentIsReported(t *testing.T) {
	ctx := context.Background()
	enc := &fakeEncoder{noOutput: true}
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := &memCatalog{}
	r, _ := newTestRecorder(t, enc, c, WithCatalog(store))

	require.NoError(t, r.HandleFrame(ctx, data("cam1", 10)))
	s := r.sessions["cam1"]
	require.NotNil(t, s)
	err := r.closeSession(ctx, s, reasonEnd)
	require.ErrorIs(t, err, ErrSegmentMissing)

	// END on a missing segment does not stop the recorder.
	require.NoError(t, r.HandleFrame(ctx, data("cam1", 10)))
	require.NoError(t, r.HandleFrame(ctx, transport.Frame{Source: "cam1", Kind: transport.KindEnd}))

	require.Len(t, store.finished, 2)
	assert.Equal(t, catalog.StatusMissing, store.finished[0].Status)
	assert.Equal(t, catalog.StatusMissing, store.finished[1].Status)
}

func TestStartRestartsOpenSession(t *testing.T) {
	ctx := context.Background()
	enc := &fakeEncoder{}
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	r, _ := newTestRecorder(t, enc, c)

	require.NoError(t, r.HandleFrame(ctx, data("cam1", 10)))
	require.NoError(t, r.HandleFrame(ctx, transport.Frame{Source: "cam1", Kind: transport.KindStart}))
	require.NoError(t, r.HandleFrame(ctx, data("cam1", 10)))

	require.Len(t, enc.procs, 2)
	assert.True(t, enc.procs[0].waited)
	assert.NotEqual(t, enc.procs[0].seg.Path, enc.procs[1].seg.Path, "same-second restart gets a distinct name")
}

func TestIdleReclaim(t *testing.T) {
	ctx := context.Background()
	enc := &fakeEncoder{}
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	r, _ := newTestRecorder(t, enc, c)

	require.NoError(t, r.HandleFrame(ctx, data("cam1", 10)))

	// Idle but younger than max_duration: kept.
	c.advance(30 * time.Second)
	r.ReclaimIdle(ctx)
	assert.Len(t, r.Sessions(), 1)

	// Past max_duration but a frame arrived recently: kept.
	c.advance(28 * time.Second)
	require.NoError(t, r.HandleFrame(ctx, transport.Frame{Source: "cam1", Kind: transport.KindData}))
	c.advance(3 * time.Second)
	r.ReclaimIdle(ctx)
	assert.Len(t, r.Sessions(), 1)

	// Silent for a poll interval and past max_duration: reclaimed.
	c.advance(3 * time.Second)
	r.ReclaimIdle(ctx)
	assert.Empty(t, r.Sessions())
	require.Len(t, enc.procs, 1)
	assert.True(t, enc.procs[0].closed)
}

func TestEndWithoutSessionIsIgnored(t *testing.T) {
	enc := &fakeEncoder{}
	c := &clock{t: time.Now()}
	r, _ := newTestRecorder(t, enc, c)
	require.NoError(t, r.HandleFrame(context.Background(), transport.Frame{Source: "cam1", Kind: transport.KindEnd}))
	assert.Empty(t, enc.procs)
}

func TestMkdirFailureIsFatal(t *testing.T) {
	enc := &fakeEncoder{}
	c := &clock{t: time.Now()}
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	r := New(Config{Folder: file}, enc, WithClock(c.now), WithTicker(noTicker))

	err := r.HandleFrame(context.Background(), data("cam1", 1))
	require.Error(t, err)
}

func TestRunClosesSessionsOnCancel(t *testing.T) {
	enc := &fakeEncoder{}
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	r, _ := newTestRecorder(t, enc, c)

	frames := make(chan transport.Frame)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, frames, nil) }()

	frames <- data("cam1", 10)
	frames <- data("cam2", 10)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	require.Len(t, enc.procs, 2)
	for _, p := range enc.procs {
		assert.True(t, p.waited)
	}
	assert.Empty(t, r.Sessions())
}

func TestRunFatalErrorClosesOthers(t *testing.T) {
	enc := &fakeEncoder{}
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	r, _ := newTestRecorder(t, enc, c)

	frames := make(chan transport.Frame, 4)
	frames <- data("cam1", 10)
	frames <- data("cam2", 10)
	frames <- transport.Frame{Source: "cam1", Kind: transport.FrameKind(9)}

	err := r.Run(context.Background(), frames, nil)
	require.ErrorIs(t, err, transport.ErrUnknownFrameKind)
	for _, p := range enc.procs {
		assert.True(t, p.waited)
	}
}

func TestRunLogsEvents(t *testing.T) {
	enc := &fakeEncoder{}
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	logPath := filepath.Join(t.TempDir(), "events", "motion.log")
	el, err := NewEventLog(logPath, "", 0)
	require.NoError(t, err)
	r, _ := newTestRecorder(t, enc, c, WithEventLog(el))

	frames := make(chan transport.Frame)
	evs := make(chan events.MotionEvent)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, frames, evs) }()

	ts := time.Date(2024, 3, 1, 10, 0, 1, 0, time.UTC)
	evs <- events.MotionEvent{Source: "cam1", Kind: events.KindMotion, Timestamp: ts}
	close(evs)
	// A frame round-trip proves the event was handled.
	frames <- transport.Frame{Source: "cam1", Kind: transport.KindEnd}
	cancel()
	require.NoError(t, <-done)

	got, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T10:00:01Z cam1 MOTION\n", string(got))
}

// memCatalog records catalog calls.
type memCatalog struct {
	catalog.Nop
	opened   []catalog.Segment
	finished []catalog.Segment
}

func (m *memCatalog) Open(_ context.Context, source, path string, started time.Time) (string, error) {
	id := path
	m.opened = append(m.opened, catalog.Segment{ID: id, Source: source, Path: path, StartedAt: started})
	return id, nil
}

func (m *memCatalog) Finish(_ context.Context, id string, ended time.Time, n int64, status catalog.Status, reason string) error {
	m.finished = append(m.finished, catalog.Segment{ID: id, EndedAt: ended, Bytes: n, Status: status, Reason: reason})
	return nil
}
