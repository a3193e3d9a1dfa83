// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package recorder turns the framed video streams of one or more camera nodes
// into time-bounded segment files, one encoder process per source, and logs
// motion events next to them.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/campipe/internal/catalog"
	"github.com/ManuGH/campipe/internal/encoder"
	"github.com/ManuGH/campipe/internal/events"
	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/metrics"
	"github.com/ManuGH/campipe/internal/transport"
)

// ErrSegmentMissing means the encoder exited but its output file does not
// exist. The segment is lost; the loop keeps running.
var ErrSegmentMissing = errors.New("segment file missing after encoder exit")

// Config controls segmenting.
type Config struct {
	Folder       string
	MaxDuration  time.Duration
	PollInterval time.Duration
	Framerate    int
	Container    string
	// WaitTimeout bounds how long a closing session waits for its encoder.
	WaitTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxDuration <= 0 {
		c.MaxDuration = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Framerate <= 0 {
		c.Framerate = 25
	}
	if c.Container == "" {
		c.Container = "mp4"
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 10 * time.Second
	}
}

// Option customizes a Recorder.
type Option func(*Recorder)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithTicker replaces the idle-check ticker.
func WithTicker(newTicker func(time.Duration) (<-chan time.Time, func())) Option {
	return func(r *Recorder) { r.newTicker = newTicker }
}

// WithCatalog records segments in store.
func WithCatalog(store catalog.Store) Option {
	return func(r *Recorder) { r.catalog = store }
}

// WithEventLog appends received motion events to l.
func WithEventLog(l *EventLog) Option {
	return func(r *Recorder) { r.eventLog = l }
}

// Recorder owns every recording session. All session state is touched only
// from the Run goroutine.
type Recorder struct {
	cfg       Config
	enc       encoder.Encoder
	catalog   catalog.Store
	eventLog  *EventLog
	now       func() time.Time
	newTicker func(time.Duration) (<-chan time.Time, func())
	logger    zerolog.Logger

	sessions map[string]*session
}

// New builds a recorder writing below cfg.Folder.
func New(cfg Config, enc encoder.Encoder, opts ...Option) *Recorder {
	cfg.setDefaults()
	r := &Recorder{
		cfg:      cfg,
		enc:      enc,
		catalog:  catalog.Nop{},
		now:      time.Now,
		logger:   log.WithComponent("recorder"),
		sessions: make(map[string]*session),
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sessions returns the sources with an open session. Only meaningful from
// the Run goroutine or after Run returned.
func (r *Recorder) Sessions() []string {
	out := make([]string, 0, len(r.sessions))
	for src := range r.sessions {
		out = append(out, src)
	}
	return out
}

// Run multiplexes frames, motion events and the idle tick until ctx is done,
// frames is closed or a fatal error occurs. Every open session is closed
// before Run returns.
func (r *Recorder) Run(ctx context.Context, frames <-chan transport.Frame, evs <-chan events.MotionEvent) (err error) {
	tick, stop := r.newTicker(r.cfg.PollInterval)
	defer stop()
	defer func() {
		if cerr := r.closeAll(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()

	r.logger.Info().
		Str(log.FieldEvent, "recorder.started").
		Str(log.FieldPath, r.cfg.Folder).
		Dur("max_duration", r.cfg.MaxDuration).
		Dur("poll_interval", r.cfg.PollInterval).
		Msg("recorder loop started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if err := r.HandleFrame(ctx, f); err != nil {
				r.logger.Error().Err(err).Str(log.FieldSource, f.Source).Msg("fatal recorder error")
				return err
			}
		case ev, ok := <-evs:
			if !ok {
				evs = nil
				continue
			}
			r.HandleEvent(ev)
		case <-tick:
			r.ReclaimIdle(ctx)
		}
	}
}

// HandleFrame applies one frame to the session of its source. Only fatal
// errors are returned.
func (r *Recorder) HandleFrame(ctx context.Context, f transport.Frame) error {
	metrics.RecorderFramesTotal.WithLabelValues(f.Kind.String()).Inc()
	s := r.sessions[f.Source]
	now := r.now()

	switch f.Kind {
	case transport.KindStart:
		if s != nil {
			r.closeSession(ctx, s, reasonRestart)
		}
		ns, err := r.openSession(ctx, f.Source, now)
		if err != nil {
			return err
		}
		return r.write(ctx, ns, f.Payload, now)

	case transport.KindData:
		switch {
		case s == nil:
			ns, err := r.openSession(ctx, f.Source, now)
			if err != nil {
				return err
			}
			s = ns
		case now.Sub(s.started) >= r.cfg.MaxDuration:
			r.closeSession(ctx, s, reasonRotate)
			ns, err := r.openSession(ctx, f.Source, now)
			if err != nil {
				return err
			}
			s = ns
		}
		return r.write(ctx, s, f.Payload, now)

	case transport.KindEnd:
		if s != nil {
			r.closeSession(ctx, s, reasonEnd)
		}
		return nil

	default:
		return fmt.Errorf("%w: %d", transport.ErrUnknownFrameKind, f.Kind)
	}
}

// HandleEvent appends ev to the event log, subject to the flood limit.
func (r *Recorder) HandleEvent(ev events.MotionEvent) {
	logger := r.logger.With().Str(log.FieldSource, ev.Source).Logger()
	if r.eventLog == nil {
		metrics.IncRecorderEvent("ignored")
		return
	}
	if !r.eventLog.Allow(ev.Source, r.now()) {
		metrics.IncRecorderEvent("suppressed")
		logger.Debug().Msg("motion event suppressed by flood limit")
		return
	}
	if err := r.eventLog.Append(ev); err != nil {
		metrics.IncRecorderEvent("error")
		logger.Error().Err(err).Str(log.FieldPath, r.eventLog.Path()).Msg("event log append failed")
		return
	}
	metrics.IncRecorderEvent("logged")
	logger.Info().Str(log.FieldEvent, "recorder.motion_logged").Time("at", ev.Timestamp).Msg("motion event logged")
}

// ReclaimIdle closes sessions that received no frame for a full poll
// interval and are past the maximum segment duration.
func (r *Recorder) ReclaimIdle(ctx context.Context) {
	now := r.now()
	for _, s := range r.sessions {
		if now.Sub(s.lastFrame) >= r.cfg.PollInterval && now.Sub(s.started) >= r.cfg.MaxDuration {
			r.closeSession(ctx, s, reasonIdle)
		}
	}
}

func (r *Recorder) write(ctx context.Context, s *session, payload []byte, now time.Time) error {
	s.lastFrame = now
	if len(payload) == 0 {
		return nil
	}
	n, err := s.proc.Write(payload)
	s.bytes += int64(n)
	metrics.RecorderBytesTotal.WithLabelValues(s.source).Add(float64(n))
	if err == nil {
		return nil
	}
	if encoder.IsBrokenInput(err) {
		s.logger.Warn().Err(err).Str(log.FieldEvent, "recorder.session_aborted").Msg("encoder input broken, aborting session")
		s.aborted = err
		// The encoder may still be running after EINVAL.
		if kerr := s.proc.Kill(); kerr != nil {
			s.logger.Debug().Err(kerr).Msg("kill encoder")
		}
		r.closeSession(ctx, s, reasonBrokenInput)
		return nil
	}
	return fmt.Errorf("write to encoder for %s: %w", s.source, err)
}

func (r *Recorder) closeAll(ctx context.Context) error {
	var errs []error
	for _, s := range r.sessions {
		if err := r.closeSession(ctx, s, reasonShutdown); err != nil && !errors.Is(err, ErrSegmentMissing) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
