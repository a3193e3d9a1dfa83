// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/campipe/internal/catalog"
	"github.com/ManuGH/campipe/internal/encoder"
	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/metrics"
	"github.com/ManuGH/campipe/internal/telemetry"
)

var tracer = telemetry.Tracer("campipe/recorder")

const (
	reasonRestart     = "restart"
	reasonRotate      = "rotate"
	reasonEnd         = "end"
	reasonIdle        = "idle"
	reasonBrokenInput = "broken_input"
	reasonShutdown    = "shutdown"
)

// session is one in-progress segment.
type session struct {
	source    string
	path      string
	proc      encoder.Process
	started   time.Time
	lastFrame time.Time
	bytes     int64
	catalogID string
	aborted   error
	logger    zerolog.Logger
	span      trace.Span
}

func (r *Recorder) openSession(ctx context.Context, source string, now time.Time) (*session, error) {
	dir := SegmentDir(r.cfg.Folder, now)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create segment folder %s: %w", dir, err)
	}
	path, err := uniquePath(SegmentPath(r.cfg.Folder, source, now, r.cfg.Container))
	if err != nil {
		return nil, fmt.Errorf("segment path: %w", err)
	}

	proc, err := r.enc.Start(ctx, encoder.Segment{Source: source, Path: path, Framerate: r.cfg.Framerate})
	if err != nil {
		return nil, fmt.Errorf("start encoder for %s: %w", source, err)
	}

	s := &session{
		source:    source,
		path:      path,
		proc:      proc,
		started:   now,
		lastFrame: now,
		logger: r.logger.With().
			Str(log.FieldSource, source).
			Str(log.FieldPath, path).
			Int(log.FieldPID, proc.PID()).
			Logger(),
	}

	_, s.span = tracer.Start(ctx, "recorder.segment",
		trace.WithTimestamp(now),
		trace.WithAttributes(telemetry.SegmentAttributes(source, path)...),
	)

	id, err := r.catalog.Open(ctx, source, path, now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("segment not recorded in catalog")
	}
	s.catalogID = id

	r.sessions[source] = s
	metrics.RecorderSessionsActive.Inc()
	s.logger.Info().Str(log.FieldEvent, "recorder.segment_opened").Msg("segment opened")
	return s, nil
}

// closeSession ends input, waits for the encoder and checks the output file.
// The session is always removed. A missing output yields ErrSegmentMissing.
func (r *Recorder) closeSession(ctx context.Context, s *session, reason string) error {
	delete(r.sessions, s.source)
	metrics.RecorderSessionsActive.Dec()
	metrics.IncSessionClose(reason)

	if err := s.proc.CloseInput(); err != nil && s.aborted == nil {
		s.logger.Debug().Err(err).Msg("close encoder input")
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.WaitTimeout)
	waitErr := s.proc.Wait(waitCtx)
	cancel()

	status, statusReason := catalog.StatusComplete, ""
	var result error
	switch _, statErr := os.Stat(s.path); {
	case errors.Is(statErr, fs.ErrNotExist):
		status, statusReason = catalog.StatusMissing, "output file missing"
		result = fmt.Errorf("%w: %s", ErrSegmentMissing, s.path)
		s.logger.Error().
			Err(result).
			AnErr("wait_error", waitErr).
			Str(log.FieldEvent, "recorder.segment_missing").
			Str(log.FieldReason, reason).
			Msg("segment lost")
	case statErr != nil:
		status, statusReason = catalog.StatusAborted, statErr.Error()
		result = fmt.Errorf("stat segment %s: %w", s.path, statErr)
		s.logger.Error().Err(result).Msg("segment not verifiable")
	case s.aborted != nil:
		status, statusReason = catalog.StatusAborted, s.aborted.Error()
	case waitErr != nil:
		status, statusReason = catalog.StatusAborted, waitErr.Error()
		s.logger.Warn().Err(waitErr).Msg("encoder exited with error")
	}
	metrics.IncSegment(string(status))

	ended := r.now()
	if s.catalogID != "" {
		if err := r.catalog.Finish(ctx, s.catalogID, ended, s.bytes, status, statusReason); err != nil {
			s.logger.Warn().Err(err).Msg("catalog update failed")
		}
	}

	s.span.SetAttributes(telemetry.SegmentResultAttributes(s.bytes, string(status), reason)...)
	if status != catalog.StatusComplete {
		s.span.SetStatus(codes.Error, statusReason)
	}
	s.span.End(trace.WithTimestamp(ended))

	s.logger.Info().
		Str(log.FieldEvent, "recorder.segment_closed").
		Str(log.FieldReason, reason).
		Str("status", string(status)).
		Int64(log.FieldBytes, s.bytes).
		Dur("duration", ended.Sub(s.started)).
		Msg("segment closed")
	return result
}
