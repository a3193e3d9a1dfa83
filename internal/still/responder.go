// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package still serves captured still images to remote viewers in bounded
// chunks over an addressable request/response channel.
package still

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/metrics"
)

// Command is a still request type.
type Command string

const (
	CommandNew    Command = "NEW"
	CommandNext   Command = "NEXT"
	CommandEndAck Command = "ENDACK"
)

var (
	// ErrProtocol signals a request that does not fit the requester's session state.
	ErrProtocol = errors.New("still protocol violation")
	// ErrCapture signals that the camera could not produce a still.
	ErrCapture = errors.New("still capture failed")
)

// Capturer writes one encoded still image to w. Captures are serialized by
// the caller and may block for the duration of the exposure.
type Capturer interface {
	Capture(ctx context.Context, w io.Writer) error
}

// CapturerFunc adapts a function to Capturer.
type CapturerFunc func(ctx context.Context, w io.Writer) error

func (f CapturerFunc) Capture(ctx context.Context, w io.Writer) error { return f(ctx, w) }

type session struct {
	image   bytes.Buffer
	created time.Time
}

// Responder is the per-requester still transfer state machine. Its session
// map is owned by the single goroutine calling Handle.
type Responder struct {
	capturer  Capturer
	frameSize int
	sessions  map[string]*session
	logger    zerolog.Logger
	now       func() time.Time
}

// NewResponder returns a responder chunking images into frameSize payloads.
func NewResponder(capturer Capturer, frameSize int) *Responder {
	if frameSize <= 0 {
		frameSize = 4096
	}
	return &Responder{
		capturer:  capturer,
		frameSize: frameSize,
		sessions:  make(map[string]*session),
		logger:    log.WithComponent("still"),
		now:       time.Now,
	}
}

// FrameSize reports the chunk size; a shorter payload marks end of image.
func (r *Responder) FrameSize() int { return r.frameSize }

// Sessions reports the number of in-progress transfers.
func (r *Responder) Sessions() int { return len(r.sessions) }

// Handle advances the session of addr by one request and returns the payload
// to send back.
func (r *Responder) Handle(ctx context.Context, addr string, cmd Command) ([]byte, error) {
	payload, err := r.handle(ctx, addr, cmd)
	result := "ok"
	switch {
	case errors.Is(err, ErrProtocol):
		result = "protocol_error"
	case err != nil:
		result = "capture_error"
	}
	metrics.IncStillRequest(string(cmd), result)
	metrics.StillSessionsActive.Set(float64(len(r.sessions)))
	return payload, err
}

func (r *Responder) handle(ctx context.Context, addr string, cmd Command) ([]byte, error) {
	switch cmd {
	case CommandNew:
		r.logger.Info().Str(log.FieldRequester, addr).Msg("still requested")
		r.discard(addr)

		s := &session{created: r.now()}
		start := time.Now()
		err := r.capturer.Capture(ctx, &s.image)
		metrics.StillCaptureDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCapture, err)
		}
		r.sessions[addr] = s
		return r.next(s), nil

	case CommandNext:
		s, ok := r.sessions[addr]
		if !ok {
			return nil, fmt.Errorf("%w: NEXT from %s without an active still", ErrProtocol, addr)
		}
		return r.next(s), nil

	case CommandEndAck:
		s, ok := r.sessions[addr]
		if !ok {
			return nil, fmt.Errorf("%w: ENDACK from %s without an active still", ErrProtocol, addr)
		}
		r.discard(addr)
		r.logger.Info().
			Str(log.FieldRequester, addr).
			Dur("transfer", r.now().Sub(s.created)).
			Msg("still transfer acknowledged complete")
		return []byte{}, nil

	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrProtocol, cmd)
	}
}

func (r *Responder) next(s *session) []byte {
	chunk := s.image.Next(r.frameSize)
	out := make([]byte, len(chunk))
	copy(out, chunk)
	return out
}

func (r *Responder) discard(addr string) {
	if s, ok := r.sessions[addr]; ok {
		s.image.Reset()
		delete(r.sessions, addr)
	}
}
