// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package still

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/ManuGH/campipe/internal/log"
)

// Wire headers of the still channel.
const (
	HeaderRequester = "Campipe-Requester"
	HeaderError     = "Campipe-Error"
)

// DefaultSubject is the still request subject.
const DefaultSubject = "campipe.still"

const requestQueue = 64

// Serve answers still requests on subject until ctx is done. Requests are
// handled one at a time: a capture stalls the queue behind it.
func Serve(ctx context.Context, nc *nats.Conn, subject string, r *Responder) error {
	if subject == "" {
		subject = DefaultSubject
	}
	logger := log.WithComponent("still")

	msgs := make(chan *nats.Msg, requestQueue)
	sub, err := nc.ChanSubscribe(subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	logger.Info().Str(log.FieldSubject, subject).Int(log.FieldFrameSize, r.FrameSize()).Msg("serving still requests")

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-msgs:
			if err := respond(ctx, m, r); err != nil {
				logger.Warn().Err(err).Msg("still reply failed")
			}
		}
	}
}

func respond(ctx context.Context, m *nats.Msg, r *Responder) error {
	logger := log.WithComponent("still")
	if m.Reply == "" {
		return errors.New("still request without reply subject")
	}
	addr := ""
	if m.Header != nil {
		addr = m.Header.Get(HeaderRequester)
	}
	cmd := Command(strings.TrimSpace(string(m.Data)))

	reply := nats.NewMsg(m.Reply)
	var (
		payload []byte
		err     error
	)
	if addr == "" {
		err = fmt.Errorf("%w: missing requester", ErrProtocol)
	} else {
		payload, err = r.Handle(log.ContextWithRequester(ctx, addr), addr, cmd)
	}

	switch {
	case err == nil:
		reply.Data = payload
	case errors.Is(err, ErrProtocol):
		reply.Header.Set(HeaderError, "protocol")
		logger.Warn().Err(err).Str(log.FieldRequester, addr).Msg("still protocol violation")
	default:
		reply.Header.Set(HeaderError, "capture")
		logger.Error().Err(err).Str(log.FieldRequester, addr).Msg("still capture failed")
	}
	return m.RespondMsg(reply)
}
