// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/metrics"
)

// Wire headers carried by every video message.
const (
	HeaderSource = "Campipe-Source"
	HeaderKind   = "Campipe-Kind"
)

// DefaultSubject is the video channel subject.
const DefaultSubject = "campipe.video"

// EncodeMsg builds the wire message for f.
func EncodeMsg(subject string, f Frame) *nats.Msg {
	m := nats.NewMsg(subject)
	m.Header.Set(HeaderSource, f.Source)
	m.Header.Set(HeaderKind, f.Kind.String())
	m.Data = f.Payload
	return m
}

// DecodeMsg parses a wire message back into a Frame.
func DecodeMsg(m *nats.Msg) (Frame, error) {
	if m == nil {
		return Frame{}, errors.New("decode frame: nil message")
	}
	source := m.Header.Get(HeaderSource)
	if source == "" {
		return Frame{}, errors.New("decode frame: missing source header")
	}
	kind, err := ParseFrameKind(m.Header.Get(HeaderKind))
	if err != nil {
		return Frame{}, fmt.Errorf("decode frame from %s: %w", source, err)
	}
	payload := m.Data
	if payload == nil {
		payload = []byte{}
	}
	return Frame{Source: source, Kind: kind, Payload: payload}, nil
}

// NATSPublisher publishes frames on a core NATS subject. Core NATS is
// at-most-once: messages go undelivered to slow or absent subscribers.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher returns a publisher for subject on nc.
func NewNATSPublisher(nc *nats.Conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{nc: nc, subject: subject}
}

// Publish hands f to the client without waiting for the broker. Only a closed
// connection is reported; buffer overflows while reconnecting are counted as drops.
func (p *NATSPublisher) Publish(f Frame) error {
	err := p.nc.PublishMsg(EncodeMsg(p.subject, f))
	switch {
	case err == nil:
		metrics.IncFramePublished(f.Kind.String())
		return nil
	case errors.Is(err, nats.ErrConnectionClosed):
		return err
	case errors.Is(err, nats.ErrReconnectBufExceeded):
		metrics.IncFrameDrop("publish", "reconnect_buffer")
	case errors.Is(err, nats.ErrMaxPayload):
		metrics.IncFrameDrop("publish", "max_payload")
	default:
		metrics.IncFrameDrop("publish", "error")
	}
	log.L().Debug().Err(err).Str(log.FieldSource, f.Source).Msg("video frame dropped")
	return nil
}

// Subscribe forwards decoded frames from subject into out without blocking.
// When out is full the frame is dropped. Delivery order is preserved per
// subscription.
func Subscribe(nc *nats.Conn, subject string, out chan<- Frame) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	logger := log.WithComponent("transport")
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		f, err := DecodeMsg(m)
		if err != nil {
			metrics.IncFrameDrop("subscribe", "decode")
			logger.Warn().Err(err).Str(log.FieldSubject, m.Subject).Msg("undecodable video message")
			return
		}
		select {
		case out <- f:
		default:
			metrics.IncFrameDrop("subscribe", "full")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}
