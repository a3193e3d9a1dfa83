// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/metrics"
)

// Notifier publishes motion events on core NATS (JetStream disabled), which
// gives at-most-once delivery without publisher backpressure.
type Notifier struct {
	publisher message.Publisher
	topic     string
	logger    zerolog.Logger
}

// NewNotifier connects a publisher to the broker at url.
func NewNotifier(url, topic string) (*Notifier, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	logger := log.WithComponent("events")

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL: url,
		NatsOptions: []natsgo.Option{
			natsgo.Name("campipe-event-publisher"),
			natsgo.RetryOnFailedConnect(true),
			natsgo.MaxReconnects(-1),
			natsgo.ReconnectWait(2 * time.Second),
		},
		Marshaler: &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{Disabled: true},
	}, log.NewWatermillAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("create event publisher: %w", err)
	}

	return &Notifier{publisher: pub, topic: topic, logger: logger}, nil
}

// Publish broadcasts one event. Errors are logged and counted here so the
// detector never waits on or reacts to delivery.
func (n *Notifier) Publish(_ context.Context, source, kind string, ts time.Time) {
	ev := MotionEvent{Source: source, Kind: kind, Timestamp: ts}
	payload, err := Marshal(ev)
	if err != nil {
		metrics.IncMotionEvent("invalid")
		n.logger.Warn().Err(err).Msg("motion event not published")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("source", source)
	msg.Metadata.Set("kind", kind)

	if err := n.publisher.Publish(n.topic, msg); err != nil {
		metrics.IncMotionEvent("publish_failed")
		n.logger.Warn().Err(err).Str(log.FieldSource, source).Msg("motion event dropped")
		return
	}
	metrics.IncMotionEvent("published")
	n.logger.Info().Str(log.FieldSource, source).Str(log.FieldEvent, "motion.detected").Msg("motion event published")
}

// Close releases the broker connection.
func (n *Notifier) Close() error {
	return n.publisher.Close()
}
