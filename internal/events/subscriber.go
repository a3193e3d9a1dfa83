// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"
	"fmt"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/metrics"
)

// Subscriber receives motion events from one camera node.
type Subscriber struct {
	subscriber message.Subscriber
	topic      string
	url        string
}

// NewSubscriber connects to the event broker at url.
func NewSubscriber(url, topic string) (*Subscriber, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	logger := log.WithComponent("events").With().Str(log.FieldBrokerURL, url).Logger()

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		SubscribersCount: 1,
		AckWaitTimeout:   5 * time.Second,
		CloseTimeout:     5 * time.Second,
		NatsOptions: []natsgo.Option{
			natsgo.Name("campipe-event-subscriber"),
			natsgo.RetryOnFailedConnect(true),
			natsgo.MaxReconnects(-1),
			natsgo.ReconnectWait(2 * time.Second),
		},
		Unmarshaler: &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, log.NewWatermillAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("create event subscriber: %w", err)
	}
	return &Subscriber{subscriber: sub, topic: topic, url: url}, nil
}

// Forward delivers decoded events into out until ctx is done. Every message
// is acked on receipt; when out is full the event is dropped.
func (s *Subscriber) Forward(ctx context.Context, out chan<- MotionEvent) error {
	logger := log.WithComponent("events").With().Str(log.FieldBrokerURL, s.url).Logger()

	msgs, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			msg.Ack()
			ev, err := Unmarshal(msg.Payload)
			if err != nil {
				metrics.IncEventDrop("subscribe", "decode")
				logger.Warn().Err(err).Msg("undecodable motion event")
				continue
			}
			select {
			case out <- ev:
			default:
				metrics.IncEventDrop("subscribe", "full")
			}
		}
	}
}

// Close releases the broker connection.
func (s *Subscriber) Close() error {
	return s.subscriber.Close()
}
