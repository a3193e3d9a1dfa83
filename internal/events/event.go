// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package events broadcasts motion events from camera nodes to recorders.
// Delivery is fire-and-forget: no acknowledgement crosses the network and
// slow subscribers simply miss events.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// KindMotion is the only event kind raised today.
const KindMotion = "MOTION"

// DefaultTopic is the event channel topic.
const DefaultTopic = "campipe.events"

var errInvalidEvent = errors.New("invalid motion event")

// MotionEvent is an ephemeral notification; it is persisted only as an
// event log line on the recorder.
type MotionEvent struct {
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

type wireEvent struct {
	Source    string `json:"source"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

// Validate checks the required fields.
func (e MotionEvent) Validate() error {
	if e.Source == "" {
		return fmt.Errorf("%w: source is required", errInvalidEvent)
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: kind is required", errInvalidEvent)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", errInvalidEvent)
	}
	return nil
}

// Marshal encodes e with an ISO-8601 timestamp.
func Marshal(e MotionEvent) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(wireEvent{
		Source:    e.Source,
		Kind:      e.Kind,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a wire event.
func Unmarshal(data []byte) (MotionEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return MotionEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return MotionEvent{}, fmt.Errorf("unmarshal event timestamp: %w", err)
	}
	e := MotionEvent{Source: w.Source, Kind: w.Kind, Timestamp: ts}
	if err := e.Validate(); err != nil {
		return MotionEvent{}, err
	}
	return e, nil
}
