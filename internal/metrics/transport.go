// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campipe_frames_published_total",
		Help: "Total number of video frames handed to the broker by kind",
	}, []string{"kind"})

	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campipe_frames_dropped_total",
		Help: "Total number of video frames dropped by stage and reason (at-most-once delivery)",
	}, []string{"stage", "reason"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campipe_events_dropped_total",
		Help: "Total number of motion events dropped by stage and reason",
	}, []string{"stage", "reason"})
)

// IncFramePublished records a frame handed to the broker.
func IncFramePublished(kind string) {
	FramesPublishedTotal.WithLabelValues(kind).Inc()
}

// IncFrameDrop records a dropped frame with a concrete reason.
func IncFrameDrop(stage, reason string) {
	if stage == "" {
		stage = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	FramesDroppedTotal.WithLabelValues(stage, reason).Inc()
}

// IncEventDrop records a dropped motion event with a concrete reason.
func IncEventDrop(stage, reason string) {
	if stage == "" {
		stage = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	EventsDroppedTotal.WithLabelValues(stage, reason).Inc()
}
