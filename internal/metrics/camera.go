// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StillRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campipe_still_requests_total",
		Help: "Total still image requests by command and result",
	}, []string{"command", "result"})

	StillCaptureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "campipe_still_capture_duration_seconds",
		Help:    "Duration of synchronous still captures",
		Buckets: prometheus.ExponentialBuckets(0.05, 2.0, 8), // 50ms to ~6s
	})

	StillSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "campipe_still_sessions_active",
		Help: "Number of in-progress still transfers",
	})

	MotionFieldsAnalyzedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campipe_motion_fields_analyzed_total",
		Help: "Total motion vector fields analysed",
	})

	MotionEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campipe_motion_events_total",
		Help: "Total motion events raised by publish result",
	}, []string{"result"})
)

// IncStillRequest records a handled still request.
func IncStillRequest(command, result string) {
	StillRequestsTotal.WithLabelValues(command, result).Inc()
}

// IncMotionEvent records a raised motion event.
func IncMotionEvent(result string) {
	MotionEventsTotal.WithLabelValues(result).Inc()
}
