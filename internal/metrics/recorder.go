// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecorderFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campipe_recorder_frames_total",
		Help: "Total frames received by the recorder by kind",
	}, []string{"kind"})

	RecorderBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campipe_recorder_bytes_total",
		Help: "Total payload bytes written to encoder processes by source",
	}, []string{"source"})

	RecorderSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "campipe_recorder_sessions_active",
		Help: "Number of open recording sessions",
	})

	RecorderSegmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campipe_recorder_segments_total",
		Help: "Total closed segments by result (complete, aborted, missing)",
	}, []string{"result"})

	RecorderClosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campipe_recorder_session_closes_total",
		Help: "Total session closes by reason",
	}, []string{"reason"})

	RecorderEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campipe_recorder_events_total",
		Help: "Total motion events received by the recorder by result",
	}, []string{"result"})

	ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campipe_proc_terminate_total",
		Help: "Process group termination signals by signal and result",
	}, []string{"signal", "result"})

	ProcWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campipe_proc_wait_total",
		Help: "Process wait outcomes after termination",
	}, []string{"result"})
)

// IncSegment records a closed segment.
func IncSegment(result string) {
	RecorderSegmentsTotal.WithLabelValues(result).Inc()
}

// IncSessionClose records why a session was closed.
func IncSessionClose(reason string) {
	RecorderClosesTotal.WithLabelValues(reason).Inc()
}

// IncRecorderEvent records what happened to a received motion event.
func IncRecorderEvent(result string) {
	RecorderEventsTotal.WithLabelValues(result).Inc()
}

// IncProcTerminate records a termination signal outcome.
func IncProcTerminate(signal, result string) {
	ProcTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records the wait outcome of a terminated process.
func IncProcWait(result string) {
	ProcWaitTotal.WithLabelValues(result).Inc()
}
