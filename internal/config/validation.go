// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/campipe/internal/validate"
)

// Validate checks the complete configuration and reports every problem.
func Validate(cfg Config) error {
	v := validate.New()

	v.OneOf("log.level", cfg.Log.Level, validate.LogLevels)

	n := cfg.Network
	v.Range("network.net_frame_size", n.FrameSize, 1, 1<<20)
	v.Port("network.video_port", n.VideoPort)
	v.Port("network.still_port", n.StillPort)
	v.Port("network.event_port", n.EventPort)
	if n.MaxPayload < n.FrameSize {
		v.AddError("network.max_payload", "must be at least net_frame_size", n.MaxPayload)
	}

	c := cfg.Camera
	v.NotEmpty("camera.video_command", c.VideoCommand)
	v.NotEmpty("camera.still_command", c.StillCommand)
	v.Range("camera.framerate", c.Framerate, 1, 120)
	v.Range("camera.bitrate", c.Bitrate, 1, 50000000)
	v.Range("camera.resolution.width", c.Resolution.Width, 16, 4096)
	v.Range("camera.resolution.height", c.Resolution.Height, 16, 4096)
	v.Template("camera.annotation", c.Annotation)

	m := cfg.Motion
	v.Range("motion.magnitude_threshold", m.MagnitudeThreshold, 0, 255)
	v.Range("motion.block_threshold", m.BlockThreshold, 0, 1<<16)
	if m.Enabled {
		v.NotEmpty("motion.vectors_path", m.VectorsPath)
	}

	r := cfg.Recorder
	v.NotEmpty("recorder.recording_folder", r.Folder)
	v.MinDuration("recorder.max_segment_duration", r.MaxSegmentDuration, time.Second)
	v.MinDuration("recorder.poll_interval", r.PollInterval, 10*time.Millisecond)
	v.Range("recorder.framerate", r.Framerate, 1, 120)
	v.FileName("recorder.container", r.Container)
	v.Range("recorder.frame_queue", r.FrameQueue, 1, 1<<16)
	v.Template("recorder.event_log.format", r.EventLog.Format)
	v.MinDuration("recorder.encoder.wait_timeout", r.Encoder.WaitTimeout, 10*time.Millisecond)
	if len(r.Encoder.Command) == 0 {
		v.NotEmpty("recorder.encoder.binary", r.Encoder.Binary)
	}
	for _, src := range r.Sources {
		v.NotEmpty("recorder.sources", src)
	}

	s := cfg.Stillgrab
	v.MinDuration("stillgrab.reload_delay", s.ReloadDelay, 10*time.Millisecond)
	v.MinDuration("stillgrab.request_timeout", s.RequestTimeout, 10*time.Millisecond)

	v.ListenAddr("health.listen", cfg.Health.Listen)

	t := cfg.Telemetry
	if t.Enabled {
		v.OneOf("telemetry.exporter", t.Exporter, validate.Exporters)
		v.NotEmpty("telemetry.endpoint", t.Endpoint)
		if t.SamplingRate < 0 || t.SamplingRate > 1 {
			v.AddError("telemetry.sampling_rate", "must be between 0 and 1", t.SamplingRate)
		}
	}

	return v.Err()
}
