// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration. Each binary reads the sections it
// needs.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Network   NetworkConfig   `yaml:"network"`
	Camera    CameraConfig    `yaml:"camera"`
	Motion    MotionConfig    `yaml:"motion"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Stillgrab StillgrabConfig `yaml:"stillgrab"`
	Health    HealthConfig    `yaml:"health"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// NetworkConfig describes the three camera channels. Ports may coincide;
// one broker serves each distinct port.
type NetworkConfig struct {
	Host         string        `yaml:"host"`
	FrameSize    int           `yaml:"net_frame_size"`
	VideoPort    int           `yaml:"video_port"`
	StillPort    int           `yaml:"still_port"`
	EventPort    int           `yaml:"event_port"`
	MaxPayload   int           `yaml:"max_payload"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// Resolution is WIDTHxHEIGHT.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string { return fmt.Sprintf("%dx%d", r.Width, r.Height) }

// ParseResolution parses "1280x720".
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("resolution %q: want WIDTHxHEIGHT", s)
	}
	wi, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolution %q: %w", s, err)
	}
	hi, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolution %q: %w", s, err)
	}
	return Resolution{Width: wi, Height: hi}, nil
}

// UnmarshalYAML accepts the WIDTHxHEIGHT form.
func (r *Resolution) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseResolution(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Resolution) MarshalYAML() (any, error) { return r.String(), nil }

type CameraConfig struct {
	// Name is the source id stamped on frames and events. Defaults to the
	// hostname.
	Name         string     `yaml:"name"`
	VideoCommand string     `yaml:"video_command"`
	VideoArgs    []string   `yaml:"video_args"`
	StillCommand string     `yaml:"still_command"`
	StillArgs    []string   `yaml:"still_args"`
	Bitrate      int        `yaml:"bitrate"`
	Framerate    int        `yaml:"framerate"`
	Resolution   Resolution `yaml:"resolution"`
	VFlip        bool       `yaml:"vflip"`
	HFlip        bool       `yaml:"hflip"`
	// Annotation is a text/template with .Hostname, .Time (fixed at capture
	// start) and .Clock (live, expanded by the capture tool per frame).
	Annotation           string        `yaml:"annotation"`
	AnnotationTimeLayout string        `yaml:"annotation_time_layout"`
	KillGrace            time.Duration `yaml:"kill_grace"`
}

type MotionConfig struct {
	Enabled            bool   `yaml:"enabled"`
	MagnitudeThreshold int    `yaml:"magnitude_threshold"`
	BlockThreshold     int    `yaml:"block_threshold"`
	VectorsPath        string `yaml:"vectors_path"`
}

type EventLogConfig struct {
	Path        string        `yaml:"path"`
	Format      string        `yaml:"format"`
	MinInterval time.Duration `yaml:"min_interval"`
}

type EncoderConfig struct {
	Binary    string   `yaml:"binary"`
	ExtraArgs []string `yaml:"extra_args"`
	// Command replaces ffmpeg entirely; the segment path is appended.
	Command     []string      `yaml:"command"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	KillGrace   time.Duration `yaml:"kill_grace"`
}

type RecorderConfig struct {
	Folder             string         `yaml:"recording_folder"`
	MaxSegmentDuration time.Duration  `yaml:"max_segment_duration"`
	PollInterval       time.Duration  `yaml:"poll_interval"`
	Framerate          int            `yaml:"framerate"`
	Container          string         `yaml:"container"`
	Sources            []string       `yaml:"sources"`
	CatalogPath        string         `yaml:"catalog_path"`
	FrameQueue         int            `yaml:"frame_queue"`
	EventLog           EventLogConfig `yaml:"event_log"`
	Encoder            EncoderConfig  `yaml:"encoder"`
}

type StillgrabConfig struct {
	OutputDir      string        `yaml:"output_dir"`
	ReloadDelay    time.Duration `yaml:"reload_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Cameras        []string      `yaml:"cameras"`
}

type HealthConfig struct {
	Listen string `yaml:"listen"`
}

// TelemetryConfig controls OTLP tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Network: NetworkConfig{
			Host:         "0.0.0.0",
			FrameSize:    4096,
			VideoPort:    5555,
			StillPort:    5556,
			EventPort:    5557,
			MaxPayload:   1 << 20,
			ReadyTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			VideoCommand:         "raspivid",
			StillCommand:         "raspistill",
			StillArgs:            []string{"-o", "-", "-t", "1", "-e", "jpg"},
			Bitrate:              1000000,
			Framerate:            25,
			Resolution:           Resolution{Width: 1280, Height: 720},
			Annotation:           "{{.Hostname}} {{.Clock}}",
			AnnotationTimeLayout: "2006-01-02 15:04:05",
			KillGrace:            2 * time.Second,
		},
		Motion: MotionConfig{
			Enabled:            true,
			MagnitudeThreshold: 60,
			BlockThreshold:     10,
			VectorsPath:        "/tmp/campipe-motion.vec",
		},
		Recorder: RecorderConfig{
			Folder:             "recordings",
			MaxSegmentDuration: 5 * time.Minute,
			PollInterval:       5 * time.Second,
			Framerate:          25,
			Container:          "mp4",
			FrameQueue:         256,
			EventLog: EventLogConfig{
				Path:   "recordings/events.log",
				Format: "{{.Timestamp}} {{.Source}} {{.Kind}}",
			},
			Encoder: EncoderConfig{
				Binary:      "ffmpeg",
				WaitTimeout: 10 * time.Second,
				KillGrace:   2 * time.Second,
			},
		},
		Stillgrab: StillgrabConfig{
			OutputDir:      "stills",
			ReloadDelay:    2 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Health: HealthConfig{Listen: ":9090"},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
