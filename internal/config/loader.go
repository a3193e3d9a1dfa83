// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	lookupHost func() (string, error)
}

// NewLoader creates a loader. An empty path means ENV and defaults only.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath, lookupHost: os.Hostname}
}

// Path returns the config file path.
func (l *Loader) Path() string { return l.configPath }

// Load applies defaults, the file and the environment, then validates.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	mergeEnv(&cfg)

	if cfg.Camera.Name == "" {
		host, err := l.lookupHost()
		if err != nil {
			return cfg, fmt.Errorf("resolve hostname: %w", err)
		}
		cfg.Camera.Name = host
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the YAML file over cfg with strict parsing.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data, cfg)
}

func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrTrailingContent
	}
	return nil
}

// mergeEnv overrides cfg with CAMPIPE_* variables.
func mergeEnv(cfg *Config) {
	cfg.Log.Level = ParseString(EnvPrefix+"LOG_LEVEL", cfg.Log.Level)

	n := &cfg.Network
	n.Host = ParseString(EnvPrefix+"NETWORK_HOST", n.Host)
	n.FrameSize = ParseInt(EnvPrefix+"NET_FRAME_SIZE", n.FrameSize)
	n.VideoPort = ParseInt(EnvPrefix+"VIDEO_PORT", n.VideoPort)
	n.StillPort = ParseInt(EnvPrefix+"STILL_PORT", n.StillPort)
	n.EventPort = ParseInt(EnvPrefix+"EVENT_PORT", n.EventPort)

	c := &cfg.Camera
	c.Name = ParseString(EnvPrefix+"CAMERA_NAME", c.Name)
	c.VideoCommand = ParseString(EnvPrefix+"VIDEO_COMMAND", c.VideoCommand)
	c.StillCommand = ParseString(EnvPrefix+"STILL_COMMAND", c.StillCommand)
	c.Bitrate = ParseInt(EnvPrefix+"BITRATE", c.Bitrate)
	c.Framerate = ParseInt(EnvPrefix+"FRAMERATE", c.Framerate)
	if raw := ParseString(EnvPrefix+"RESOLUTION", ""); raw != "" {
		if r, err := ParseResolution(raw); err == nil {
			c.Resolution = r
		}
	}
	c.VFlip = ParseBool(EnvPrefix+"VFLIP", c.VFlip)
	c.HFlip = ParseBool(EnvPrefix+"HFLIP", c.HFlip)
	c.Annotation = ParseString(EnvPrefix+"ANNOTATION", c.Annotation)

	m := &cfg.Motion
	m.Enabled = ParseBool(EnvPrefix+"MOTION_ENABLED", m.Enabled)
	m.MagnitudeThreshold = ParseInt(EnvPrefix+"MAGNITUDE_THRESHOLD", m.MagnitudeThreshold)
	m.BlockThreshold = ParseInt(EnvPrefix+"BLOCK_THRESHOLD", m.BlockThreshold)
	m.VectorsPath = ParseString(EnvPrefix+"VECTORS_PATH", m.VectorsPath)

	r := &cfg.Recorder
	r.Folder = ParseString(EnvPrefix+"RECORDING_FOLDER", r.Folder)
	r.MaxSegmentDuration = ParseDuration(EnvPrefix+"MAX_SEGMENT_DURATION", r.MaxSegmentDuration)
	r.PollInterval = ParseDuration(EnvPrefix+"POLL_INTERVAL", r.PollInterval)
	r.Sources = ParseList(EnvPrefix+"SOURCES", r.Sources)
	r.CatalogPath = ParseString(EnvPrefix+"CATALOG_PATH", r.CatalogPath)
	r.EventLog.Path = ParseString(EnvPrefix+"EVENT_LOG", r.EventLog.Path)
	r.EventLog.Format = ParseString(EnvPrefix+"EVENT_LOG_FORMAT", r.EventLog.Format)
	r.Encoder.Binary = ParseString(EnvPrefix+"ENCODER_BINARY", r.Encoder.Binary)

	s := &cfg.Stillgrab
	s.OutputDir = ParseString(EnvPrefix+"STILL_OUTPUT_DIR", s.OutputDir)
	s.ReloadDelay = ParseDuration(EnvPrefix+"RELOAD_DELAY", s.ReloadDelay)
	s.Cameras = ParseList(EnvPrefix+"CAMERAS", s.Cameras)

	cfg.Health.Listen = ParseString(EnvPrefix+"HEALTH_LISTEN", cfg.Health.Listen)

	t := &cfg.Telemetry
	t.Enabled = ParseBool(EnvPrefix+"TELEMETRY_ENABLED", t.Enabled)
	t.Exporter = ParseString(EnvPrefix+"TELEMETRY_EXPORTER", t.Exporter)
	t.Endpoint = ParseString(EnvPrefix+"TELEMETRY_ENDPOINT", t.Endpoint)
}
