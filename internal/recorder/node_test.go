// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/campipe/internal/catalog"
	"github.com/ManuGH/campipe/internal/config"
	"github.com/ManuGH/campipe/internal/encoder"
)

func TestNewEncoderDefaultsToFFmpeg(t *testing.T) {
	enc := NewEncoder(config.EncoderConfig{Binary: "ffmpeg", KillGrace: time.Second})
	ff, ok := enc.(*encoder.FFmpeg)
	require.True(t, ok)
	args := ff.Args(encoder.Segment{Path: "/rec/a.mp4", Framerate: 25})
	assert.Equal(t, "/rec/a.mp4", args[len(args)-1])
}

func TestNewEncoderUsesReplacementCommand(t *testing.T) {
	enc := NewEncoder(config.EncoderConfig{Command: []string{"sh", "-c", `cat > "$0"`}})
	cmd, ok := enc.(*encoder.Command)
	require.True(t, ok)
	assert.Equal(t, []string{"-c", `cat > "$0"`}, cmd.Args)
}

func TestRunNodeWithCatalogAndNoHealthManager(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Recorder.Folder = filepath.Join(dir, "rec")
	cfg.Recorder.CatalogPath = filepath.Join(dir, "catalog.sqlite")
	cfg.Recorder.Sources = nil
	cfg.Recorder.EventLog.Path = ""

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, RunNode(ctx, cfg, nil))

	store, err := catalog.NewSqliteStore(context.Background(), cfg.Recorder.CatalogPath)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Verify(context.Background()))
}
