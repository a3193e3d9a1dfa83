// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ManuGH/campipe/internal/config"
	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/motion"
)

// openVectors opens the motion vector stream. A FIFO is opened read-write
// so the open does not block waiting for the capture process and Close
// interrupts a pending read.
func openVectors(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	flag := os.O_RDONLY
	if info.Mode()&fs.ModeNamedPipe != 0 {
		flag = os.O_RDWR
	}
	return os.OpenFile(path, flag, 0)
}

// MotionWatcher feeds motion vector fields to a detector and raises an
// event for every field the detector flags.
type MotionWatcher struct {
	Path     string
	Rows     int
	Cols     int
	Detector *motion.Detector
	OnMotion func(time.Time)
	now      func() time.Time
}

// NewMotionWatcher sizes the vector grid from the capture resolution.
func NewMotionWatcher(cfg config.Config, d *motion.Detector, onMotion func(time.Time)) *MotionWatcher {
	rows, cols := motion.Grid(cfg.Camera.Resolution.Width, cfg.Camera.Resolution.Height)
	return &MotionWatcher{
		Path:     cfg.Motion.VectorsPath,
		Rows:     rows,
		Cols:     cols,
		Detector: d,
		OnMotion: onMotion,
		now:      time.Now,
	}
}

// Run reads vectors until ctx ends or the stream does.
func (m *MotionWatcher) Run(ctx context.Context) error {
	logger := log.WithComponent("motion").With().Str(log.FieldPath, m.Path).Logger()

	f, err := openVectors(m.Path)
	if err != nil {
		return fmt.Errorf("open motion vectors: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = f.Close() })
	defer func() {
		if stop() {
			_ = f.Close()
		}
	}()

	logger.Info().Int("rows", m.Rows).Int("cols", m.Cols).Msg("motion detection started")
	err = motion.Run(ctx, motion.NewReader(f, m.Rows, m.Cols), m.Detector, func() {
		m.OnMotion(m.now())
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
