// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package motion raises motion events from the encoder's per-macroblock
// motion vectors.
package motion

import (
	"math"
	"sync/atomic"

	"github.com/ManuGH/campipe/internal/metrics"
)

// Vector is the motion estimate of one macroblock.
type Vector struct {
	X   int8
	Y   int8
	SAD uint16
}

// Field is one frame's worth of vectors, row-major.
type Field struct {
	Rows    int
	Cols    int
	Vectors []Vector
}

// Magnitude returns the block magnitude clamped to the 8-bit range.
func (v Vector) Magnitude() uint8 {
	m := math.Sqrt(float64(v.X)*float64(v.X) + float64(v.Y)*float64(v.Y))
	if m > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(m)
}

// Thresholds parameterise the detector.
type Thresholds struct {
	Magnitude uint8 // a block moves when its magnitude exceeds this
	Blocks    int   // motion is raised when moving blocks exceed this
}

// Analyzer turns a vector field into a boolean event.
type Analyzer interface {
	Analyze(f Field) bool
}

// Detector is a stateless vector threshold detector. Thresholds may be
// replaced concurrently with Analyze.
type Detector struct {
	thresholds atomic.Pointer[Thresholds]
}

var _ Analyzer = (*Detector)(nil)

// NewDetector returns a detector using t.
func NewDetector(t Thresholds) *Detector {
	d := &Detector{}
	d.SetThresholds(t)
	return d
}

// SetThresholds swaps the active thresholds.
func (d *Detector) SetThresholds(t Thresholds) {
	d.thresholds.Store(&t)
}

// Thresholds returns the active thresholds.
func (d *Detector) Thresholds() Thresholds {
	return *d.thresholds.Load()
}

// Analyze reports whether more than Blocks blocks move faster than Magnitude.
// It keeps no state between fields.
func (d *Detector) Analyze(f Field) bool {
	metrics.MotionFieldsAnalyzedTotal.Inc()
	t := d.thresholds.Load()
	return CountMoving(f, t.Magnitude) > t.Blocks
}

// CountMoving counts blocks whose magnitude exceeds threshold.
func CountMoving(f Field, threshold uint8) int {
	n := 0
	for _, v := range f.Vectors {
		if v.Magnitude() > threshold {
			n++
		}
	}
	return n
}
