// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stillgrab keeps a current JPEG of every camera on disk and logs
// their motion events.
package stillgrab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/metrics"
	"github.com/ManuGH/campipe/internal/recorder"
	"github.com/ManuGH/campipe/internal/resilience"
	"github.com/ManuGH/campipe/internal/telemetry"
)

var tracer = telemetry.Tracer("campipe/stillgrab")

// Fetcher returns one still image.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Grabber periodically fetches a still from one camera and replaces
// <OutputDir>/<Name>.jpg with it.
type Grabber struct {
	Name           string
	Fetcher        Fetcher
	OutputDir      string
	ReloadDelay    time.Duration
	RequestTimeout time.Duration
	// Breaker skips grabs from a camera that keeps failing. Optional.
	Breaker *resilience.CircuitBreaker
}

// Path is where the current still is kept.
func (g *Grabber) Path() string {
	return filepath.Join(g.OutputDir, recorder.SanitizeSource(g.Name)+".jpg")
}

// Grab fetches and stores a single still.
func (g *Grabber) Grab(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "stillgrab.grab")
	span.SetAttributes(attribute.String(telemetry.SourceKey, g.Name))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "grab failed")
		}
		span.End()
	}()

	if g.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.RequestTimeout)
		defer cancel()
	}
	img, err := g.Fetcher.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch still from %s: %w", g.Name, err)
	}
	span.SetAttributes(telemetry.StillAttributes("", len(img))...)
	return writeStill(ctx, g.Path(), img)
}

// Run grabs every ReloadDelay until ctx is done. Failed grabs are logged
// and retried on the next tick; the previous still stays in place. While
// the breaker is open ticks are skipped.
func (g *Grabber) Run(ctx context.Context) error {
	logger := log.WithComponent("stillgrab").With().Str(log.FieldSource, g.Name).Logger()
	if err := os.MkdirAll(g.OutputDir, 0o750); err != nil {
		return fmt.Errorf("create still dir: %w", err)
	}

	delay := g.ReloadDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		err := g.grabOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, resilience.ErrCircuitOpen):
			metrics.IncStillGrab(g.Name, "skipped")
		case err != nil:
			metrics.IncStillGrab(g.Name, "error")
			logger.Warn().Err(err).Msg("still grab failed")
		default:
			metrics.IncStillGrab(g.Name, "ok")
			logger.Debug().Str(log.FieldPath, g.Path()).Msg("still updated")
		}
		timer.Reset(delay)
	}
}

func (g *Grabber) grabOnce(ctx context.Context) error {
	if g.Breaker == nil {
		return g.Grab(ctx)
	}
	return g.Breaker.ExecuteContext(ctx, g.Grab)
}

func writeStill(ctx context.Context, path string, img []byte) error {
	logger := log.FromContext(ctx)

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending still: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending still")
		}
	}()

	if _, err := pending.Write(img); err != nil {
		return fmt.Errorf("write still: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace still: %w", err)
	}
	return nil
}
