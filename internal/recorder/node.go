// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/campipe/internal/broker"
	"github.com/ManuGH/campipe/internal/catalog"
	"github.com/ManuGH/campipe/internal/config"
	"github.com/ManuGH/campipe/internal/encoder"
	"github.com/ManuGH/campipe/internal/events"
	"github.com/ManuGH/campipe/internal/health"
	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/transport"
)

const eventQueue = 64

// NewEncoder builds the encoder the configuration asks for: ffmpeg, or a
// replacement command that takes the segment path as its last argument.
func NewEncoder(c config.EncoderConfig) encoder.Encoder {
	ec := encoder.Config{
		Binary:      c.Binary,
		ExtraArgs:   c.ExtraArgs,
		KillGrace:   c.KillGrace,
		KillTimeout: c.WaitTimeout,
	}
	if len(c.Command) > 0 {
		ec.Binary = c.Command[0]
		return encoder.NewCommand(ec, c.Command[1:]...)
	}
	return encoder.NewFFmpeg(ec)
}

// RunNode records every configured source until ctx is done or the recorder
// hits a fatal error. Sessions are closed before it returns.
func RunNode(ctx context.Context, cfg config.Config, hm *health.Manager) error {
	logger := log.WithComponent("recorder")
	rc := cfg.Recorder

	if err := os.MkdirAll(rc.Folder, 0o755); err != nil {
		return fmt.Errorf("create recording folder: %w", err)
	}

	opts := []Option{}
	if rc.CatalogPath != "" {
		store, err := catalog.NewSqliteStore(ctx, rc.CatalogPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		if err := store.Verify(ctx); err != nil {
			return err
		}
		if hm != nil {
			hm.RegisterChecker(health.NewFuncChecker("catalog", func(ctx context.Context) health.CheckResult {
				if err := store.Verify(ctx); err != nil {
					return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
				}
				return health.CheckResult{Status: health.StatusHealthy}
			}))
		}
		if n, err := store.MarkInterrupted(ctx, time.Now()); err != nil {
			return err
		} else if n > 0 {
			logger.Warn().Int64("segments", n).Msg("marked segments left open by a previous run as aborted")
		}
		opts = append(opts, WithCatalog(store))
	}
	if rc.EventLog.Path != "" {
		el, err := NewEventLog(rc.EventLog.Path, rc.EventLog.Format, rc.EventLog.MinInterval)
		if err != nil {
			return err
		}
		opts = append(opts, WithEventLog(el))
	}

	rec := New(Config{
		Folder:       rc.Folder,
		MaxDuration:  rc.MaxSegmentDuration,
		PollInterval: rc.PollInterval,
		Framerate:    rc.Framerate,
		Container:    rc.Container,
		WaitTimeout:  rc.Encoder.WaitTimeout,
	}, NewEncoder(rc.Encoder), opts...)

	if hm != nil {
		hm.RegisterChecker(health.DirChecker("recording_folder", rc.Folder))
	}

	frames := make(chan transport.Frame, rc.FrameQueue)
	evs := make(chan events.MotionEvent, eventQueue)

	var conns []*nats.Conn
	defer func() {
		for _, nc := range conns {
			nc.Close()
		}
	}()
	var subs []*events.Subscriber
	defer func() {
		for _, s := range subs {
			_ = s.Close()
		}
	}()

	for _, host := range rc.Sources {
		url := broker.URL(host, cfg.Network.VideoPort)
		nc, err := broker.Connect(url, "campipe-recorder", logger)
		if err != nil {
			return err
		}
		conns = append(conns, nc)
		if _, err := transport.Subscribe(nc, transport.DefaultSubject, frames); err != nil {
			return err
		}

		sub, err := events.NewSubscriber(broker.URL(host, cfg.Network.EventPort), events.DefaultTopic)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		logger.Info().Str(log.FieldBrokerURL, url).Msg("subscribed to camera")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		g.Go(func() error { return sub.Forward(gctx, evs) })
	}
	g.Go(func() error {
		err := rec.Run(gctx, frames, evs)
		if err != nil {
			return fmt.Errorf("recorder: %w", err)
		}
		// Run only returns nil on shutdown; stop the forwarders too.
		return context.Canceled
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
