// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stillgrab

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/campipe/internal/broker"
	"github.com/ManuGH/campipe/internal/config"
	"github.com/ManuGH/campipe/internal/events"
	"github.com/ManuGH/campipe/internal/health"
	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/resilience"
	"github.com/ManuGH/campipe/internal/still"
)

const (
	breakerThreshold = 5
	breakerReset     = 30 * time.Second
)

// RunNode grabs stills from every configured camera and logs their motion
// events until ctx is done.
func RunNode(ctx context.Context, cfg config.Config, hm *health.Manager) error {
	logger := log.WithComponent("stillgrab")
	sc := cfg.Stillgrab
	if len(sc.Cameras) == 0 {
		return errors.New("stillgrab: no cameras configured")
	}
	if hm != nil {
		hm.RegisterChecker(health.DirChecker("still_dir", sc.OutputDir))
	}

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

	var grabbers []*Grabber
	for _, host := range sc.Cameras {
		nc, err := broker.Connect(broker.URL(host, cfg.Network.StillPort), "campipe-stillgrab", logger)
		if err != nil {
			return err
		}
		conns = append(conns, nc)
		client := still.NewClient(nc, still.DefaultSubject, cfg.Network.FrameSize, still.WithRequestTimeout(sc.RequestTimeout))
		logger.Debug().Str(log.FieldSource, host).Str(log.FieldRequester, client.Requester()).Msg("still client ready")
		grabbers = append(grabbers, &Grabber{
			Name:           host,
			Fetcher:        client,
			OutputDir:      sc.OutputDir,
			ReloadDelay:    sc.ReloadDelay,
			RequestTimeout: sc.RequestTimeout,
			Breaker:        resilience.NewCircuitBreaker("stillgrab_"+host, breakerThreshold, breakerReset),
		})

		sub, err := events.NewSubscriber(broker.URL(host, cfg.Network.EventPort), events.DefaultTopic)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}

	evs := make(chan events.MotionEvent, 64)
	g, gctx := errgroup.WithContext(ctx)
	for _, gr := range grabbers {
		g.Go(func() error { return gr.Run(gctx) })
	}
	for _, sub := range subs {
		g.Go(func() error { return sub.Forward(gctx, evs) })
	}
	g.Go(func() error {
		LogEvents(gctx, evs)
		return nil
	})
	return g.Wait()
}

// LogEvents logs received motion events until ctx is done or evs closes.
func LogEvents(ctx context.Context, evs <-chan events.MotionEvent) {
	logger := log.WithComponent("stillgrab")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			logger.Info().
				Str(log.FieldEvent, "stillgrab.motion").
				Str(log.FieldSource, ev.Source).
				Str("kind", ev.Kind).
				Time("at", ev.Timestamp).
				Msg("motion event")
		}
	}
}
