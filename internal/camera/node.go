// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package camera wires a camera node: it hosts the video, still and event
// brokers, streams the capture process as frames, answers still requests
// and publishes motion events.
package camera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/campipe/internal/broker"
	"github.com/ManuGH/campipe/internal/config"
	"github.com/ManuGH/campipe/internal/events"
	"github.com/ManuGH/campipe/internal/health"
	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/motion"
	"github.com/ManuGH/campipe/internal/still"
	"github.com/ManuGH/campipe/internal/transport"
)

const restartDelay = 2 * time.Second

// Node is one camera node.
type Node struct {
	holder  *config.Holder
	health  *health.Manager
	brokers map[int]*broker.Server
	ready   chan struct{}

	// VideoRunner streams video into the writer; replaced in tests.
	VideoRunner func(ctx context.Context, s Stream) error
	// Capturer takes stills; replaced in tests.
	Capturer still.Capturer
}

// NewNode builds a node from the current configuration.
func NewNode(holder *config.Holder, hm *health.Manager) *Node {
	cfg := holder.Get()
	return &Node{
		holder:  holder,
		health:  hm,
		brokers: make(map[int]*broker.Server),
		ready:   make(chan struct{}),
		Capturer: &ExecCapturer{
			Command: cfg.Camera.StillCommand,
			Args:    cfg.Camera.StillArgs,
		},
	}
}

// Ready is closed once every broker accepts connections.
func (n *Node) Ready() <-chan struct{} { return n.ready }

// BrokerURL returns the client URL of the broker bound to port. It is only
// meaningful after Ready.
func (n *Node) BrokerURL(port int) string {
	if b, ok := n.brokers[port]; ok {
		return b.ClientURL()
	}
	return ""
}

func thresholds(m config.MotionConfig) motion.Thresholds {
	return motion.Thresholds{Magnitude: uint8(m.MagnitudeThreshold), Blocks: m.BlockThreshold}
}

// startBrokers starts one broker per distinct port.
func (n *Node) startBrokers(net config.NetworkConfig) error {
	logger := log.WithComponent("camera")
	flag := health.NewFlag("brokers")
	if n.health != nil {
		n.health.RegisterChecker(flag)
	}
	for _, port := range []int{net.VideoPort, net.StillPort, net.EventPort} {
		if _, ok := n.brokers[port]; ok {
			continue
		}
		srv, err := broker.Start(broker.Config{
			Name:         fmt.Sprintf("campipe-%d", port),
			Host:         net.Host,
			Port:         port,
			MaxPayload:   int32(net.MaxPayload),
			ReadyTimeout: net.ReadyTimeout,
		})
		if err != nil {
			flag.Fail(err)
			return err
		}
		n.brokers[port] = srv
		logger.Info().
			Str(log.FieldEvent, "camera.broker_started").
			Int(log.FieldBrokerPort, srv.Port()).
			Str(log.FieldBrokerURL, srv.ClientURL()).
			Msg("broker started")
	}
	flag.Set(health.StatusHealthy, fmt.Sprintf("%d brokers", len(n.brokers)))
	return nil
}

func (n *Node) shutdownBrokers() {
	logger := log.WithComponent("camera")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for port, b := range n.brokers {
		if err := b.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Int(log.FieldBrokerPort, port).Msg("broker shutdown")
		}
	}
}

// Run serves until ctx is done or a component fails.
func (n *Node) Run(ctx context.Context) error {
	cfg := n.holder.Get()
	logger := log.WithComponent("camera").With().Str(log.FieldSource, cfg.Camera.Name).Logger()

	if err := n.startBrokers(cfg.Network); err != nil {
		n.shutdownBrokers()
		return err
	}
	defer n.shutdownBrokers()
	close(n.ready)

	videoConn, err := broker.Connect(n.BrokerURL(cfg.Network.VideoPort), "campipe-camera-video", logger)
	if err != nil {
		return fmt.Errorf("connect video broker: %w", err)
	}
	defer videoConn.Close()

	stillConn, err := broker.Connect(n.BrokerURL(cfg.Network.StillPort), "campipe-camera-still", logger)
	if err != nil {
		return fmt.Errorf("connect still broker: %w", err)
	}
	defer stillConn.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return n.holder.Watch(gctx) })

	responder := still.NewResponder(n.Capturer, cfg.Network.FrameSize)
	g.Go(func() error { return still.Serve(gctx, stillConn, still.DefaultSubject, responder) })

	if cfg.Motion.Enabled {
		notifier, err := events.NewNotifier(n.BrokerURL(cfg.Network.EventPort), events.DefaultTopic)
		if err != nil {
			return err
		}
		defer func() { _ = notifier.Close() }()

		detector := motion.NewDetector(thresholds(cfg.Motion))
		n.holder.OnReload(func(_, next config.Config) {
			prev, t := detector.Thresholds(), thresholds(next.Motion)
			if prev == t {
				return
			}
			detector.SetThresholds(t)
			logger.Info().
				Uint8("magnitude_threshold_old", prev.Magnitude).
				Int("block_threshold_old", prev.Blocks).
				Int("magnitude_threshold", next.Motion.MagnitudeThreshold).
				Int("block_threshold", next.Motion.BlockThreshold).
				Msg("motion thresholds updated")
		})

		watcher := NewMotionWatcher(cfg, detector, func(ts time.Time) {
			notifier.Publish(gctx, cfg.Camera.Name, events.KindMotion, ts)
		})
		g.Go(func() error { return n.runMotion(gctx, watcher) })
	}

	g.Go(func() error { return n.streamVideo(gctx, videoConn, cfg) })

	logger.Info().Str(log.FieldEvent, "camera.started").Msg("camera node running")
	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	return err
}

// runMotion restarts the watcher when the vector stream ends (capture
// restarts reopen it).
func (n *Node) runMotion(ctx context.Context, w *MotionWatcher) error {
	logger := log.WithComponent("motion")
	for {
		if err := w.Run(ctx); err != nil {
			logger.Warn().Err(err).Msg("motion watcher stopped")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(restartDelay):
		}
	}
}

// streamVideo keeps the capture process running. Each run is a logical
// stream: START on first bytes, END on exit.
func (n *Node) streamVideo(ctx context.Context, nc *nats.Conn, cfg config.Config) error {
	logger := log.WithComponent("camera")
	pub := transport.NewNATSPublisher(nc, transport.DefaultSubject)
	w := transport.NewFrameWriter(pub, cfg.Camera.Name, cfg.Network.FrameSize)

	run := n.VideoRunner
	if run == nil {
		run = func(ctx context.Context, s Stream) error {
			host := cfg.Camera.Name
			annotation, err := RenderAnnotation(cfg.Camera.Annotation, host, time.Now(), cfg.Camera.AnnotationTimeLayout)
			if err != nil {
				return err
			}
			vectors := ""
			if cfg.Motion.Enabled {
				vectors = cfg.Motion.VectorsPath
			}
			src := &VideoSource{
				Command:   cfg.Camera.VideoCommand,
				Args:      VideoArgs(cfg.Camera, annotation, vectors),
				KillGrace: cfg.Camera.KillGrace,
			}
			return src.Run(ctx, s)
		}
	}

	for {
		err := run(ctx, w)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, nats.ErrConnectionClosed) {
			return err
		}
		logger.Warn().Err(err).Dur("retry_in", restartDelay).Msg("video source ended, restarting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(restartDelay):
		}
	}
}
