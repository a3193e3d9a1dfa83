// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon holds the lifecycle shared by the campipe binaries: load
// the configuration, configure logging, serve health and run one node.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/campipe/internal/config"
	"github.com/ManuGH/campipe/internal/health"
	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/telemetry"
	"github.com/ManuGH/campipe/internal/version"
)

// ShutdownHook runs after the node has stopped. Hooks run in reverse
// registration order.
type ShutdownHook func(ctx context.Context) error

// NodeFunc runs one node until ctx is done.
type NodeFunc func(ctx context.Context, holder *config.Holder, hm *health.Manager) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// Manager runs a node next to its health endpoint.
type Manager struct {
	service string
	holder  *config.Holder
	health  *health.Manager
	hooks   []namedHook

	// ShutdownTimeout bounds all shutdown hooks together.
	ShutdownTimeout time.Duration
}

// Load configures logging with safe defaults, loads the configuration and
// reconfigures logging from it.
func Load(service, configPath string) (*config.Holder, error) {
	log.Configure(log.Config{Level: "info", Service: service, Version: version.Version})
	logger := log.WithComponent("daemon")

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str(log.FieldPath, configPath).
			Msg("failed to load configuration")
		return nil, err
	}

	log.Configure(log.Config{Level: cfg.Log.Level, Service: service, Version: version.Version})
	source := "env+defaults"
	if configPath != "" {
		source = "file"
	}
	// Rebind so the reconfigured level and output apply.
	logger = log.WithComponent("daemon")
	logger.Info().
		Str(log.FieldEvent, "config.loaded").
		Str(log.FieldSource, source).
		Str(log.FieldPath, configPath).
		Msg("configuration loaded")
	return config.NewHolder(cfg, loader), nil
}

// NewManager returns a manager for service.
func NewManager(service string, holder *config.Holder) *Manager {
	return &Manager{
		service:         service,
		holder:          holder,
		health:          health.NewManager(version.Version),
		ShutdownTimeout: 30 * time.Second,
	}
}

// Health returns the health manager checks can be registered with.
func (m *Manager) Health() *health.Manager { return m.health }

// RegisterShutdownHook adds a hook run after the node stopped.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}

// Run serves health and runs node until ctx is done or either fails. The
// health endpoint stops when the node returns.
func (m *Manager) Run(ctx context.Context, node NodeFunc) error {
	logger := log.WithComponent("daemon")
	cfg := m.holder.Get()
	logger.Info().Str(log.FieldEvent, "daemon.start").Str("health_listen", cfg.Health.Listen).Msgf("starting %s", m.service)

	host, _ := os.Hostname()
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "campipe-" + m.service,
		ServiceVersion: version.Version,
		HostName:       host,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	m.RegisterShutdownHook("telemetry", tp.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	nodeCtx, stopHealth := context.WithCancel(gctx)
	defer stopHealth()

	g.Go(func() error {
		h := otelhttp.NewHandler(health.NewRouter(m.health), "campipe."+m.service+".health")
		return health.Serve(nodeCtx, cfg.Health.Listen, h)
	})
	g.Go(func() error {
		defer stopHealth()
		if err := node(nodeCtx, m.holder, m.health); err != nil {
			return fmt.Errorf("%s: %w", m.service, err)
		}
		return nil
	})

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if err := m.shutdown(context.WithoutCancel(ctx)); err != nil {
		runErr = errors.Join(runErr, err)
	}
	logger.Info().Str(log.FieldEvent, "daemon.stopped").AnErr("error", runErr).Msgf("%s stopped", m.service)
	return runErr
}

func (m *Manager) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.ShutdownTimeout)
	defer cancel()

	logger := log.WithComponent("daemon")
	var errs []error
	for i := len(m.hooks) - 1; i >= 0; i-- {
		h := m.hooks[i]
		start := time.Now()
		if err := h.hook(ctx); err != nil {
			logger.Error().Err(err).Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}
	return errors.Join(errs...)
}
