// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package broker hosts the embedded NATS brokers a camera node binds its
// video, still and event channels to, and dials them from the consumers.
package broker

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ManuGH/campipe/internal/log"
)

// RandomPort asks the broker to pick a free port (tests).
const RandomPort = server.RANDOM_PORT

// Config describes one embedded broker.
type Config struct {
	Name         string
	Host         string
	Port         int
	MaxPayload   int32
	ReadyTimeout time.Duration
}

// Server wraps an embedded NATS server with lifecycle management.
type Server struct {
	ns        *server.Server
	clientURL string
	port      int
}

// Start creates and starts an embedded broker and waits until it accepts
// connections.
func Start(cfg Config) (*Server, error) {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	opts := &server.Options{
		ServerName: cfg.Name,
		Host:       cfg.Host,
		Port:       cfg.Port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: cfg.MaxPayload,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create broker %s: %w", cfg.Name, err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(cfg.ReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("broker %s not ready within %s", cfg.Name, cfg.ReadyTimeout)
	}

	port := cfg.Port
	if tcp, ok := ns.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}

	return &Server{ns: ns, clientURL: ns.ClientURL(), port: port}, nil
}

// ClientURL returns the URL clients on this host should dial.
func (s *Server) ClientURL() string { return s.clientURL }

// Port returns the bound port.
func (s *Server) Port() int { return s.port }

// Shutdown stops the broker and waits for it to exit or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ns.Shutdown()
	done := make(chan struct{})
	go func() {
		s.ns.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// URL is the client URL of a camera node broker on host and port.
func URL(host string, port int) string {
	return "nats://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Connect dials a broker with reconnect handling suited to long-lived nodes.
func Connect(url, name string, logger zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if nc.IsClosed() {
				return
			}
			logger.Warn().Err(err).Str(log.FieldBrokerURL, url).Msg("broker disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str(log.FieldBrokerURL, nc.ConnectedUrl()).Msg("broker reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := logger.Warn().Err(err)
			if sub != nil {
				ev = ev.Str(log.FieldSubject, sub.Subject)
			}
			ev.Msg("broker async error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return nc, nil
}
