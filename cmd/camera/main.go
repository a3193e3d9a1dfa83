// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// camera runs a camera node: it streams the capture process to the video
// channel, answers still requests and publishes motion events.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/campipe/internal/camera"
	"github.com/ManuGH/campipe/internal/config"
	"github.com/ManuGH/campipe/internal/daemon"
	"github.com/ManuGH/campipe/internal/health"
	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	holder, err := daemon.Load("campipe-camera", *configPath)
	if err != nil {
		os.Exit(1)
	}

	m := daemon.NewManager("camera", holder)
	err = m.Run(ctx, func(ctx context.Context, holder *config.Holder, hm *health.Manager) error {
		return camera.NewNode(holder, hm).Run(ctx)
	})
	if err != nil {
		logger := log.WithComponent("daemon")
		logger.Error().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("camera node failed")
		os.Exit(1)
	}
}
