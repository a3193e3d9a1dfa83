// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// recorder subscribes to camera nodes and writes their video into
// time-bounded segment files.
//
// Usage:
//
//	recorder -config campipe.yaml
//	recorder segments -config campipe.yaml [-source cam1] [-status complete] [-limit 50]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/campipe/internal/config"
	"github.com/ManuGH/campipe/internal/daemon"
	"github.com/ManuGH/campipe/internal/health"
	"github.com/ManuGH/campipe/internal/log"
	"github.com/ManuGH/campipe/internal/recorder"
	"github.com/ManuGH/campipe/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "segments" {
		os.Exit(runSegments(os.Args[2:], os.Stdout, os.Stderr))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	holder, err := daemon.Load("campipe-recorder", *configPath)
	if err != nil {
		os.Exit(1)
	}

	m := daemon.NewManager("recorder", holder)
	err = m.Run(ctx, func(ctx context.Context, holder *config.Holder, hm *health.Manager) error {
		return recorder.RunNode(ctx, holder.Get(), hm)
	})
	if err != nil {
		logger := log.WithComponent("daemon")
		logger.Error().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("recorder failed")
		os.Exit(1)
	}
}
