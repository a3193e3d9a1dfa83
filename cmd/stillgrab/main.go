// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// stillgrab keeps <output_dir>/<camera>.jpg current for every configured
// camera and logs their motion events.
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
	"github.com/ManuGH/campipe/internal/stillgrab"
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

	holder, err := daemon.Load("campipe-stillgrab", *configPath)
	if err != nil {
		os.Exit(1)
	}

	m := daemon.NewManager("stillgrab", holder)
	err = m.Run(ctx, func(ctx context.Context, holder *config.Holder, hm *health.Manager) error {
		return stillgrab.RunNode(ctx, holder.Get(), hm)
	})
	if err != nil {
		logger := log.WithComponent("daemon")
		logger.Error().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("stillgrab failed")
		os.Exit(1)
	}
}
