// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ManuGH/campipe/internal/catalog"
	"github.com/ManuGH/campipe/internal/config"
)

// runSegments lists catalogued segments, newest first.
func runSegments(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("segments", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file (YAML)")
	source := fs.String("source", "", "only this source")
	status := fs.String("status", "", "only this status (recording, complete, aborted, missing)")
	since := fs.Duration("since", 0, "only segments started within this duration")
	limit := fs.Int("limit", 50, "maximum number of segments")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	if cfg.Recorder.CatalogPath == "" {
		fmt.Fprintln(stderr, "recorder.catalog_path is not set")
		return 1
	}

	ctx := context.Background()
	store, err := catalog.NewSqliteStore(ctx, cfg.Recorder.CatalogPath)
	if err != nil {
		fmt.Fprintf(stderr, "open catalog: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	f := catalog.Filter{Source: *source, Status: catalog.Status(*status), Limit: *limit}
	if *since > 0 {
		f.Since = time.Now().Add(-*since)
	}
	segs, err := store.List(ctx, f)
	if err != nil {
		fmt.Fprintf(stderr, "list segments: %v\n", err)
		return 1
	}
	printSegments(stdout, segs)
	return 0
}

func printSegments(w io.Writer, segs []catalog.Segment) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSOURCE\tSTATUS\tDURATION\tBYTES\tPATH")
	for _, s := range segs {
		dur := "-"
		if !s.EndedAt.IsZero() {
			dur = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.StartedAt.Local().Format(time.DateTime), s.Source, s.Status, dur, s.Bytes, s.Path)
	}
	_ = tw.Flush()
}
