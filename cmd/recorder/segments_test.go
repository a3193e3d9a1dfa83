// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/campipe/internal/catalog"
)

func TestSegmentsListsCatalog(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")

	store, err := catalog.NewSqliteStore(t.Context(), dbPath)
	require.NoError(t, err)
	start := time.Now().Add(-time.Minute)
	id, err := store.Open(t.Context(), "cam1", "/rec/cam1-a.mp4", start)
	require.NoError(t, err)
	require.NoError(t, store.Finish(t.Context(), id, start.Add(30*time.Second), 1234, catalog.StatusComplete, "end"))
	_, err = store.Open(t.Context(), "cam2", "/rec/cam2-a.mp4", start)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cfgPath := filepath.Join(dir, "campipe.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("recorder:\n  catalog_path: "+dbPath+"\n"), 0o600))

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, runSegments([]string{"-config", cfgPath, "-source", "cam1"}, &stdout, &stderr), stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "/rec/cam1-a.mp4")
	assert.Contains(t, out, "30s")
	assert.Contains(t, out, "complete")
	assert.NotContains(t, out, "cam2")
}

func TestSegmentsWithoutCatalog(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, runSegments(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "catalog_path")
}
