// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenEnablesWAL(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "wal.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestMigrateIsIncremental(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "m.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	steps := []string{`CREATE TABLE a (id INTEGER PRIMARY KEY)`}
	require.NoError(t, Migrate(ctx, db, steps))
	require.NoError(t, Migrate(ctx, db, steps))

	steps = append(steps, `ALTER TABLE a ADD COLUMN name TEXT`)
	require.NoError(t, Migrate(ctx, db, steps))

	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = db.Exec(`INSERT INTO a (name) VALUES ('x')`)
	require.NoError(t, err)

	require.Error(t, Migrate(ctx, db, steps[:1]), "older binary must refuse a newer schema")
}

func TestMigrateRollsBackFailedStep(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "r.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	err = Migrate(ctx, db, []string{`CREATE TABLE a (id INTEGER)`, `NOT SQL`})
	require.Error(t, err)

	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestCheckHealthy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.sqlite")
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, data TEXT)`)
	require.NoError(t, err)

	for _, full := range []bool{false, true} {
		issues, err := Check(context.Background(), db, full)
		require.NoError(t, err)
		assert.Nil(t, issues)
	}
}
