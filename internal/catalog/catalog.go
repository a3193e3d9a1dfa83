// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog records every segment the recorder writes, so finished,
// aborted and missing segments can be listed without walking the tree.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/campipe/internal/persistence/sqlite"
)

// Status of a segment.
type Status string

const (
	StatusRecording Status = "recording"
	StatusComplete  Status = "complete"
	StatusAborted   Status = "aborted"
	StatusMissing   Status = "missing"
)

var (
	// ErrNotFound is returned when a segment id is unknown.
	ErrNotFound = errors.New("segment not found")
	// ErrCorrupt is returned by Verify when the database fails its check.
	ErrCorrupt = errors.New("catalog corrupt")
)

// Segment is one catalog row.
type Segment struct {
	ID        string
	Source    string
	Path      string
	StartedAt time.Time
	EndedAt   time.Time
	Bytes     int64
	Status    Status
	Reason    string
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Source string
	Status Status
	Since  time.Time
	Limit  int
}

// Store is the segment catalog used by the recorder.
type Store interface {
	Open(ctx context.Context, source, path string, started time.Time) (string, error)
	Finish(ctx context.Context, id string, ended time.Time, bytes int64, status Status, reason string) error
	List(ctx context.Context, f Filter) ([]Segment, error)
	Close() error
}

var migrations = []string{
	`CREATE TABLE segments (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		path TEXT NOT NULL,
		started_at_ms INTEGER NOT NULL,
		ended_at_ms INTEGER,
		bytes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL
	);
	CREATE INDEX idx_segments_source_started ON segments(source, started_at_ms);`,
	`ALTER TABLE segments ADD COLUMN reason TEXT NOT NULL DEFAULT ''`,
}

// SqliteStore implements Store on SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (and migrates) the catalog at dbPath.
func NewSqliteStore(ctx context.Context, dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: migration failed: %w", err)
	}
	return &SqliteStore{DB: db}, nil
}

// Open inserts a segment in state recording and returns its id.
func (s *SqliteStore) Open(ctx context.Context, source, path string, started time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO segments (id, source, path, started_at_ms, status) VALUES (?, ?, ?, ?, ?)`,
		id, source, path, started.UnixMilli(), string(StatusRecording))
	if err != nil {
		return "", fmt.Errorf("catalog: insert segment: %w", err)
	}
	return id, nil
}

// Finish records the outcome of a segment.
func (s *SqliteStore) Finish(ctx context.Context, id string, ended time.Time, bytes int64, status Status, reason string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE segments SET ended_at_ms = ?, bytes = ?, status = ?, reason = ? WHERE id = ?`,
		ended.UnixMilli(), bytes, string(status), reason, id)
	if err != nil {
		return fmt.Errorf("catalog: finish segment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List returns segments newest first.
func (s *SqliteStore) List(ctx context.Context, f Filter) ([]Segment, error) {
	query := `SELECT id, source, path, started_at_ms, ended_at_ms, bytes, status, reason FROM segments WHERE 1=1`
	var args []any
	if f.Source != "" {
		query += ` AND source = ?`
		args = append(args, f.Source)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		query += ` AND started_at_ms >= ?`
		args = append(args, f.Since.UnixMilli())
	}
	query += ` ORDER BY started_at_ms DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		var (
			seg     Segment
			started int64
			ended   sql.NullInt64
			status  string
		)
		if err := rows.Scan(&seg.ID, &seg.Source, &seg.Path, &started, &ended, &seg.Bytes, &status, &seg.Reason); err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		seg.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			seg.EndedAt = time.UnixMilli(ended.Int64)
		}
		seg.Status = Status(status)
		out = append(out, seg)
	}
	return out, rows.Err()
}

// MarkInterrupted flags segments left in state recording by a previous run
// as aborted. Returns how many were changed.
func (s *SqliteStore) MarkInterrupted(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE segments SET status = ?, reason = ?, ended_at_ms = ? WHERE status = ?`,
		string(StatusAborted), "interrupted", now.UnixMilli(), string(StatusRecording))
	if err != nil {
		return 0, fmt.Errorf("catalog: mark interrupted: %w", err)
	}
	return res.RowsAffected()
}

// Verify runs a quick structural check of the catalog file.
func (s *SqliteStore) Verify(ctx context.Context) error {
	issues, err := sqlite.Check(ctx, s.DB, false)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("%w: %s", ErrCorrupt, strings.Join(issues, "; "))
	}
	return nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

// Nop discards everything. Used when no catalog is configured.
type Nop struct{}

func (Nop) Open(context.Context, string, string, time.Time) (string, error) { return "", nil }
func (Nop) Finish(context.Context, string, time.Time, int64, Status, string) error {
	return nil
}
func (Nop) List(context.Context, Filter) ([]Segment, error) { return nil, nil }
func (Nop) Close() error                                    { return nil }
