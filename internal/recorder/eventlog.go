// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/campipe/internal/events"
)

// DefaultEventFormat renders one event log line.
const DefaultEventFormat = "{{.Timestamp}} {{.Source}} {{.Kind}}"

// EventLine is the data available to the event log template.
type EventLine struct {
	Timestamp string
	Source    string
	Kind      string
	Time      time.Time
}

// EventLog appends one line per motion event. The file is opened and closed
// for every line, so it can be rotated or removed underneath the recorder.
type EventLog struct {
	path     string
	tmpl     *template.Template
	interval time.Duration
	limiters map[string]*rate.Limiter
}

// NewEventLog parses format and prepares the log directory. A positive
// minInterval drops events from a source that arrive faster than that.
func NewEventLog(path, format string, minInterval time.Duration) (*EventLog, error) {
	if format == "" {
		format = DefaultEventFormat
	}
	tmpl, err := template.New("event").Option("missingkey=error").Parse(format)
	if err != nil {
		return nil, fmt.Errorf("event log format: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("event log dir: %w", err)
	}
	return &EventLog{
		path:     path,
		tmpl:     tmpl,
		interval: minInterval,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// Path returns the log file path.
func (l *EventLog) Path() string { return l.path }

// Allow applies the per-source flood limit at now.
func (l *EventLog) Allow(source string, now time.Time) bool {
	if l.interval <= 0 {
		return true
	}
	lim, ok := l.limiters[source]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters[source] = lim
	}
	return lim.AllowN(now, 1)
}

// Render formats ev without writing it.
func (l *EventLog) Render(ev events.MotionEvent) ([]byte, error) {
	var buf bytes.Buffer
	err := l.tmpl.Execute(&buf, EventLine{
		Timestamp: ev.Timestamp.Format(time.RFC3339Nano),
		Source:    ev.Source,
		Kind:      ev.Kind,
		Time:      ev.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("render event: %w", err)
	}
	if b := buf.Bytes(); len(b) == 0 || b[len(b)-1] != '\n' {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Append writes ev as one line.
func (l *EventLog) Append(ev events.MotionEvent) error {
	line, err := l.Render(ev)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write event log: %w", err)
	}
	return f.Close()
}
