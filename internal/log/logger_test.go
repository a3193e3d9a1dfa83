// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	dec := json.NewDecoder(buf)
	for dec.More() {
		var line map[string]interface{}
		require.NoError(t, dec.Decode(&line))
		out = append(out, line)
	}
	return out
}

func TestWithComponentAnnotatesService(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "recorder", Version: "test"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("loop")
	l.Info().Str(FieldEvent, "loop.started").Msg("started")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "recorder", lines[0]["service"])
	assert.Equal(t, "test", lines[0]["version"])
	assert.Equal(t, "loop", lines[0][FieldComponent])
	assert.Equal(t, "loop.started", lines[0][FieldEvent])
}

func TestWatermillAdapterForwardsFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	a := NewWatermillAdapter(WithComponent("events")).With(watermill.LogFields{"topic": "campipe.events"})
	a.Info("subscribed", watermill.LogFields{"url": "nats://x"})
	a.Error("publish failed", errors.New("boom"), nil)
	a.Trace("dropped at trace level", nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "campipe.events", lines[0]["topic"])
	assert.Equal(t, "nats://x", lines[0]["url"])
	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
}
