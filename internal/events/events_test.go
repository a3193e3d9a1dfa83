// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/campipe/internal/broker"
)

func TestMarshalUsesISOTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 500, time.UTC)
	data, err := Marshal(MotionEvent{Source: "cam1", Kind: KindMotion, Timestamp: ts})
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"cam1","kind":"MOTION","timestamp":"2024-03-01T12:30:45.0000005Z"}`, string(data))

	back, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, ts.Equal(back.Timestamp))
	assert.Equal(t, "cam1", back.Source)
}

func TestMarshalRejectsIncompleteEvent(t *testing.T) {
	_, err := Marshal(MotionEvent{Kind: KindMotion, Timestamp: time.Now()})
	require.ErrorIs(t, err, errInvalidEvent)

	_, err = Unmarshal([]byte(`{"source":"cam1","kind":"MOTION","timestamp":"yesterday"}`))
	require.Error(t, err)
}

func TestNotifierToSubscriber(t *testing.T) {
	srv, err := broker.Start(broker.Config{Name: "events-test", Host: "127.0.0.1", Port: broker.RandomPort})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	sub, err := NewSubscriber(srv.ClientURL(), DefaultTopic)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan MotionEvent, 16)
	done := make(chan error, 1)
	go func() { done <- sub.Forward(ctx, out) }()

	n, err := NewNotifier(srv.ClientURL(), DefaultTopic)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	// Events published before the subscription is live are lost, so keep
	// publishing until one arrives.
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var got MotionEvent
	require.Eventually(t, func() bool {
		n.Publish(ctx, "cam1", KindMotion, ts)
		select {
		case got = <-out:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "cam1", got.Source)
	assert.Equal(t, KindMotion, got.Kind)
	assert.True(t, ts.Equal(got.Timestamp))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Forward did not return after cancel")
	}
}
