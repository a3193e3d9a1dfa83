// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/campipe/internal/broker"
	"github.com/ManuGH/campipe/internal/config"
	"github.com/ManuGH/campipe/internal/health"
	"github.com/ManuGH/campipe/internal/still"
	"github.com/ManuGH/campipe/internal/transport"
)

func testNodeConfig() config.Config {
	cfg := config.Defaults()
	cfg.Camera.Name = "cam1"
	cfg.Network.Host = "127.0.0.1"
	cfg.Network.VideoPort = broker.RandomPort
	cfg.Network.StillPort = broker.RandomPort
	cfg.Network.EventPort = broker.RandomPort
	cfg.Network.FrameSize = 8
	cfg.Motion.Enabled = false
	return cfg
}

func TestNodeStreamsVideoAndServesStills(t *testing.T) {
	cfg := testNodeConfig()
	hm := health.NewManager("test")
	n := NewNode(config.NewHolder(cfg, config.NewLoader("")), hm)

	release := make(chan struct{})
	n.VideoRunner = func(ctx context.Context, s Stream) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		_, _ = io.WriteString(s, "0123456789abcdef!")
		_ = s.Flush()
		_ = s.Close()
		<-ctx.Done()
		return ctx.Err()
	}
	n.Capturer = still.CapturerFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "JPEGDATA-still")
		return err
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	select {
	case <-n.Ready():
	case <-time.After(10 * time.Second):
		t.Fatal("node not ready")
	}
	assert.Equal(t, health.StatusHealthy, hm.Ready(t.Context()).Status)

	nc, err := broker.Connect(n.BrokerURL(cfg.Network.VideoPort), "test", zerolog.Nop())
	require.NoError(t, err)
	defer nc.Close()

	frames := make(chan transport.Frame, 16)
	sub, err := transport.Subscribe(nc, transport.DefaultSubject, frames)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()
	require.NoError(t, nc.Flush())
	close(release)

	var kinds []transport.FrameKind
	var payload []byte
	for len(kinds) == 0 || kinds[len(kinds)-1] != transport.KindEnd {
		select {
		case f := <-frames:
			assert.Equal(t, "cam1", f.Source)
			kinds = append(kinds, f.Kind)
			payload = append(payload, f.Payload...)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %v", kinds)
		}
	}
	assert.Equal(t, transport.KindStart, kinds[0])
	assert.Equal(t, "0123456789abcdef!", string(payload))

	client := still.NewClient(nc, still.DefaultSubject, cfg.Network.FrameSize)
	img, err := client.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "JPEGDATA-still", string(img))
}
