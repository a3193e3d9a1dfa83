// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package still

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Client retrieves stills from one camera node.
type Client struct {
	nc         *nats.Conn
	subject    string
	requester  string
	frameSize  int
	reqTimeout time.Duration
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithRequester fixes the requester address instead of a random one.
func WithRequester(id string) ClientOption {
	return func(c *Client) { c.requester = id }
}

// WithRequestTimeout bounds each individual request.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.reqTimeout = d }
}

// NewClient returns a client for subject. frameSize must match the camera's
// net frame size: a shorter payload is taken as the end of the image.
func NewClient(nc *nats.Conn, subject string, frameSize int, opts ...ClientOption) *Client {
	if subject == "" {
		subject = DefaultSubject
	}
	c := &Client{
		nc:         nc,
		subject:    subject,
		requester:  uuid.NewString(),
		frameSize:  frameSize,
		reqTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Requester returns the address this client identifies as.
func (c *Client) Requester() string { return c.requester }

// Fetch runs one NEW / NEXT... / ENDACK exchange and returns the image.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	var image bytes.Buffer

	chunk, err := c.request(ctx, CommandNew)
	if err != nil {
		return nil, err
	}
	image.Write(chunk)

	for len(chunk) >= c.frameSize {
		chunk, err = c.request(ctx, CommandNext)
		if err != nil {
			return nil, err
		}
		image.Write(chunk)
	}

	if _, err := c.request(ctx, CommandEndAck); err != nil {
		return nil, err
	}
	return image.Bytes(), nil
}

func (c *Client) request(ctx context.Context, cmd Command) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.reqTimeout)
	defer cancel()

	m := nats.NewMsg(c.subject)
	m.Header.Set(HeaderRequester, c.requester)
	m.Data = []byte(cmd)

	resp, err := c.nc.RequestMsgWithContext(reqCtx, m)
	if err != nil {
		return nil, fmt.Errorf("still %s request: %w", cmd, err)
	}
	switch resp.Header.Get(HeaderError) {
	case "":
		return resp.Data, nil
	case "protocol":
		return nil, fmt.Errorf("still %s: %w", cmd, ErrProtocol)
	default:
		return nil, fmt.Errorf("still %s: %w", cmd, ErrCapture)
	}
}
