// Package transport connects a live field to a relay over a websocket
// and keeps reconnecting until told to stop.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"collabtext/internal/clock"
	"collabtext/protocol"
)

// ErrNotConnected is returned by Emit when there is no live connection.
var ErrNotConnected = errors.New("transport: not connected")

// ErrCodecMismatch is reported when the relay accepts the connection
// without agreeing to the client's codec.
var ErrCodecMismatch = errors.New("transport: relay did not negotiate codec")

// Handler receives everything that arrives on the connection, in
// order, from a single goroutine.
type Handler interface {
	HandleMessage(m protocol.Message)
	// HandleDisconnect is called when an established connection drops.
	HandleDisconnect(err error)
	// HandleConnectError is called for every failed connection attempt.
	HandleConnectError(err error)
}

// Config describes where and how to connect.
type Config struct {
	// URL is the relay's base address, e.g. ws://localhost:8081.
	URL  string
	Room string

	Codec  protocol.Codec
	Dialer *websocket.Dialer
	Clock  clock.Clock
	Logger *slog.Logger

	// NewBackOff returns the reconnect policy for one Run. The default
	// retries forever with exponential delays capped at 10s.
	NewBackOff func() backoff.BackOff
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// Client is a reconnecting websocket connection to one room.
type Client struct {
	cfg     Config
	handler Handler

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(cfg Config, h Handler) *Client {
	if cfg.Codec == nil {
		cfg.Codec = protocol.JSON
	}
	if cfg.Dialer == nil {
		d := *websocket.DefaultDialer
		cfg.Dialer = &d
	}
	cfg.Dialer.Subprotocols = []string{cfg.Codec.Subprotocol()}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = defaultBackOff
	}
	return &Client{cfg: cfg, handler: h}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Endpoint returns the websocket URL for the configured room.
func (c *Client) Endpoint() string {
	return strings.TrimRight(c.cfg.URL, "/") + "/ws/" + url.PathEscape(c.cfg.Room)
}

// Run connects and serves the connection, reconnecting after failures
// according to the backoff policy. It returns when ctx is done or the
// policy gives up.
func (c *Client) Run(ctx context.Context) error {
	endpoint := c.Endpoint()
	policy := c.cfg.NewBackOff()
	for {
		conn, err := c.dial(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.cfg.Logger.Debug("dial failed", "endpoint", endpoint, "error", err)
			c.handler.HandleConnectError(err)
		} else {
			policy.Reset()
			c.cfg.Logger.Info("connected", "endpoint", endpoint)
			err = c.serve(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.handler.HandleDisconnect(err)
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("transport: giving up on %s: %w", endpoint, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.cfg.Clock.After(wait):
		}
	}
}

// dial connects and checks that the relay speaks the configured codec.
func (c *Client) dial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if got, want := conn.Subprotocol(), c.cfg.Codec.Subprotocol(); got != want {
		conn.Close()
		return nil, fmt.Errorf("%w %s: relay chose %q", ErrCodecMismatch, want, got)
	}
	return conn, nil
}

// Connected reports whether a connection is live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Emit sends one named event. Nothing is queued while disconnected.
func (c *Client) Emit(event string, payload any) error {
	frame, err := c.cfg.Codec.Encode(event, "", payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(c.messageType(), frame); err != nil {
		return fmt.Errorf("transport: sending %s: %w", event, err)
	}
	return nil
}

func (c *Client) messageType() int {
	if c.cfg.Codec.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// serve reads frames until the connection fails or ctx is done.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := c.cfg.Codec.Decode(frame)
		if err != nil {
			c.cfg.Logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		c.handler.HandleMessage(msg)
	}
}
