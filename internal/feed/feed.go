// Package feed is a WebSocket client for a JSON price-point stream. It
// reconnects with exponential backoff and pushes decoded points into a
// channel for the merger.
package feed

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the feed client.
type Config struct {
	// URL of the point WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Client streams points from one WebSocket server.
type Client struct {
	cfg Config
	log *slog.Logger

	// OnReconnect is called each time a reconnection happens (optional).
	OnReconnect func()
	// OnMessage is called per frame with whether it decoded (optional).
	OnMessage func(ok bool)
}

// New creates a Client. Returns an error if the URL is unparseable.
func New(cfg Config, log *slog.Logger) (*Client, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{cfg: cfg, log: log.With("component", "feed")}, nil
}

// Start connects and streams points into out. Blocks until ctx is
// cancelled and reconnects on disconnect.
func (c *Client) Start(ctx context.Context, out chan<- Point) error {
	delay := c.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := c.runOnce(ctx, out)
		if err == nil {
			return nil
		}

		c.log.Warn("disconnected, reconnecting", "error", err, "delay", delay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes one connection attempt and reads until disconnect or ctx
// cancel. A nil error means ctx was cancelled.
func (c *Client) runOnce(ctx context.Context, out chan<- Point) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.log.Info("connected", "url", c.cfg.URL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		p, err := Decode(raw)
		if c.OnMessage != nil {
			c.OnMessage(err == nil)
		}
		if err != nil {
			c.log.Warn("dropping message", "error", err, "raw", string(raw))
			continue
		}

		// Points are not dropped: a lost closing price leaves a gap.
		select {
		case out <- p:
		case <-ctx.Done():
			return nil
		}
	}
}
