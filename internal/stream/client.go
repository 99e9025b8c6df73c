package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"basis-alerts/internal/backoff"
)

// Conn is the minimal full-duplex text-frame transport the client
// needs. *websocket.Conn satisfies it; tests inject fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens one connection to the endpoint.
type Dialer func(ctx context.Context, url string) (Conn, error)

// GorillaDialer returns a Dialer backed by gorilla/websocket.
func GorillaDialer(handshakeTimeout time.Duration) Dialer {
	return func(ctx context.Context, url string) (Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return conn, nil
	}
}

// Handler receives one decoded inbound message.
type Handler func(map[string]any)

// Observer receives connection lifecycle signals for the health
// surface. Implementations must be cheap and non-blocking.
type Observer interface {
	RecordMessage(source string, ts time.Time)
	RecordReconnect(source string)
}

// Options configure one client, which owns exactly one logical
// subscription set against one endpoint.
type Options struct {
	Source    string
	URL       string
	Topics    []string
	Heartbeat time.Duration
}

type subscribeMsg struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type pingMsg struct {
	Op string `json:"op"`
}

// Client maintains a venue websocket session and survives disconnects
// indefinitely. Every inbound text frame is decoded and handed to the
// caller's handler; transport faults trigger a jittered backoff and a
// fresh connect, never a fatal error.
type Client struct {
	opts     Options
	dial     Dialer
	policy   *backoff.Policy
	observer Observer
	logger   zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewClient constructs a streaming client. observer may be nil.
func NewClient(opts Options, dial Dialer, policy *backoff.Policy, observer Observer, logger zerolog.Logger) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("stream: url required for source %q", opts.Source)
	}
	if len(opts.Topics) == 0 {
		return nil, fmt.Errorf("stream: at least one topic required for source %q", opts.Source)
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 20 * time.Second
	}
	return &Client{
		opts:     opts,
		dial:     dial,
		policy:   policy,
		observer: observer,
		logger:   logger.With().Str("component", "stream").Str("source", opts.Source).Logger(),
		stop:     make(chan struct{}),
	}, nil
}

// Stop signals a cooperative exit. A Run blocked on a backoff delay
// returns promptly instead of sleeping it out.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Run connects, subscribes, and pumps messages to the handler until
// Stop is called or ctx is cancelled. The backoff policy resets to its
// base only after a session that actually delivered messages, so a
// connect-then-immediate-drop flap keeps escalating delays.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	for {
		if c.stopped(ctx) {
			return nil
		}

		conn, err := c.dial(ctx, c.opts.URL)
		if err != nil {
			c.logger.Warn().Err(err).Msg("connect failed")
			if !c.waitBackoff(ctx) {
				return nil
			}
			continue
		}

		delivered := c.session(ctx, conn, handler)
		if delivered {
			c.policy.Reset()
		}
		if c.stopped(ctx) {
			return nil
		}

		if c.observer != nil {
			c.observer.RecordReconnect(c.opts.Source)
		}
		if !c.waitBackoff(ctx) {
			return nil
		}
	}
}

// session drives one connection to exhaustion and reports whether any
// message made it to the handler.
func (c *Client) session(ctx context.Context, conn Conn, handler Handler) bool {
	defer conn.Close()

	sub, err := json.Marshal(subscribeMsg{Op: "subscribe", Args: c.opts.Topics})
	if err != nil {
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		c.logger.Warn().Err(err).Msg("subscribe failed")
		return false
	}
	c.logger.Info().Strs("topics", c.opts.Topics).Msg("subscribed")

	// The heartbeat and stop watcher both close the connection to
	// unblock the read loop; done stops them when the session ends.
	done := make(chan struct{})
	defer close(done)
	go c.heartbeat(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-c.stop:
			conn.Close()
		case <-done:
		}
	}()

	delivered := false
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !c.stopped(ctx) {
				c.logger.Warn().Err(err).Msg("read failed, reconnecting")
			}
			return delivered
		}

		var raw map[string]any
		if err := json.Unmarshal(frame, &raw); err != nil {
			// Malformed frames are dropped, never fatal.
			c.logger.Debug().Err(err).Msg("dropping undecodable frame")
			continue
		}

		c.safeHandle(handler, raw)
		delivered = true
		if c.observer != nil {
			c.observer.RecordMessage(c.opts.Source, time.Now().UTC())
		}
	}
}

// safeHandle keeps a panicking handler from killing the read loop.
func (c *Client) safeHandle(handler Handler, raw map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Any("panic", r).Msg("message handler panicked")
		}
	}()
	handler(raw)
}

// heartbeat pings on a fixed interval independent of inbound traffic.
// A failed ping closes the connection, which surfaces as a read error
// and triggers the reconnect path.
func (c *Client) heartbeat(conn Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.Heartbeat)
	defer ticker.Stop()

	ping, _ := json.Marshal(pingMsg{Op: "ping"})
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				c.logger.Warn().Err(err).Msg("heartbeat failed, dropping connection")
				conn.Close()
				return
			}
		}
	}
}

// waitBackoff sleeps the next policy delay; false means the client was
// stopped mid-wait.
func (c *Client) waitBackoff(ctx context.Context) bool {
	delay := c.policy.NextDelay()
	c.logger.Debug().Dur("delay", delay).Msg("waiting before reconnect")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.stop:
		return true
	default:
		return false
	}
}
