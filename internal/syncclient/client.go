// Package syncclient is a Go client for the realtime endpoint. It keeps a
// set of channel subscriptions alive across reconnects and tracks the
// server clock offset.
package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gorillaWS "github.com/gorilla/websocket"

	"github.com/tastelab/cupping-rooms/internal/websocket"
)

const (
	DefaultMaxAttempts  = 5
	DefaultMaxDelay     = 15 * time.Second
	DefaultInitialDelay = 500 * time.Millisecond
	writeWait           = 10 * time.Second
)

var ErrGaveUp = errors.New("realtime connection lost and retries exhausted")

type Options struct {
	// URL of the realtime endpoint, e.g. ws://host/api/v1/realtime.
	URL          string
	Token        string
	MaxAttempts  int
	MaxDelay     time.Duration
	InitialDelay time.Duration
	Logger       *slog.Logger
}

type Client struct {
	opts     Options
	clock    *Clock
	events   chan *websocket.Message
	channels map[string]bool
	conn     *gorillaWS.Conn
	mu       sync.Mutex
}

func New(opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = DefaultInitialDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		opts:     opts,
		clock:    NewClock(),
		events:   make(chan *websocket.Message, 256),
		channels: make(map[string]bool),
	}
}

func (c *Client) Clock() *Clock {
	return c.clock
}

// Events delivers server events. It is closed when Run returns.
func (c *Client) Events() <-chan *websocket.Message {
	return c.events
}

// Subscribe adds channel to the subscription set, sending the request now
// if connected and again after every reconnect.
func (c *Client) Subscribe(channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.channels[channel] = true
	if c.conn == nil {
		return nil
	}
	return c.writeLocked(websocket.Message{Type: websocket.MessageTypeSubscribe, Channel: channel})
}

func (c *Client) Unsubscribe(channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.channels, channel)
	if c.conn == nil {
		return nil
	}
	return c.writeLocked(websocket.Message{Type: websocket.MessageTypeUnsubscribe, Channel: channel})
}

// Broadcast sends an advisory event to the other subscribers of channel.
func (c *Client) Broadcast(channel, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	return c.writeLocked(websocket.Message{Type: websocket.MessageTypeBroadcast, Channel: channel, Event: event, Payload: data})
}

func (c *Client) writeLocked(msg websocket.Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.InitialDelay
	exp.MaxInterval = c.opts.MaxDelay
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.opts.MaxAttempts-1)), ctx)
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", c.opts.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) connect(ctx context.Context) error {
	target, err := c.dialURL()
	if err != nil {
		return backoff.Permanent(err)
	}

	conn, resp, err := gorillaWS.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return backoff.Permanent(fmt.Errorf("realtime handshake rejected: %s", resp.Status))
		}
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	for channel := range c.channels {
		if err := c.writeLocked(websocket.Message{Type: websocket.MessageTypeSubscribe, Channel: channel}); err != nil {
			c.conn = nil
			conn.Close()
			return err
		}
	}
	return nil
}

// Run connects and reads events until ctx is cancelled. A dropped
// connection is re-dialed with capped exponential backoff; Run gives up
// after MaxAttempts consecutive failures.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	for {
		if err := backoff.Retry(func() error { return c.connect(ctx) }, c.newBackOff(ctx)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrGaveUp, err)
		}
		c.opts.Logger.Debug("realtime_connected", "url", c.opts.URL)

		err := c.readLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.opts.Logger.Warn("realtime_disconnected", "error", err)
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		var msg websocket.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		c.clock.Observe(msg.SentAt, time.Now())

		select {
		case c.events <- &msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
