package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	authTimeout    = 5 * time.Second
)

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	id        string
	identity  Identity
	channels  map[string]bool // owned by the hub's Run goroutine
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, identity Identity) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		id:       uuid.NewString(),
		identity: identity,
		channels: make(map[string]bool),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Close closes the outbound queue; WritePump then closes the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket_read_failed", "client", c.id, "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("INVALID_MESSAGE", "message must be a JSON object")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if kind, _ := ParseChannel(msg.Channel); kind == ChannelUnknown {
			c.sendError("INVALID_CHANNEL", "unknown channel "+msg.Channel)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		err := c.hub.authorizer.AuthorizeChannel(ctx, c.identity, msg.Channel)
		cancel()
		if err != nil {
			c.sendError("FORBIDDEN", "not allowed to subscribe to "+msg.Channel)
			return
		}
		select {
		case c.hub.subscribe <- &subscription{client: c, channel: msg.Channel}:
		case <-c.hub.stop:
		}

	case MessageTypeUnsubscribe:
		select {
		case c.hub.unsubscribe <- &subscription{client: c, channel: msg.Channel}:
		case <-c.hub.stop:
		}

	case MessageTypeBroadcast:
		if msg.Event == "" {
			c.sendError("INVALID_PAYLOAD", "broadcast needs an event name")
			return
		}
		if !c.hub.isSubscribed(c, msg.Channel) {
			c.sendError("NOT_SUBSCRIBED", "subscribe to "+msg.Channel+" before broadcasting")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		err := c.hub.relay(ctx, c, msg.Channel, msg.Event, msg.Payload)
		cancel()
		if err != nil {
			c.hub.logger.Warn("relay_failed", "channel", msg.Channel, "error", err)
			c.sendError("BROADCAST_FAILED", "broadcast could not be delivered")
		}

	default:
		c.sendError("UNKNOWN_TYPE", "unknown message type "+string(msg.Type))
	}
}

func (c *Client) ack(msgType MessageType, channel string) {
	msg, _ := NewMessage(msgType, nil)
	msg.Channel = channel
	data, _ := json.Marshal(msg)
	c.trySend(data)
}

func (c *Client) sendError(code, message string) {
	msg, _ := NewMessage(MessageTypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
	data, _ := json.Marshal(msg)
	c.trySend(data)
}

// trySend queues data without blocking, safely handling a closed queue.
func (c *Client) trySend(data []byte) {
	defer func() {
		if recover() != nil {
			// Channel closed, client is disconnecting - skip silently
		}
	}()

	select {
	case c.send <- data:
	default:
		// Buffer full, skip
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// Serve registers a freshly upgraded connection and starts its pumps.
func (h *Hub) Serve(conn *websocket.Conn, identity Identity) *Client {
	client := NewClient(h, conn, identity)
	h.Register(client)
	go client.WritePump()
	go client.ReadPump()
	return client
}
