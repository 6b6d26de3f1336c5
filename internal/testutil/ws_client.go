package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	gorillaWS "github.com/gorilla/websocket"

	"github.com/tastelab/cupping-rooms/internal/websocket"
)

// WSClient is a test realtime client.
type WSClient struct {
	t        *testing.T
	conn     *gorillaWS.Conn
	messages chan *websocket.Message
	errors   chan error
	done     chan struct{}
	mu       sync.Mutex
}

// NewWSClient connects to url and starts reading frames.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()

	dialer := *gorillaWS.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect to websocket: %v", err)
	}

	client := &WSClient{
		t:        t,
		conn:     conn,
		messages: make(chan *websocket.Message, 100),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}

	go client.readPump()

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

func (c *WSClient) readPump() {
	defer close(c.messages)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			case c.errors <- err:
			default:
			}
			return
		}

		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		select {
		case c.messages <- &msg:
		case <-c.done:
			return
		}
	}
}

// Close closes the WebSocket connection gracefully
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
		c.conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""))
		c.conn.Close()
	}
}

func (c *WSClient) write(msg websocket.Message) {
	c.t.Helper()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		c.t.Fatalf("failed to write message: %v", err)
	}
}

func (c *WSClient) Subscribe(channel string) {
	c.t.Helper()
	c.write(websocket.Message{Type: websocket.MessageTypeSubscribe, Channel: channel})
}

func (c *WSClient) Unsubscribe(channel string) {
	c.t.Helper()
	c.write(websocket.Message{Type: websocket.MessageTypeUnsubscribe, Channel: channel})
}

func (c *WSClient) Broadcast(channel, event string, payload interface{}) {
	c.t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("failed to marshal payload: %v", err)
	}
	c.write(websocket.Message{Type: websocket.MessageTypeBroadcast, Channel: channel, Event: event, Payload: data})
}

// SubscribeAndWait subscribes and waits for the acknowledgement.
func (c *WSClient) SubscribeAndWait(channel string, timeout time.Duration) {
	c.t.Helper()
	c.Subscribe(channel)
	msg := c.ExpectType(websocket.MessageTypeSubscribed, timeout)
	if msg.Channel != channel {
		c.t.Fatalf("subscribed to %q, want %q", msg.Channel, channel)
	}
}

// Expect waits for the first message matching match, discarding others.
func (c *WSClient) Expect(match func(*websocket.Message) bool, timeout time.Duration) *websocket.Message {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-c.messages:
			if !ok {
				c.t.Fatalf("connection closed while waiting for message")
				return nil
			}
			if match(msg) {
				return msg
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for message")
			return nil
		}
	}
}

func (c *WSClient) ExpectType(msgType websocket.MessageType, timeout time.Duration) *websocket.Message {
	c.t.Helper()
	return c.Expect(func(m *websocket.Message) bool { return m.Type == msgType }, timeout)
}

func (c *WSClient) ExpectEvent(event string, timeout time.Duration) *websocket.Message {
	c.t.Helper()
	return c.Expect(func(m *websocket.Message) bool {
		return m.Type == websocket.MessageTypeEvent && m.Event == event
	}, timeout)
}

// ExpectEventPayload waits for event and decodes its payload into v.
func (c *WSClient) ExpectEventPayload(event string, v interface{}, timeout time.Duration) *websocket.Message {
	c.t.Helper()
	msg := c.ExpectEvent(event, timeout)
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		c.t.Fatalf("failed to decode %s payload: %v", event, err)
	}
	return msg
}

// ExpectNoEvent fails if event arrives within wait.
func (c *WSClient) ExpectNoEvent(event string, wait time.Duration) {
	c.t.Helper()

	deadline := time.After(wait)
	for {
		select {
		case msg, ok := <-c.messages:
			if !ok {
				return
			}
			if msg.Type == websocket.MessageTypeEvent && msg.Event == event {
				c.t.Fatalf("unexpected %s event", event)
			}
		case <-deadline:
			return
		}
	}
}
