package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tastelab/cupping-rooms/internal/metrics"
)

// Identity is the authenticated user behind a connection.
type Identity struct {
	ProfileID uuid.UUID
	ClerkID   string
}

// Authorizer decides whether an identity may subscribe to a channel.
type Authorizer interface {
	AuthorizeChannel(ctx context.Context, id Identity, channel string) error
}

type subscription struct {
	client  *Client
	channel string
}

// Hub owns the set of connected clients and their channel subscriptions.
// All membership changes and local fan-out happen on the Run goroutine.
type Hub struct {
	clients     map[*Client]bool
	channels    map[string]map[*Client]bool
	register    chan *Client
	unregister  chan *Client
	subscribe   chan *subscription
	unsubscribe chan *subscription
	deliver     chan *Message
	stop        chan struct{}
	done        chan struct{} // closed when Run() exits
	stopped     bool
	broker      Broker
	authorizer  Authorizer
	metrics     *metrics.Metrics
	logger      *slog.Logger
	mu          sync.RWMutex
}

func NewHub(broker Broker, authorizer Authorizer, m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		channels:    make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *subscription),
		unsubscribe: make(chan *subscription),
		deliver:     make(chan *Message, 256),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		broker:      broker,
		authorizer:  authorizer,
		metrics:     m,
		logger:      logger,
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	ctx, cancel := context.WithCancel(context.Background())
	brokerDone := make(chan struct{})
	go func() {
		defer close(brokerDone)
		if err := h.broker.Run(ctx, h.enqueue); err != nil {
			h.logger.Error("broker_stopped", "error", err)
		}
	}()

	for {
		select {
		case <-h.stop:
			cancel()
			<-brokerDone

			h.mu.Lock()
			h.stopped = true
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*Client]bool)
			h.channels = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			h.setClientGauge()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.setClientGauge()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for channel := range client.channels {
					h.removeSubscriber(channel, client)
				}
				client.Close()
			}
			h.mu.Unlock()
			h.setClientGauge()

		case sub := <-h.subscribe:
			h.mu.Lock()
			if h.clients[sub.client] {
				subs, ok := h.channels[sub.channel]
				if !ok {
					subs = make(map[*Client]bool)
					h.channels[sub.channel] = subs
				}
				subs[sub.client] = true
				sub.client.channels[sub.channel] = true
				sub.client.ack(MessageTypeSubscribed, sub.channel)
			}
			h.mu.Unlock()

		case sub := <-h.unsubscribe:
			h.mu.Lock()
			if h.clients[sub.client] {
				h.removeSubscriber(sub.channel, sub.client)
				delete(sub.client.channels, sub.channel)
				sub.client.ack(MessageTypeUnsubscribed, sub.channel)
			}
			h.mu.Unlock()

		case msg := <-h.deliver:
			h.fanOut(msg)
		}
	}
}

// Stop shuts down the hub and blocks until Run has exited.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	close(h.stop)
	<-h.done
}

// must be called with h.mu held
func (h *Hub) removeSubscriber(channel string, client *Client) {
	subs, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
}

func (h *Hub) enqueue(msg *Message) {
	select {
	case h.deliver <- msg:
	case <-h.stop:
	}
}

func (h *Hub) fanOut(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("fanout_marshal_failed", "channel", msg.Channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.channels[msg.Channel] {
		if msg.SenderID != "" && msg.SenderID == client.id {
			continue
		}
		client.trySend(data)
	}
}

func (h *Hub) setClientGauge() {
	if h.metrics == nil {
		return
	}
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	h.metrics.RealtimeClients.Set(float64(n))
}

// Publish sends a server event to every subscriber of channel on every
// instance.
func (h *Hub) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	msg, err := NewEvent(channel, event, payload)
	if err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.Broadcasts.WithLabelValues(event).Inc()
	}
	return h.broker.Publish(ctx, msg)
}

// relay forwards a client broadcast to the other subscribers of its channel.
func (h *Hub) relay(ctx context.Context, sender *Client, channel, event string, payload json.RawMessage) error {
	msg := &Message{
		Type:     MessageTypeEvent,
		Channel:  channel,
		Event:    event,
		Payload:  payload,
		SenderID: sender.id,
	}
	msg.SentAt = nowUTC()
	return h.broker.Publish(ctx, msg)
}

func (h *Hub) isSubscribed(client *Client, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[channel][client]
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stop:
		client.Close()
	}
}

// Unregister removes a client, handling the case where the hub is stopping.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
