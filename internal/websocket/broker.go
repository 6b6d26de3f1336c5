package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valkey-io/valkey-go"
)

// Broker fans published messages out to every server instance. Each
// instance's hub delivers what it receives to its local subscribers.
type Broker interface {
	Publish(ctx context.Context, msg *Message) error
	// Run delivers every published message to deliver until ctx is done.
	Run(ctx context.Context, deliver func(*Message)) error
	Close()
}

// MemoryBroker is the single-instance broker.
type MemoryBroker struct {
	msgs chan *Message
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{msgs: make(chan *Message, 1024)}
}

func (b *MemoryBroker) Publish(ctx context.Context, msg *Message) error {
	select {
	case b.msgs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Run(ctx context.Context, deliver func(*Message)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-b.msgs:
			deliver(msg)
		}
	}
}

func (b *MemoryBroker) Close() {}

const DefaultValkeyTopic = "cupping-rooms:realtime"

// ValkeyBroker relays messages through a Valkey pub/sub topic so that
// clients connected to different instances see the same events.
type ValkeyBroker struct {
	client valkey.Client
	topic  string
	logger *slog.Logger
}

func NewValkeyClient(addr, password string) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{addr},
		Password:     password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create valkey client failed: %w", err)
	}
	return client, nil
}

func NewValkeyBroker(client valkey.Client, topic string, logger *slog.Logger) *ValkeyBroker {
	if topic == "" {
		topic = DefaultValkeyTopic
	}
	return &ValkeyBroker{client: client, topic: topic, logger: logger}
}

func (b *ValkeyBroker) Publish(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	cmd := b.client.B().Publish().Channel(b.topic).Message(valkey.BinaryString(data)).Build()
	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey publish: %w", err)
	}
	return nil
}

// Run subscribes to the topic and resubscribes with exponential backoff
// whenever the subscription drops.
func (b *ValkeyBroker) Run(ctx context.Context, deliver func(*Message)) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0

	for {
		err := b.client.Receive(ctx, b.client.B().Subscribe().Channel(b.topic).Build(), func(m valkey.PubSubMessage) {
			var msg Message
			if err := json.Unmarshal([]byte(m.Message), &msg); err != nil {
				b.logger.Warn("broker_decode_failed", "error", err)
				return
			}
			bo.Reset()
			deliver(&msg)
		})
		if ctx.Err() != nil {
			return nil
		}

		wait := bo.NextBackOff()
		b.logger.Warn("broker_subscription_lost", "error", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (b *ValkeyBroker) Close() {
	b.client.Close()
}
