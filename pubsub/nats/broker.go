// Package nats provides a NATS-backed pubsub.Broker.
//
// NATS subjects map one-to-one onto pubsub topics, and NATS's native ">"
// wildcard covers the prefix subscriptions the runtime uses for event
// notifications. Message ID and type travel in headers.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fxsml/gocommand/pubsub"
)

// Header keys used to carry message identity across NATS.
const (
	HeaderID   = "Gocommand-Id"
	HeaderType = "Gocommand-Type"
)

// Config configures the NATS broker.
type Config struct {
	// URL is the NATS server URL (e.g. "nats://localhost:4222").
	// Ignored when Conn is set.
	URL string

	// Conn is an existing NATS connection to reuse. When set, Close
	// leaves it open.
	Conn *nats.Conn

	// ConnectTimeout is the timeout for the initial connection.
	// Default: 5 seconds.
	ConnectTimeout time.Duration

	// BufferSize is the channel buffer size for subscriptions.
	// Default: 256.
	BufferSize int
}

func (c Config) applyDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	return c
}

// Broker is a NATS-backed pubsub.Broker.
type Broker struct {
	config Config
	conn   *nats.Conn
	owned  bool
}

// NewBroker connects to NATS (or wraps an existing connection) and returns
// a broker.
func NewBroker(config Config) (*Broker, error) {
	cfg := config.applyDefaults()
	if cfg.Conn != nil {
		return &Broker{config: cfg, conn: cfg.Conn}, nil
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats: URL or Conn is required")
	}
	conn, err := nats.Connect(cfg.URL, nats.Timeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", cfg.URL, err)
	}
	return &Broker{config: cfg, conn: conn, owned: true}, nil
}

var _ pubsub.Broker = (*Broker)(nil)

// Send publishes messages to the topic as NATS subjects.
func (b *Broker) Send(ctx context.Context, topic string, msgs []*pubsub.Message) error {
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		nm := &nats.Msg{
			Subject: topic,
			Data:    msg.Data,
			Header:  nats.Header{},
		}
		if msg.ID != "" {
			nm.Header.Set(HeaderID, msg.ID)
		}
		if msg.Type != "" {
			nm.Header.Set(HeaderType, msg.Type)
		}
		for k, v := range msg.Attributes {
			nm.Header.Set(k, v)
		}
		if err := b.conn.PublishMsg(nm); err != nil {
			return fmt.Errorf("nats: publish to %s: %w", topic, err)
		}
	}
	return nil
}

// Receive subscribes to a subject pattern. NATS handles the ">" wildcard
// natively.
func (b *Broker) Receive(ctx context.Context, pattern string) (<-chan *pubsub.Message, error) {
	ch := make(chan *nats.Msg, b.config.BufferSize)
	sub, err := b.conn.ChanSubscribe(pattern, ch)
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe %s: %w", pattern, err)
	}

	out := make(chan *pubsub.Message)
	go func() {
		defer close(out)
		defer sub.Unsubscribe() //nolint:errcheck
		for {
			select {
			case nm, ok := <-ch:
				if !ok {
					return
				}
				msg := &pubsub.Message{
					ID:   nm.Header.Get(HeaderID),
					Type: nm.Header.Get(HeaderType),
					Data: nm.Data,
				}
				for k := range nm.Header {
					if k == HeaderID || k == HeaderType {
						continue
					}
					if msg.Attributes == nil {
						msg.Attributes = make(map[string]string)
					}
					msg.Attributes[k] = nm.Header.Get(k)
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close drains the connection when the broker owns it.
func (b *Broker) Close() error {
	if !b.owned {
		return nil
	}
	return b.conn.Drain()
}
