// Package memory provides an in-process pub/sub broker.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fxsml/gocommand/pubsub"
)

// Config configures the broker behavior.
type Config struct {
	// BufferSize is the channel buffer size for each subscription.
	// Default: 256.
	BufferSize int

	// SendTimeout is the maximum duration of one Send call, covering
	// delivery to every matching subscriber. Zero means block until
	// delivered or context canceled.
	SendTimeout time.Duration
}

func (c Config) applyDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	return c
}

type subscription struct {
	pattern string
	ch      chan *pubsub.Message
	done    <-chan struct{}
}

// Broker is an in-process pubsub.Broker.
type Broker struct {
	config Config

	mu     sync.Mutex
	subs   []*subscription
	closed bool
}

// NewBroker creates a new in-process broker.
func NewBroker(config Config) *Broker {
	return &Broker{config: config.applyDefaults()}
}

var _ pubsub.Broker = (*Broker)(nil)

// Send delivers messages to every matching subscription.
func (b *Broker) Send(ctx context.Context, topic string, msgs []*pubsub.Message) error {
	if b.config.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.SendTimeout)
		defer cancel()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return pubsub.ErrBrokerClosed
	}
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		if !pubsub.Match(sub.pattern, topic) {
			continue
		}
		for _, msg := range msgs {
			select {
			case sub.ch <- msg:
			case <-sub.done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Receive subscribes to a topic pattern. The subscription ends when the
// context is canceled.
func (b *Broker) Receive(ctx context.Context, pattern string) (<-chan *pubsub.Message, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, pubsub.ErrBrokerClosed
	}
	sub := &subscription{
		pattern: pattern,
		ch:      make(chan *pubsub.Message, b.config.BufferSize),
		done:    ctx.Done(),
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	out := make(chan *pubsub.Message)
	go func() {
		defer close(out)
		defer b.remove(sub)
		for {
			select {
			case msg := <-sub.ch:
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

func (b *Broker) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Close shuts the broker down. Existing subscriptions stop receiving.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return pubsub.ErrBrokerClosed
	}
	b.closed = true
	b.subs = nil
	return nil
}
