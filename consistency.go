package gocommand

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fxsml/gocommand/pubsub"
)

// Topics used on the pub/sub bus.
const (
	// AckTopic carries subscriber acknowledgments.
	AckTopic = "gocommand.ack"

	// EventsTopicPrefix prefixes per-stream event notification topics.
	// The full topic is EventsTopicPrefix + streamID.
	EventsTopicPrefix = "gocommand.events."
)

// Ack is a subscriber acknowledgment: the subscriber has processed the
// stream up to and including the given version.
type Ack struct {
	Subscriber string `json:"subscriber"`
	StreamID   string `json:"stream_uuid"`
	Version    int64  `json:"version"`
}

// coordinator tracks per-stream acknowledgment high-water marks per
// subscriber and lets dispatches block until a required set has caught up.
type coordinator struct {
	logger Logger

	mu      sync.Mutex
	acks    map[string]map[string]int64
	waiters map[*waiter]struct{}
}

type waiter struct {
	streamID    string
	version     int64
	subscribers []string
	done        chan struct{}
}

func newCoordinator(logger Logger) *coordinator {
	return &coordinator{
		logger:  logger,
		acks:    make(map[string]map[string]int64),
		waiters: make(map[*waiter]struct{}),
	}
}

// start consumes the ack topic until the context is canceled.
func (c *coordinator) start(ctx context.Context, receiver pubsub.Receiver) error {
	ch, err := receiver.Receive(ctx, AckTopic)
	if err != nil {
		return err
	}
	go func() {
		for msg := range ch {
			var ack Ack
			if err := json.Unmarshal(msg.Data, &ack); err != nil {
				c.logger.Warn("malformed ack", "error", err)
				continue
			}
			c.record(ack)
		}
	}()
	return nil
}

// record updates the high-water mark and releases satisfied waiters.
// Acks are monotonic; a stale ack never lowers the mark.
func (c *coordinator) record(ack Ack) {
	c.mu.Lock()
	defer c.mu.Unlock()

	streamAcks, ok := c.acks[ack.StreamID]
	if !ok {
		streamAcks = make(map[string]int64)
		c.acks[ack.StreamID] = streamAcks
	}
	if ack.Version > streamAcks[ack.Subscriber] {
		streamAcks[ack.Subscriber] = ack.Version
	}

	for w := range c.waiters {
		if c.satisfied(w) {
			close(w.done)
			delete(c.waiters, w)
		}
	}
}

// satisfied reports whether every required subscriber has acked up to the
// waiter's version. Caller holds c.mu.
func (c *coordinator) satisfied(w *waiter) bool {
	streamAcks := c.acks[w.streamID]
	for _, sub := range w.subscribers {
		if streamAcks[sub] < w.version {
			return false
		}
	}
	return true
}

// wait blocks until the subscribers have acknowledged the stream up to
// version, or the context expires.
func (c *coordinator) wait(ctx context.Context, streamID string, version int64, subscribers []string) error {
	if len(subscribers) == 0 {
		return nil
	}

	w := &waiter{
		streamID:    streamID,
		version:     version,
		subscribers: subscribers,
		done:        make(chan struct{}),
	}

	c.mu.Lock()
	if c.satisfied(w) {
		c.mu.Unlock()
		return nil
	}
	c.waiters[w] = struct{}{}
	c.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiters, w)
		c.mu.Unlock()
		return ctx.Err()
	}
}
