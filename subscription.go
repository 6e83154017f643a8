package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/fxsml/gocommand/cloudevents"
	"github.com/fxsml/gocommand/eventstore"
)

// SubscriptionConfig configures an in-process event subscription.
type SubscriptionConfig struct {
	// Name identifies the subscriber; its acks are published under it.
	// The name's consistency guarantee comes from AppConfig.Subscribers;
	// undeclared names are eventual.
	Name string

	// StreamPrefix filters events to streams with this prefix.
	// Empty receives every stream.
	StreamPrefix string

	// Handler processes one recorded event. A non-nil error skips the
	// ack so the dispatch-side consistency wait keeps blocking.
	Handler func(ctx context.Context, event eventstore.RecordedEvent) error
}

// Subscription is a running in-process subscriber: it receives published
// events, hands them to the handler, and acknowledges processed versions.
type Subscription struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe starts an in-process subscription. It is enough to run
// projections in-process and to satisfy strong-consistency dispatches.
func (a *App) Subscribe(config SubscriptionConfig) (*Subscription, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("gocommand: subscription name is required")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("gocommand: subscription handler is required")
	}
	a.subscriberConsistency(config.Name)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := a.bus.Receive(ctx, EventsTopicPrefix+">")
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gocommand: subscribe %s: %w", config.Name, err)
	}

	sub := &Subscription{
		name:   config.Name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		for msg := range ch {
			rec, err := cloudevents.Decode(msg.Data)
			if err != nil {
				a.logger.Warn("subscription decode failed",
					"subscriber", config.Name, "error", err)
				continue
			}
			if config.StreamPrefix != "" && !strings.HasPrefix(rec.StreamID, config.StreamPrefix) {
				continue
			}
			if err := config.Handler(ctx, rec); err != nil {
				a.logger.Warn("subscription handler failed",
					"subscriber", config.Name, "stream", rec.StreamID,
					"version", rec.StreamVersion, "error", err)
				continue
			}
			if err := a.Ack(ctx, config.Name, rec.StreamID, rec.StreamVersion); err != nil {
				a.logger.Warn("subscription ack failed",
					"subscriber", config.Name, "stream", rec.StreamID, "error", err)
			}
		}
	}()

	go func() {
		select {
		case <-a.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	return sub, nil
}

// Name returns the subscriber name.
func (s *Subscription) Name() string { return s.name }

// Unsubscribe stops the subscription and waits for its loop to exit.
func (s *Subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}
