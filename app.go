package gocommand

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fxsml/gocommand/cloudevents"
	"github.com/fxsml/gocommand/eventstore"
	"github.com/fxsml/gocommand/pubsub"
	"github.com/fxsml/gocommand/pubsub/memory"
)

// SubscriberConfig declares a downstream subscriber known to the
// application and its consistency guarantee.
type SubscriberConfig struct {
	// Name identifies the subscriber in acks and explicit consistency
	// sets.
	Name string

	// Consistency is the subscriber's declared guarantee. Strong
	// subscribers are awaited by Strong dispatches and may be named in
	// explicit sets; Eventual subscribers may not.
	Consistency Consistency
}

// AppConfig configures an application.
type AppConfig struct {
	// Router is the routing table. Required.
	Router *Router

	// EventStore persists aggregate streams. Required. When it also
	// implements eventstore.SnapshotStore, snapshotting is enabled for
	// routes with SnapshotEvery set.
	EventStore eventstore.Store

	// PubSub carries event notifications and subscriber acks.
	// Default: an in-process broker.
	PubSub pubsub.Broker

	// Registry provides find-or-create for aggregate instances.
	// Default: NewLocalRegistry().
	Registry Registry

	// Logger for operational logging. Default: slog via DefaultLogger().
	Logger Logger

	// Marshaler serializes snapshot state. Default: JSON.
	Marshaler Marshaler

	// Subscribers declares the downstream subscribers and their
	// consistency guarantees.
	Subscribers []SubscriberConfig

	// EventSource is the CloudEvents source on published events.
	// Default: "gocommand".
	EventSource string

	// InstanceMailbox is the per-instance command queue depth.
	// Default: 16.
	InstanceMailbox int

	// ReadBatchSize is the rehydration read chunk size. Default: 100.
	ReadBatchSize int
}

// App hosts the dispatch runtime: the routing table, the event store, the
// registry of live aggregate instances, the pub/sub bus, and the
// consistency coordinator.
type App struct {
	router      *Router
	store       eventstore.Store
	snapshots   eventstore.SnapshotStore
	bus         pubsub.Broker
	registry    Registry
	logger      Logger
	marshaler   Marshaler
	naming      NamingStrategy
	coordinator *coordinator
	middleware  []Middleware

	eventSource   string
	mailboxSize   int
	readBatchSize int

	mu          sync.Mutex
	subscribers map[string]Consistency

	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewApp validates the configuration and starts the application. The
// returned App is ready to dispatch.
func NewApp(config AppConfig) (*App, error) {
	if config.Router == nil {
		return nil, fmt.Errorf("gocommand: router is required")
	}
	if config.EventStore == nil {
		return nil, fmt.Errorf("gocommand: event store is required")
	}
	if err := config.Router.validateRoutes(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = DefaultLogger()
	}
	bus := config.PubSub
	if bus == nil {
		bus = memory.NewBroker(memory.Config{})
	}
	registry := config.Registry
	if registry == nil {
		registry = NewLocalRegistry()
	}
	marshaler := config.Marshaler
	if marshaler == nil {
		marshaler = NewJSONMarshaler()
	}
	mailboxSize := config.InstanceMailbox
	if mailboxSize <= 0 {
		mailboxSize = 16
	}
	readBatchSize := config.ReadBatchSize
	if readBatchSize <= 0 {
		readBatchSize = 100
	}
	eventSource := config.EventSource
	if eventSource == "" {
		eventSource = cloudevents.DefaultSource
	}

	subscribers := make(map[string]Consistency, len(config.Subscribers))
	for _, sub := range config.Subscribers {
		if sub.Name == "" {
			return nil, fmt.Errorf("gocommand: subscriber name is required")
		}
		if _, ok := subscribers[sub.Name]; ok {
			return nil, fmt.Errorf("gocommand: subscriber %q declared twice", sub.Name)
		}
		c := sub.Consistency
		if !c.isSet() {
			c = Eventual
		}
		subscribers[sub.Name] = c
	}

	snapshots, _ := config.EventStore.(eventstore.SnapshotStore)

	app := &App{
		router:        config.Router,
		store:         config.EventStore,
		snapshots:     snapshots,
		bus:           bus,
		registry:      registry,
		logger:        logger,
		marshaler:     marshaler,
		naming:        config.Router.config.Naming,
		coordinator:   newCoordinator(logger),
		eventSource:   eventSource,
		mailboxSize:   mailboxSize,
		readBatchSize: readBatchSize,
		subscribers:   subscribers,
		done:          make(chan struct{}),
	}

	app.middleware = make([]Middleware, 0, len(config.Router.config.Middleware)+2)
	app.middleware = append(app.middleware, config.Router.config.Middleware...)
	app.middleware = append(app.middleware, identityExtraction{}, consistencyGuarantee{})

	if err := app.validateConsistency(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	if err := app.coordinator.start(ctx, bus); err != nil {
		cancel()
		return nil, fmt.Errorf("gocommand: start consistency coordinator: %w", err)
	}
	return app, nil
}

// checkExplicitConsistency rejects explicit sets naming unknown or
// eventual-only subscribers.
func (a *App) checkExplicitConsistency(c Consistency, where string) error {
	if c.kind != consistencyExplicit {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, name := range c.subscribers {
		declared, ok := a.subscribers[name]
		if !ok {
			return fmt.Errorf("gocommand: %s names unknown subscriber %q", where, name)
		}
		if declared.kind != consistencyStrong {
			return fmt.Errorf("gocommand: %s names eventual-only subscriber %q", where, name)
		}
	}
	return nil
}

// validateConsistency checks every explicit consistency set registered on
// the router, at configuration time.
func (a *App) validateConsistency() error {
	if err := a.checkExplicitConsistency(a.router.config.Consistency, "router default consistency"); err != nil {
		return err
	}
	a.router.mu.Lock()
	entries := make([]*routeEntry, 0, len(a.router.routes))
	for _, e := range a.router.routes {
		entries = append(entries, e)
	}
	a.router.mu.Unlock()
	for _, e := range entries {
		if err := a.checkExplicitConsistency(e.consistency, "route for "+e.commandType.Name()); err != nil {
			return err
		}
	}
	return nil
}

// requiredSubscribers computes which subscribers a dispatch must wait for.
func (a *App) requiredSubscribers(c Consistency) []string {
	switch c.kind {
	case consistencyStrong:
		a.mu.Lock()
		defer a.mu.Unlock()
		var names []string
		for name, declared := range a.subscribers {
			if declared.kind == consistencyStrong {
				names = append(names, name)
			}
		}
		return names
	case consistencyExplicit:
		return c.subscribers
	default:
		return nil
	}
}

// subscriberConsistency reports the declared consistency for a subscriber
// name, registering unknown names as eventual.
func (a *App) subscriberConsistency(name string) Consistency {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.subscribers[name]
	if !ok {
		c = Eventual
		a.subscribers[name] = c
	}
	return c
}

// publishEvents notifies the bus of appended events as CloudEvents.
// Publication is best-effort; the append is already durable.
func (a *App) publishEvents(ctx context.Context, recorded []eventstore.RecordedEvent) {
	if len(recorded) == 0 {
		return
	}
	topic := EventsTopicPrefix + recorded[0].StreamID
	msgs := make([]*pubsub.Message, 0, len(recorded))
	for _, rec := range recorded {
		data, err := cloudevents.Encode(rec, a.eventSource)
		if err != nil {
			a.logger.Warn("event encode failed",
				"stream", rec.StreamID, "type", rec.EventType, "error", err)
			continue
		}
		msgs = append(msgs, &pubsub.Message{
			ID:   rec.EventID,
			Type: rec.EventType,
			Data: data,
		})
	}
	if err := a.bus.Send(ctx, topic, msgs); err != nil {
		a.logger.Warn("event publish failed", "topic", topic, "error", err)
	}
}

// Ack publishes a subscriber acknowledgment for a stream version. External
// subscribers call this after processing events; in-process subscriptions
// ack automatically.
func (a *App) Ack(ctx context.Context, subscriber, streamID string, version int64) error {
	data, err := json.Marshal(Ack{Subscriber: subscriber, StreamID: streamID, Version: version})
	if err != nil {
		return err
	}
	return a.bus.Send(ctx, AckTopic, []*pubsub.Message{{
		ID:   DefaultIDGenerator(),
		Type: "ack",
		Data: data,
	}})
}

// Close stops the coordinator and in-process subscriptions, signals every
// aggregate instance to exit, and rejects further dispatches. It returns
// without waiting; a command already executing on an instance runs to
// completion.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.cancel()
	})
	return nil
}

func (a *App) closed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
