package gocommand

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/fxsml/gocommand/eventstore"
)

// execution is one dispatch request queued on an instance mailbox.
type execution struct {
	payload *Payload
	reply   chan executionReply
}

// executionReply is the richest result form; the dispatcher projects it to
// the requested Returning shape.
type executionReply struct {
	state    any
	version  int64
	events   []eventstore.RecordedEvent
	reply    any
	appended bool
	err      error
}

// instance is the per-identity serialized actor. It owns a mailbox and
// executes at most one command at a time; concurrent dispatches to the
// same identity queue, dispatches to different identities run in parallel.
type instance struct {
	app      *App
	typ      AggregateType
	streamID string
	key      string

	mailbox chan *execution
	stopped chan struct{}

	// Loop-owned; never touched outside the run goroutine.
	state           any
	version         int64
	snapshotVersion int64
	rehydrated      bool
	inactivity      time.Duration
}

func newInstance(app *App, typ AggregateType, streamID, key string) *instance {
	inst := &instance{
		app:      app,
		typ:      typ,
		streamID: streamID,
		key:      key,
		mailbox:  make(chan *execution, app.mailboxSize),
		stopped:  make(chan struct{}),
		state:    typ.New(),
	}
	go inst.run()
	return inst
}

// execute queues a dispatch on the instance and waits for its reply or the
// context deadline. The instance is not canceled on deadline expiry; it
// finishes the in-flight command so the event store stays consistent.
func (i *instance) execute(ctx context.Context, p *Payload) executionReply {
	exec := &execution{payload: p, reply: make(chan executionReply, 1)}

	select {
	case i.mailbox <- exec:
	case <-i.stopped:
		return executionReply{err: ErrAggregateStopped}
	case <-ctx.Done():
		return executionReply{err: ctx.Err()}
	}

	select {
	case r := <-exec.reply:
		return r
	case <-ctx.Done():
		return executionReply{err: ctx.Err()}
	case <-i.stopped:
		// The loop may have replied just before exiting.
		select {
		case r := <-exec.reply:
			return r
		default:
			return executionReply{err: ErrAggregateStopped}
		}
	}
}

func (i *instance) run() {
	defer i.shutdown()

	for {
		var timeout <-chan time.Time
		var timer *time.Timer
		if i.inactivity > 0 {
			timer = time.NewTimer(i.inactivity)
			timeout = timer.C
		}

		select {
		case exec := <-i.mailbox:
			if timer != nil {
				timer.Stop()
			}
			if i.handle(exec) {
				return
			}
		case <-timeout:
			i.app.logger.Debug("aggregate instance expired",
				"aggregate", i.typ.Name, "stream", i.streamID)
			return
		case <-i.app.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (i *instance) shutdown() {
	i.app.registry.Remove(i.key, i)
	close(i.stopped)
	for {
		select {
		case exec := <-i.mailbox:
			exec.reply <- executionReply{err: ErrAggregateStopped}
		default:
			return
		}
	}
}

// handle processes one execution and applies the lifespan decision.
// Returns true when the instance should stop.
func (i *instance) handle(exec *execution) (stop bool) {
	p := exec.payload

	// Instance work runs detached from the caller's deadline.
	ctx := context.Background()
	r := i.process(ctx, p)
	exec.reply <- r

	var d Decision
	switch {
	case r.err != nil:
		d = p.Lifespan.AfterError(r.err)
	case len(r.events) > 0:
		for _, rec := range r.events {
			d = p.Lifespan.AfterEvent(rec.Data)
		}
	default:
		d = p.Lifespan.AfterCommand(p.Command)
	}

	switch d.kind {
	case decisionStop:
		return true
	case decisionHibernate:
		i.hibernate(ctx, p)
	case decisionTimeout:
		i.inactivity = d.timeout
	case decisionInfinity:
		i.inactivity = 0
	}
	return false
}

// process rehydrates if needed, executes the handler, and appends the
// produced events with optimistic concurrency retry.
func (i *instance) process(ctx context.Context, p *Payload) executionReply {
	if !i.rehydrated {
		if err := i.rehydrate(ctx); err != nil {
			return executionReply{err: fmt.Errorf("gocommand: rehydrate %s: %w", i.streamID, err)}
		}
	}

	attempts := p.RetryAttempts
	for {
		events, reply, err := i.execHandler(p)
		if err != nil {
			return executionReply{err: err}
		}
		if len(events) == 0 {
			return executionReply{state: i.state, version: i.version, reply: reply}
		}

		recorded, err := i.app.store.Append(ctx, i.streamID, i.version, i.enrich(events, p))
		if errors.Is(err, eventstore.ErrWrongExpectedVersion) {
			if attempts <= 0 {
				return executionReply{err: ErrTooManyAttempts}
			}
			attempts--
			i.app.logger.Debug("version conflict, catching up",
				"aggregate", i.typ.Name, "stream", i.streamID,
				"version", i.version, "attempts_left", attempts)
			if err := i.catchUp(ctx); err != nil {
				return executionReply{err: fmt.Errorf("gocommand: catch up %s: %w", i.streamID, err)}
			}
			continue
		}
		if err != nil {
			return executionReply{err: fmt.Errorf("gocommand: append %s: %w", i.streamID, err)}
		}

		for _, rec := range recorded {
			i.state = i.typ.Apply(i.state, rec.Data)
			i.version++
		}
		i.maybeSnapshot(ctx, p)
		i.app.publishEvents(ctx, recorded)

		return executionReply{
			state:    i.state,
			version:  i.version,
			events:   recorded,
			reply:    reply,
			appended: true,
		}
	}
}

// execHandler invokes the command handler, converting panics into errors.
func (i *instance) execHandler(p *Payload) (events []any, reply any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panic: %v", ErrExecutionFailed, r)
		}
	}()
	return p.handler(i.state, p.Command)
}

// rehydrate rebuilds state from the latest snapshot plus the event tail.
func (i *instance) rehydrate(ctx context.Context) error {
	i.state = i.typ.New()
	i.version = 0
	i.snapshotVersion = 0

	if i.app.snapshots != nil && i.typ.stateType != nil {
		snap, err := i.app.snapshots.LoadSnapshot(ctx, i.streamID)
		switch {
		case err == nil:
			ptr := reflect.New(i.typ.stateType)
			if uerr := i.app.marshaler.Unmarshal(snap.Data, ptr.Interface()); uerr != nil {
				i.app.logger.Warn("snapshot decode failed, replaying full stream",
					"stream", i.streamID, "error", uerr)
			} else {
				i.state = ptr.Elem().Interface()
				i.version = snap.Version
				i.snapshotVersion = snap.Version
			}
		case errors.Is(err, eventstore.ErrNoSnapshot):
		default:
			return err
		}
	}

	if err := i.catchUp(ctx); err != nil {
		return err
	}
	i.rehydrated = true
	i.app.logger.Debug("aggregate rehydrated",
		"aggregate", i.typ.Name, "stream", i.streamID, "version", i.version)
	return nil
}

// catchUp folds events from version+1 to the stream head.
func (i *instance) catchUp(ctx context.Context) error {
	for {
		batch, err := i.app.store.ReadForward(ctx, i.streamID, i.version+1, i.app.readBatchSize)
		if errors.Is(err, eventstore.ErrStreamNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, rec := range batch {
			i.state = i.typ.Apply(i.state, rec.Data)
			i.version++
		}
		if len(batch) < i.app.readBatchSize {
			return nil
		}
	}
}

// enrich wraps domain events with IDs, type names, and causation,
// correlation, and caller metadata.
func (i *instance) enrich(events []any, p *Payload) []eventstore.Event {
	out := make([]eventstore.Event, 0, len(events))
	for _, e := range events {
		meta := make(map[string]any, len(p.Metadata)+2)
		for k, v := range p.Metadata {
			meta[k] = v
		}
		meta[eventstore.MetaCausationID] = p.CommandUUID
		meta[eventstore.MetaCorrelationID] = p.CorrelationID

		out = append(out, eventstore.Event{
			EventID:   DefaultIDGenerator(),
			EventType: i.app.naming.TypeName(typeOf(e)),
			Data:      e,
			Metadata:  meta,
		})
	}
	return out
}

// maybeSnapshot persists state once the version has advanced far enough
// past the last snapshot. Snapshot failures only cost replay time, so they
// are logged and swallowed.
func (i *instance) maybeSnapshot(ctx context.Context, p *Payload) {
	if p.snapshotEvery <= 0 || i.app.snapshots == nil || i.typ.stateType == nil {
		return
	}
	if i.version-i.snapshotVersion < p.snapshotEvery {
		return
	}
	i.snapshot(ctx)
}

func (i *instance) snapshot(ctx context.Context) {
	data, err := i.app.marshaler.Marshal(i.state)
	if err != nil {
		i.app.logger.Warn("snapshot marshal failed", "stream", i.streamID, "error", err)
		return
	}
	err = i.app.snapshots.SaveSnapshot(ctx, eventstore.Snapshot{
		StreamID: i.streamID,
		Version:  i.version,
		Data:     data,
	})
	if err != nil {
		i.app.logger.Warn("snapshot save failed", "stream", i.streamID, "error", err)
		return
	}
	i.snapshotVersion = i.version
}

// hibernate keeps the instance resident but flushes what can be rebuilt:
// it opportunistically snapshots so a later stop rehydrates cheaply.
func (i *instance) hibernate(ctx context.Context, p *Payload) {
	if i.app.snapshots != nil && i.typ.stateType != nil && i.version > i.snapshotVersion {
		i.snapshot(ctx)
	}
	i.inactivity = 0
}
