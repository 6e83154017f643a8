package gocommand

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DispatchConfig overrides routing defaults for a single dispatch.
// Zero values inherit; use NoTimeout and NoRetry for explicit "unbounded"
// and "no retries".
type DispatchConfig struct {
	// CausationID is the UUID of the message that caused this command.
	CausationID string

	// CorrelationID groups messages of one business transaction.
	// Generated when absent.
	CorrelationID string

	// Metadata is merged into every produced event's metadata.
	Metadata map[string]any

	// Consistency, Returning, Timeout, and RetryAttempts override route
	// and router defaults.
	Consistency   Consistency
	Returning     Returning
	Timeout       time.Duration
	RetryAttempts int
}

// Dispatch routes the command to its aggregate, executes it, and returns
// the result shaped per the effective Returning setting: nil, the
// aggregate state, the aggregate version (int64), or a *ExecutionResult.
func (a *App) Dispatch(ctx context.Context, command any) (any, error) {
	return a.DispatchWith(ctx, command, DispatchConfig{})
}

// DispatchWith dispatches with per-call overrides.
func (a *App) DispatchWith(ctx context.Context, command any, config DispatchConfig) (any, error) {
	if a.closed() {
		return nil, ErrAppClosed
	}
	entry, ok := a.router.route(command)
	if !ok {
		return nil, ErrUnregisteredCommand
	}

	payload := a.buildPayload(command, entry, config)
	if err := a.checkExplicitConsistency(payload.Consistency, "dispatch"); err != nil {
		return nil, err
	}
	pipeline := newPipeline(payload)

	// Before pass, in registration order. A halt short-circuits to the
	// failure pass over the middleware already entered. Panicking
	// middleware halt the dispatch instead of crashing the caller.
	entered := 0
	for _, m := range payload.middleware {
		if err := a.runHook(m.BeforeDispatch, pipeline); err != nil {
			pipeline.Err = err
			pipeline.Halt()
		}
		entered++
		if pipeline.Halted() {
			a.failurePass(pipeline, entered)
			return nil, pipeline.Err
		}
	}

	reply := a.execute(ctx, payload)
	if reply.err != nil {
		pipeline.Err = a.mapExecutionError(ctx, payload, reply.err)
		a.failurePass(pipeline, entered)
		return nil, pipeline.Err
	}

	pipeline.reply = &reply
	pipeline.Response = a.project(payload, &reply)

	// After pass, in reverse order.
	for idx := entered - 1; idx >= 0; idx-- {
		if err := a.runHook(payload.middleware[idx].AfterDispatch, pipeline); err != nil && pipeline.Err == nil {
			pipeline.Err = err
		}
	}
	if pipeline.Err != nil {
		return nil, pipeline.Err
	}
	return pipeline.Response, nil
}

// buildPayload merges dispatch, route, and router defaults into a Payload.
func (a *App) buildPayload(command any, entry *routeEntry, config DispatchConfig) *Payload {
	routerCfg := a.router.config

	correlationID := config.CorrelationID
	if correlationID == "" {
		correlationID = DefaultIDGenerator()
	}

	lifespan := entry.lifespan
	if lifespan == nil {
		lifespan = routerCfg.Lifespan
	}
	if lifespan == nil {
		lifespan = KeepAlive
	}

	identityCfg, _ := a.router.identityFor(entry)

	p := &Payload{
		Command:       command,
		CommandUUID:   DefaultIDGenerator(),
		CausationID:   config.CausationID,
		CorrelationID: correlationID,
		Metadata:      config.Metadata,
		Consistency:   mergeConsistency(config.Consistency, entry.consistency, routerCfg.Consistency),
		Returning:     mergeReturning(config.Returning, entry.returning, routerCfg.Returning),
		Timeout:       mergeTimeout(config.Timeout, entry.timeout, routerCfg.Timeout),
		RetryAttempts: mergeRetryAttempts(config.RetryAttempts, entry.retryAttempts, routerCfg.RetryAttempts),
		Aggregate:     entry.aggregate,
		Lifespan:      lifespan,
		handler:       entry.handler,
		identityCfg:   identityCfg,
		snapshotEvery: entry.snapshotEvery,
		middleware:    a.middleware,
		app:           a,
	}
	if p.Timeout > 0 {
		p.deadline = time.Now().Add(p.Timeout)
	}
	return p
}

// execute locates or spawns the aggregate instance and runs the command,
// re-routing to a fresh instance when the target stopped before executing.
func (a *App) execute(ctx context.Context, p *Payload) executionReply {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, p.deadline)
		defer cancel()
	}

	key := p.Aggregate.Name + "/" + p.StreamID
	for {
		handle, _, err := a.registry.StartOrLookup(key, func() any {
			return newInstance(a, p.Aggregate, p.StreamID, key)
		})
		if err != nil {
			return executionReply{err: err}
		}
		inst, ok := handle.(*instance)
		if !ok {
			return executionReply{err: errors.New("gocommand: registry returned foreign handle")}
		}

		r := inst.execute(ctx, p)
		if errors.Is(r.err, ErrAggregateStopped) && !r.appended {
			// The instance terminated before executing this command;
			// re-route to a fresh one.
			if ctx.Err() != nil {
				return executionReply{err: ctx.Err()}
			}
			continue
		}
		return r
	}
}

// mapExecutionError translates context expiry into the dispatch error
// taxonomy.
func (a *App) mapExecutionError(ctx context.Context, p *Payload, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !p.deadline.IsZero() && !time.Now().Before(p.deadline) {
		return ErrExecutionTimeout
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// project shapes the reply per the requested Returning.
func (a *App) project(p *Payload, r *executionReply) any {
	switch p.Returning {
	case ReturnAggregateState:
		return r.state
	case ReturnAggregateVersion:
		return r.version
	case ReturnExecutionResult:
		return &ExecutionResult{
			AggregateUUID:    p.StreamID,
			AggregateState:   r.state,
			AggregateVersion: r.version,
			Events:           r.events,
			Metadata:         p.Metadata,
			Reply:            r.reply,
		}
	default:
		return nil
	}
}

// failurePass runs the failure half of the chain in reverse over the
// middleware already entered. The original failure is never displaced by
// a panicking failure hook.
func (a *App) failurePass(pipeline *Pipeline, entered int) {
	for idx := entered - 1; idx >= 0; idx-- {
		if err := a.runHook(pipeline.Payload.middleware[idx].AfterFailure, pipeline); err != nil {
			a.logger.Warn("middleware failure hook panicked", "error", err)
		}
	}
}

// runHook invokes a middleware hook, converting panics into errors so a
// buggy middleware degrades to a failed dispatch instead of crashing the
// calling goroutine.
func (a *App) runHook(hook func(*Pipeline), pipeline *Pipeline) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: middleware panic: %v", ErrExecutionFailed, r)
		}
	}()
	hook(pipeline)
	return nil
}

func mergeConsistency(values ...Consistency) Consistency {
	for _, v := range values {
		if v.isSet() {
			return v
		}
	}
	return Eventual
}

func mergeReturning(values ...Returning) Returning {
	for _, v := range values {
		if v != ReturnDefault {
			return v
		}
	}
	return ReturnNone
}

func mergeTimeout(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v == NoTimeout {
			return 0
		}
		if v > 0 {
			return v
		}
	}
	return DefaultTimeout
}

func mergeRetryAttempts(values ...int) int {
	for _, v := range values {
		if v == NoRetry {
			return 0
		}
		if v > 0 {
			return v
		}
	}
	return DefaultRetryAttempts
}
