// Package gocommand is a command-dispatch and aggregate-execution runtime
// for CQRS/event-sourcing applications.
//
// # Overview
//
// An application models its write side as aggregates: domain entities
// reconstructed by folding their past events. Clients dispatch commands;
// the runtime routes each command to the correct aggregate instance,
// rebuilds its state by replaying the event stream, executes the command
// to produce new events, and atomically appends them to the stream with
// optimistic-concurrency retry.
//
//	Dispatch → Router lookup → middleware (before) → aggregate instance
//	        → handler → append events → middleware (after) → caller
//
// # Core Components
//
//   - Router: immutable table binding command kinds to handler, aggregate,
//     identity rule, and lifespan
//   - App: the hosting runtime wiring event store, registry, and pub/sub
//   - Aggregate instances: one serialized goroutine per active identity
//   - Middleware: before/after/failure hooks over a mutable Pipeline
//   - Consistency: optionally block dispatch until downstream subscribers
//     have acknowledged the produced events
//
// # Example
//
//	account := gocommand.NewAggregate("BankAccount",
//		func(state BankAccount, event any) BankAccount {
//			switch e := event.(type) {
//			case AccountOpened:
//				state.Number, state.Balance = e.Number, e.Balance
//			case Deposited:
//				state.Balance += e.Amount
//			}
//			return state
//		})
//
//	router := gocommand.NewRouter(gocommand.RouterConfig{})
//	router.Identify("BankAccount", gocommand.IdentityConfig{
//		By:     gocommand.ByField("Number"),
//		Prefix: "bank-account-",
//	})
//	router.Register(gocommand.Route{
//		Command:   OpenAccount{},
//		Aggregate: account,
//		Handler: gocommand.NewHandler(
//			func(state BankAccount, cmd OpenAccount) ([]any, error) {
//				if state.Number != "" {
//					return nil, errors.New("account already open")
//				}
//				return []any{AccountOpened{Number: cmd.Number, Balance: cmd.Initial}}, nil
//			}),
//	})
//
//	app, _ := gocommand.NewApp(gocommand.AppConfig{
//		Router:     router,
//		EventStore: memory.NewStore(memory.Config{}),
//	})
//	_, err := app.Dispatch(ctx, OpenAccount{Number: "ACC1", Initial: 100})
//
// # Concurrency Model
//
// Each aggregate instance is a single-consumer actor with a bounded
// mailbox: commands to one identity execute strictly one at a time in
// FIFO order, while distinct identities execute fully in parallel. A
// dispatch deadline releases the caller without canceling the in-flight
// command, so the event store is never left half-written.
//
// # Consistency
//
// Dispatches default to eventual consistency. With Strong or an explicit
// subscriber set, the dispatch blocks until the nominated subscribers have
// acknowledged the produced events' versions, or fails with
// ErrConsistencyTimeout once the deadline lapses — the append itself has
// already succeeded.
package gocommand
