package gocommand

import (
	"time"

	"github.com/fxsml/gocommand/eventstore"
)

type consistencyKind uint8

const (
	consistencyDefault consistencyKind = iota
	consistencyEventual
	consistencyStrong
	consistencyExplicit
)

// Consistency controls whether a dispatch waits for downstream subscribers
// to acknowledge the produced events before returning.
//
// The zero value inherits the route or router default.
type Consistency struct {
	kind        consistencyKind
	subscribers []string
}

// Eventual returns immediately after the append; subscribers catch up on
// their own schedule. This is the system default.
var Eventual = Consistency{kind: consistencyEventual}

// Strong waits for every subscriber declared strongly consistent in the
// application to acknowledge the produced events.
var Strong = Consistency{kind: consistencyStrong}

// ConsistencyOf waits for exactly the named subscribers. Each name must be
// a subscriber declared Strong in AppConfig.Subscribers: an unknown or
// eventual-only name fails NewApp when set on a route or the router, and
// fails the dispatch when set in DispatchConfig.
func ConsistencyOf(subscribers ...string) Consistency {
	return Consistency{kind: consistencyExplicit, subscribers: subscribers}
}

func (c Consistency) isSet() bool { return c.kind != consistencyDefault }

// Returning selects the shape of a successful dispatch result.
type Returning int

const (
	// ReturnDefault inherits the route or router default.
	ReturnDefault Returning = iota

	// ReturnNone yields a nil result.
	ReturnNone

	// ReturnAggregateState yields the aggregate state after the command.
	ReturnAggregateState

	// ReturnAggregateVersion yields the aggregate version (int64) after
	// the command.
	ReturnAggregateVersion

	// ReturnExecutionResult yields a *ExecutionResult.
	ReturnExecutionResult
)

// NoTimeout disables the dispatch deadline.
const NoTimeout time.Duration = -1

// NoRetry disables optimistic concurrency retries: the first version
// conflict fails the dispatch.
const NoRetry = -1

// Payload carries everything one dispatch needs: the command, its
// identifiers and metadata, the resolved route, and the effective options.
// It is assembled by the dispatcher and lives for a single dispatch.
type Payload struct {
	// Command is the dispatched command value.
	Command any

	// CommandUUID uniquely identifies this dispatch. It becomes the
	// causation ID of every produced event.
	CommandUUID string

	// CausationID is the UUID of the message that caused this command,
	// if any.
	CausationID string

	// CorrelationID groups messages belonging to one business
	// transaction. Generated when absent.
	CorrelationID string

	// Metadata is merged into every produced event's metadata.
	Metadata map[string]any

	// Consistency, Returning, Timeout, and RetryAttempts are the
	// effective options after defaults merging.
	Consistency   Consistency
	Returning     Returning
	Timeout       time.Duration
	RetryAttempts int

	// Identity, IdentityPrefix, and StreamID are populated by the
	// identity extraction middleware.
	Identity       string
	IdentityPrefix string
	StreamID       string

	// Aggregate is the aggregate kind the command routes to.
	Aggregate AggregateType

	// Lifespan governs the target instance's lifetime.
	Lifespan Lifespan

	handler       ReplyHandlerFunc
	identityCfg   IdentityConfig
	snapshotEvery int64
	middleware    []Middleware
	app           *App
	deadline      time.Time
}

// App returns the application the payload dispatches through.
func (p *Payload) App() *App { return p.app }

// remaining reports the time left until the dispatch deadline, or ok=false
// when the dispatch is unbounded.
func (p *Payload) remaining() (time.Duration, bool) {
	if p.deadline.IsZero() {
		return 0, false
	}
	return time.Until(p.deadline), true
}

// ExecutionResult is the richest dispatch result shape, returned when the
// dispatch requests ReturnExecutionResult.
type ExecutionResult struct {
	// AggregateUUID is the stream ID of the executing aggregate.
	AggregateUUID string

	// AggregateState is the state after applying the produced events.
	AggregateState any

	// AggregateVersion is the stream version after the append.
	AggregateVersion int64

	// Events are the recorded events produced by the command.
	Events []eventstore.RecordedEvent

	// Metadata is the dispatch metadata.
	Metadata map[string]any

	// Reply is the domain reply from a ReplyHandlerFunc, if any.
	Reply any
}
