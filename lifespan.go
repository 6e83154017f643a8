package gocommand

import "time"

type decisionKind uint8

const (
	decisionInfinity decisionKind = iota
	decisionStop
	decisionHibernate
	decisionTimeout
)

// Decision tells an aggregate instance what to do after handling an
// outcome: keep running, stop, hibernate, or arm an inactivity timer.
type Decision struct {
	kind    decisionKind
	timeout time.Duration
}

// Stop terminates the instance cleanly after the reply is sent.
func Stop() Decision { return Decision{kind: decisionStop} }

// Hibernate keeps the instance alive, persists a snapshot when the event
// store supports snapshots, and clears any inactivity timer.
func Hibernate() Decision { return Decision{kind: decisionHibernate} }

// Timeout arms an inactivity timer; the instance terminates when it fires
// without new commands arriving.
func Timeout(d time.Duration) Decision {
	return Decision{kind: decisionTimeout, timeout: d}
}

// Infinity keeps the instance alive indefinitely.
func Infinity() Decision { return Decision{kind: decisionInfinity} }

// Lifespan decides how long an aggregate instance remains in memory.
// After each command it is consulted once per produced event, or once for
// the command when it produced no events, or once for the error.
type Lifespan interface {
	// AfterCommand is consulted after a command that produced no events.
	AfterCommand(command any) Decision

	// AfterEvent is consulted once per produced event; the last decision
	// wins.
	AfterEvent(event any) Decision

	// AfterError is consulted after a failed execution.
	AfterError(err error) Decision
}

// KeepAlive keeps instances resident until the application closes.
// This is the system default lifespan.
var KeepAlive Lifespan = keepAlive{}

type keepAlive struct{}

func (keepAlive) AfterCommand(any) Decision { return Infinity() }
func (keepAlive) AfterEvent(any) Decision   { return Infinity() }
func (keepAlive) AfterError(error) Decision { return Infinity() }

// StopImmediately terminates the instance after every outcome. Useful for
// rarely-touched aggregates and for forcing rehydration in tests.
var StopImmediately Lifespan = stopImmediately{}

type stopImmediately struct{}

func (stopImmediately) AfterCommand(any) Decision { return Stop() }
func (stopImmediately) AfterEvent(any) Decision   { return Stop() }
func (stopImmediately) AfterError(error) Decision { return Stop() }

// StopAfterInactivity terminates the instance once no command has arrived
// for the given duration.
func StopAfterInactivity(d time.Duration) Lifespan {
	return inactivityLifespan{timeout: d}
}

type inactivityLifespan struct {
	timeout time.Duration
}

func (l inactivityLifespan) AfterCommand(any) Decision { return Timeout(l.timeout) }
func (l inactivityLifespan) AfterEvent(any) Decision   { return Timeout(l.timeout) }
func (l inactivityLifespan) AfterError(error) Decision { return Timeout(l.timeout) }
