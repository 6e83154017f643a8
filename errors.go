package gocommand

import "errors"

var (
	// ErrUnregisteredCommand is returned when no route exists for the
	// dispatched command kind.
	ErrUnregisteredCommand = errors.New("gocommand: unregistered command")

	// ErrInvalidAggregateIdentity is returned when the identity rule yields
	// an empty or non-string value.
	ErrInvalidAggregateIdentity = errors.New("gocommand: invalid aggregate identity")

	// ErrTooManyAttempts is returned when optimistic concurrency retries
	// are exhausted.
	ErrTooManyAttempts = errors.New("gocommand: too many attempts")

	// ErrExecutionTimeout is returned when the dispatch deadline expires
	// before the aggregate instance replies. The instance finishes the
	// in-flight command regardless.
	ErrExecutionTimeout = errors.New("gocommand: aggregate execution timeout")

	// ErrExecutionFailed wraps an instance failure that is not a domain
	// error, such as a handler panic.
	ErrExecutionFailed = errors.New("gocommand: aggregate execution failed")

	// ErrConsistencyTimeout is returned when the appended events were not
	// acknowledged by the nominated subscribers in time. The append itself
	// succeeded.
	ErrConsistencyTimeout = errors.New("gocommand: consistency timeout")

	// ErrAggregateStopped is returned for commands queued on an instance
	// that terminated before executing them.
	ErrAggregateStopped = errors.New("gocommand: aggregate stopped")

	// ErrAppClosed is returned when dispatching on a closed application.
	ErrAppClosed = errors.New("gocommand: application closed")
)
