package gocommand

import (
	"fmt"
	"reflect"
)

// AggregateType describes an aggregate kind: its name, its zero-value state,
// and the fold function applying one event to the state.
//
// Use NewAggregate to build one from typed functions.
type AggregateType struct {
	// Name identifies the aggregate kind and scopes instance keys.
	Name string

	// New returns the zero-value state of a fresh aggregate.
	New func() any

	// Apply folds a single event into the state and returns the new state.
	Apply func(state any, event any) any

	stateType reflect.Type
}

// NewAggregate builds an AggregateType from a typed apply function. The
// aggregate state starts at the zero value of S.
func NewAggregate[S any](name string, apply func(state S, event any) S) AggregateType {
	return AggregateType{
		Name: name,
		New: func() any {
			var zero S
			return zero
		},
		Apply: func(state any, event any) any {
			s, ok := state.(S)
			if !ok {
				var zero S
				s = zero
			}
			return apply(s, event)
		},
		stateType: reflect.TypeOf((*S)(nil)).Elem(),
	}
}

func (t AggregateType) validate() error {
	if t.Name == "" {
		return fmt.Errorf("gocommand: aggregate name is required")
	}
	if t.New == nil {
		return fmt.Errorf("gocommand: aggregate %q has no zero-state constructor", t.Name)
	}
	if t.Apply == nil {
		return fmt.Errorf("gocommand: aggregate %q has no apply function", t.Name)
	}
	return nil
}

// HandlerFunc executes a command against the current aggregate state and
// returns the resulting events. A non-nil error is surfaced to the caller
// verbatim and no events are appended.
type HandlerFunc func(state any, command any) ([]any, error)

// ReplyHandlerFunc is a HandlerFunc that additionally returns a domain
// reply. The reply is forwarded only when the dispatch requests
// ReturnExecutionResult; otherwise it is dropped.
type ReplyHandlerFunc func(state any, command any) ([]any, any, error)

// NewHandler builds a HandlerFunc from a typed handle function. The command
// may be dispatched as C or *C.
func NewHandler[S, C any](handle func(state S, command C) ([]any, error)) HandlerFunc {
	return func(state any, command any) ([]any, error) {
		s, cmd, err := coerce[S, C](state, command)
		if err != nil {
			return nil, err
		}
		return handle(s, cmd)
	}
}

// NewReplyHandler builds a ReplyHandlerFunc from a typed handle function.
func NewReplyHandler[S, C any](handle func(state S, command C) ([]any, any, error)) ReplyHandlerFunc {
	return func(state any, command any) ([]any, any, error) {
		s, cmd, err := coerce[S, C](state, command)
		if err != nil {
			return nil, nil, err
		}
		return handle(s, cmd)
	}
}

func coerce[S, C any](state any, command any) (S, C, error) {
	s, ok := state.(S)
	if !ok && state != nil {
		var zero S
		var zeroC C
		return zero, zeroC, fmt.Errorf("gocommand: handler state type mismatch: got %T", state)
	}
	cmd, ok := command.(C)
	if !ok {
		if p, isPtr := command.(*C); isPtr {
			cmd = *p
		} else {
			var zeroC C
			return s, zeroC, fmt.Errorf("gocommand: handler command type mismatch: got %T", command)
		}
	}
	return s, cmd, nil
}
