package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/fxsml/gocommand"
)

const recoverEnteredKey = "middleware.recover.entered"

// RecoveryError wraps a panic value with the stack trace.
// This allows panics to be converted to regular errors and handled gracefully.
type RecoveryError struct {
	// PanicValue is the original value that was passed to panic().
	PanicValue any
	// StackTrace contains the full stack trace at the point of panic.
	StackTrace string
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.PanicValue)
}

// Recover wraps user middleware with panic recovery. The wrapped chain
// keeps the dispatcher's ordering: BeforeDispatch runs in declared order,
// AfterDispatch and AfterFailure in reverse over the middleware entered.
// A panic in any hook is caught and converted into a RecoveryError; on the
// before pass it also halts the dispatch so the failure half runs.
func Recover(middleware ...gocommand.Middleware) gocommand.Middleware {
	return &recoverer{middleware: middleware}
}

type recoverer struct {
	middleware []gocommand.Middleware
}

func (r *recoverer) BeforeDispatch(p *gocommand.Pipeline) {
	entered := 0
	for _, m := range r.middleware {
		if err := safeHook(m.BeforeDispatch, p); err != nil {
			p.Assign(recoverEnteredKey, entered)
			p.Err = err
			p.Halt()
			return
		}
		entered++
		if p.Halted() {
			break
		}
	}
	p.Assign(recoverEnteredKey, entered)
}

func (r *recoverer) AfterDispatch(p *gocommand.Pipeline) {
	for idx := r.entered(p) - 1; idx >= 0; idx-- {
		if err := safeHook(r.middleware[idx].AfterDispatch, p); err != nil && p.Err == nil {
			p.Err = err
		}
	}
}

func (r *recoverer) AfterFailure(p *gocommand.Pipeline) {
	for idx := r.entered(p) - 1; idx >= 0; idx-- {
		// The original failure wins; a panicking failure hook only
		// fills in when no error is set.
		if err := safeHook(r.middleware[idx].AfterFailure, p); err != nil && p.Err == nil {
			p.Err = err
		}
	}
}

func (r *recoverer) entered(p *gocommand.Pipeline) int {
	if v, ok := p.Assigned(recoverEnteredKey); ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return len(r.middleware)
}

func safeHook(hook func(*gocommand.Pipeline), p *gocommand.Pipeline) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &RecoveryError{
				PanicValue: rec,
				StackTrace: string(debug.Stack()),
			}
		}
	}()
	hook(p)
	return nil
}
