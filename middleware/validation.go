package middleware

import "github.com/fxsml/gocommand"

// Validatable is implemented by commands that can check their own
// invariants before dispatch.
type Validatable interface {
	Validate() error
}

// Validation halts dispatches of commands whose Validate method returns an
// error. Commands not implementing Validatable pass through.
func Validation() gocommand.Middleware {
	return validation{}
}

type validation struct{}

func (validation) BeforeDispatch(p *gocommand.Pipeline) {
	cmd, ok := p.Payload.Command.(Validatable)
	if !ok {
		return
	}
	if err := cmd.Validate(); err != nil {
		p.Err = err
		p.Halt()
	}
}

func (validation) AfterDispatch(*gocommand.Pipeline) {}
func (validation) AfterFailure(*gocommand.Pipeline)  {}
