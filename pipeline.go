package gocommand

// Pipeline is the mutable record middleware operate on during a dispatch.
// It carries the payload, the eventual response or error, a halted flag,
// and an assigns map for passing data between middleware.
type Pipeline struct {
	// Payload is the dispatch payload.
	Payload *Payload

	// Response holds the dispatch result once the aggregate has replied.
	Response any

	// Err holds the failure that aborted the dispatch.
	Err error

	// Assigns carries cross-middleware data. Use Assign and Assigned.
	Assigns map[string]any

	halted bool
	reply  *executionReply
}

func newPipeline(payload *Payload) *Pipeline {
	return &Pipeline{
		Payload: payload,
		Assigns: make(map[string]any),
	}
}

// Halt short-circuits the dispatch: remaining before-middleware are
// skipped and the failure pass runs over the middleware already entered.
func (p *Pipeline) Halt() { p.halted = true }

// Halted reports whether the pipeline has been halted.
func (p *Pipeline) Halted() bool { return p.halted }

// Assign stores a value visible to later middleware and the inverse pass.
func (p *Pipeline) Assign(key string, value any) {
	if p.Assigns == nil {
		p.Assigns = make(map[string]any)
	}
	p.Assigns[key] = value
}

// Assigned retrieves a value stored with Assign.
func (p *Pipeline) Assigned(key string) (any, bool) {
	v, ok := p.Assigns[key]
	return v, ok
}

// Middleware hooks into the dispatch pipeline. BeforeDispatch runs in
// registration order; AfterDispatch and AfterFailure run in reverse order.
// All hooks mutate the pipeline in place.
type Middleware interface {
	BeforeDispatch(p *Pipeline)
	AfterDispatch(p *Pipeline)
	AfterFailure(p *Pipeline)
}
