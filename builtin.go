package gocommand

import "context"

// identityExtraction resolves the aggregate identity per the routing
// configuration and populates the payload's stream ID. Runs first in the
// built-in chain so downstream middleware see a fully-populated payload.
type identityExtraction struct{}

func (identityExtraction) BeforeDispatch(p *Pipeline) {
	pay := p.Payload
	identity, prefix, streamID, err := pay.identityCfg.resolve(pay.Command)
	if err != nil {
		p.Err = ErrInvalidAggregateIdentity
		p.Halt()
		return
	}
	pay.Identity = identity
	pay.IdentityPrefix = prefix
	pay.StreamID = streamID
}

func (identityExtraction) AfterDispatch(*Pipeline) {}
func (identityExtraction) AfterFailure(*Pipeline)  {}

// consistencyGuarantee blocks a successful dispatch until the nominated
// subscribers have acknowledged the produced events, per the payload's
// consistency setting.
type consistencyGuarantee struct{}

func (consistencyGuarantee) BeforeDispatch(*Pipeline) {}

func (consistencyGuarantee) AfterDispatch(p *Pipeline) {
	pay := p.Payload
	if p.reply == nil || !p.reply.appended {
		return
	}

	subscribers := pay.app.requiredSubscribers(pay.Consistency)
	if len(subscribers) == 0 {
		return
	}

	ctx := context.Background()
	if remaining, ok := pay.remaining(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, remaining)
		defer cancel()
	}

	err := pay.app.coordinator.wait(ctx, pay.StreamID, p.reply.version, subscribers)
	if err != nil {
		// The append succeeded; only the wait failed.
		p.Err = ErrConsistencyTimeout
	}
}

func (consistencyGuarantee) AfterFailure(*Pipeline) {}
