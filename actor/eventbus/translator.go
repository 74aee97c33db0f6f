package eventbus

import (
	"context"

	"github.com/cellgrid/actorsys/actor"
)

// Sender forwards an envelope to a concrete address. *system.System
// satisfies this with its Tell method; tests can substitute a fake.
type Sender interface {
	Tell(ctx context.Context, to actor.Address, env actor.Envelope) (actor.EnqueueOutcome, error)
}

// Translator adapts a publisher's domain-event vocabulary into a
// subscriber's own message vocabulary: a subscriber written against
// one message type can still receive events from a publisher that
// speaks a different one, without either side knowing about the
// other's shape.
type Translator struct {
	target actor.Address
	sender Sender
	mapFn  func(actor.Envelope) (actor.Envelope, bool)
}

// NewTranslator builds a Translator that forwards to target through
// sender. mapFn receives the incoming EMIT: envelope and returns the
// envelope to forward plus whether to forward it at all; returning
// false drops the event silently (e.g. a topic the subscriber
// registered for but doesn't actually care about this occurrence of).
func NewTranslator(sender Sender, target actor.Address, mapFn func(actor.Envelope) (actor.Envelope, bool)) *Translator {
	return &Translator{sender: sender, target: target, mapFn: mapFn}
}

// Tell transforms env via mapFn and forwards the result to the
// wrapped target. A false from mapFn is treated as a no-op delivery,
// not a failure.
func (t *Translator) Tell(ctx context.Context, env actor.Envelope) (actor.EnqueueOutcome, error) {
	out, ok := t.mapFn(env)
	if !ok {
		return actor.Enqueued, nil
	}
	return t.sender.Tell(ctx, t.target, out)
}

// Target returns the address this translator ultimately forwards to.
func (t *Translator) Target() actor.Address {
	return t.target
}
