// Package plan implements the plan interpreter: it consumes the
// MessagePlan a behavior's turn returned and fans it
// out into mailbox sends, correlation-table registrations, and
// event-bus emissions. It depends only on package actor plus three
// small port interfaces it defines itself (Router, Correlator,
// Publisher), so the concrete mailbox/correlation/eventbus/cell
// packages can all be wired in by package system without an import
// cycle.
package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/internal/log"
)

// Router delivers an envelope to an address's mailbox, activating a
// virtual actor on first access if necessary.
type Router interface {
	RouteSend(ctx context.Context, to actor.Address, env actor.Envelope) (actor.EnqueueOutcome, error)
}

// Correlator registers an ask's continuation and returns the
// correlation id to stamp onto the outbound ask envelope.
type Correlator interface {
	RegisterAsk(publisher actor.Address, onOK func(any) actor.MessagePlan, onError func(error) actor.MessagePlan, timeout time.Duration) string
	CancelAsk(corrID string) bool
}

// Publisher fans a domain event out to every subscriber registered
// against a publisher address.
type Publisher interface {
	PublishEvent(ctx context.Context, publisher actor.Address, eventType string, payload any) error
}

// Interpreter executes normalized MessagePlans against the three
// ports above.
type Interpreter struct {
	router     Router
	correlator Correlator
	publisher  Publisher

	defaultAskTimeout time.Duration
}

// New constructs an Interpreter. defaultAskTimeout is applied to any
// AskInstruction whose Timeout is zero.
func New(router Router, correlator Correlator, publisher Publisher, defaultAskTimeout time.Duration) *Interpreter {
	return &Interpreter{
		router:            router,
		correlator:        correlator,
		publisher:         publisher,
		defaultAskTimeout: defaultAskTimeout,
	}
}

// Execute normalizes and runs plan on behalf of self, the cell whose
// turn produced it.
func (in *Interpreter) Execute(ctx context.Context, self actor.Address, p actor.MessagePlan) error {
	elements, err := Normalize(p)
	if err != nil {
		return err
	}
	for _, elem := range elements {
		if err := in.executeOne(ctx, self, elem); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interpreter) executeOne(ctx context.Context, self actor.Address, p actor.MessagePlan) error {
	switch v := p.(type) {
	case actor.Nothing:
		return nil

	case actor.DomainEvent:
		return in.publisher.PublishEvent(ctx, self, v.Type, v.Payload)

	case actor.SendInstruction:
		return in.executeSend(ctx, self, v)

	case actor.AskInstruction:
		return in.executeAsk(ctx, self, v)

	default:
		return fmt.Errorf("%w: unrecognized plan element %T", actor.ErrInvalidPlan, p)
	}
}

func (in *Interpreter) executeSend(ctx context.Context, self actor.Address, instr actor.SendInstruction) error {
	env := instr.Tell
	env.Sender = &self
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixNano()
	}

	attempts := instr.Mode.Retries + 1
	backoff := 5 * time.Millisecond
	var lastErr error
	var lastOutcome actor.EnqueueOutcome
	for i := 0; i < attempts; i++ {
		outcome, err := in.router.RouteSend(ctx, instr.To, env)
		if err == nil || outcome == actor.Enqueued || outcome == actor.EnqueuedAfterEviction {
			return nil
		}
		lastErr, lastOutcome = err, outcome
		if outcome != actor.RejectedFull {
			break
		}
		if i < attempts-1 {
			log.TraceS(ctx, "send instruction retrying after full mailbox",
				"from", self.String(), "to", instr.To.String(), "attempt", i+1)
			time.Sleep(backoff)
			backoff = min(backoff*2, 100*time.Millisecond)
		}
	}
	if lastOutcome == actor.RejectedFull && instr.Mode.Retries > 0 {
		return fmt.Errorf("%w: %w", actor.ErrSendFailed, lastErr)
	}
	return lastErr
}

func (in *Interpreter) executeAsk(ctx context.Context, self actor.Address, instr actor.AskInstruction) error {
	timeout := instr.Timeout
	if timeout <= 0 {
		timeout = in.defaultAskTimeout
	}

	onOK := instr.OnOK
	if onOK == nil {
		onOK = func(any) actor.MessagePlan { return actor.Nothing{} }
	}
	// A nil OnError is registered as is, so an expired ask surfaces
	// SYS:ASK_TIMEOUT to self.
	onError := instr.OnError

	corrID := in.correlator.RegisterAsk(self, onOK, onError, timeout)

	env := instr.Ask
	env.Sender = &self
	env.CorrelationID = corrID
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixNano()
	}

	if _, err := in.router.RouteSend(ctx, instr.To, env); err != nil {
		in.correlator.CancelAsk(corrID)
		if onError == nil {
			return nil
		}
		return in.Execute(ctx, self, onError(err))
	}
	return nil
}
