package system

import (
	"context"
	"fmt"
	"time"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/internal/log"
)

// RouteSend implements plan.Router. A RESPONSE envelope is intercepted
// here rather than delivered into any mailbox: it resolves the pending
// ask in the correlation table and resumes the publisher's
// continuation.
func (s *System) RouteSend(ctx context.Context, to actor.Address, env actor.Envelope) (actor.EnqueueOutcome, error) {
	if env.IsResponse() {
		return s.resolveResponse(ctx, env)
	}
	return s.routeSend(ctx, to, env)
}

// routeSend delivers env to an already-live cell, or, if to names a
// registered virtual kind, activates one on demand through the
// virtual directory first.
func (s *System) routeSend(ctx context.Context, to actor.Address, env actor.Envelope) (actor.EnqueueOutcome, error) {
	if c, ok := s.lookupCell(to); ok {
		return s.countSend(c.Send(ctx, env))
	}

	s.mu.RLock()
	_, isVirtualKind := s.behaviors[to.Kind]
	s.mu.RUnlock()

	if isVirtualKind {
		addr, err := s.directory.Get(ctx, to.Kind, to.ID, to.Path)
		if err != nil {
			return actor.RejectedClosed, err
		}
		if c, ok := s.lookupCell(addr); ok {
			return s.countSend(c.Send(ctx, env))
		}
	}

	return actor.RejectedClosed, fmt.Errorf("%w: %s", actor.ErrTargetUnreachable, to.String())
}

// countSend bumps the system-wide message counter for every envelope a
// mailbox accepted, feeding GET_SYSTEM_INFO's MessageCount.
func (s *System) countSend(outcome actor.EnqueueOutcome, err error) (actor.EnqueueOutcome, error) {
	if outcome == actor.Enqueued || outcome == actor.EnqueuedAfterEviction {
		s.messageCount.Add(1)
	}
	return outcome, err
}

// resolveResponse looks up the pending ask for env's correlation id,
// invokes its OnOK continuation with the reply payload (OnError runs
// only from the deadline sweeper), and resumes the publisher
// with the resulting plan. An unknown correlation id means the ask
// already resolved (e.g. the deadline sweeper beat the reply here) and
// is not an error.
func (s *System) resolveResponse(ctx context.Context, env actor.Envelope) (actor.EnqueueOutcome, error) {
	cont, publisher, ok := s.correlation.Resolve(env.CorrelationID)
	if !ok {
		log.TraceS(ctx, "response for unknown or already-resolved correlation id",
			"corr_id", env.CorrelationID)
		return actor.Enqueued, nil
	}

	onOK := cont.OnOK
	if onOK == nil {
		onOK = func(any) actor.MessagePlan { return actor.Nothing{} }
	}
	p := onOK(env.Payload)
	return s.deliverContinuation(ctx, publisher, p)
}

// RunPlan implements correlation.Runner: it runs an ask's on_error
// continuation plan (computed by the deadline sweeper) as a turn of
// self.
func (s *System) RunPlan(ctx context.Context, self actor.Address, p actor.MessagePlan) error {
	_, err := s.deliverContinuation(ctx, self, p)
	return err
}

// deliverContinuation resumes publisher with plan. When publisher is
// backed by a live cell, the plan is wrapped in a SysContinuation
// envelope and enqueued like any other message, so it runs as an
// ordinary later turn under the cell's at-most-one-in-flight
// guarantee. When publisher has no backing cell (an external Ask/Tell
// caller has no cell to protect), the plan runs inline since there is
// no turn to serialize against.
func (s *System) deliverContinuation(ctx context.Context, publisher actor.Address, p actor.MessagePlan) (actor.EnqueueOutcome, error) {
	c, ok := s.lookupCell(publisher)
	if !ok {
		return actor.Enqueued, s.interpreter.Execute(ctx, publisher, p)
	}

	env := actor.Envelope{
		Type:      actor.SysContinuation,
		Payload:   p,
		Timestamp: time.Now().UnixNano(),
	}
	return c.Send(ctx, env)
}
