package actor

import "time"

// MessagePlan is the declarative result of a behavior's OnMessage turn.
// It is a sealed, possibly-nested value; the Plan
// Interpreter (package actor/plan) normalizes and executes it. The
// sealed marker restricts valid variants to the ones defined in this
// file: Nothing, DomainEvent, SendInstruction, AskInstruction, and
// Sequence.
type MessagePlan interface {
	planMarker()
}

// Nothing is the plan a handler returns when it produced no side
// effect, or when it already committed its state internally and wants
// no further interpreter action. Returning Nothing{} must be
// indistinguishable, in its effect on the runtime, from a plan with
// zero elements after normalization.
type Nothing struct{}

func (Nothing) planMarker() {}

// DomainEvent is a bare object carrying a Type (and optional Payload).
// The interpreter fans it out two ways: it feeds the event back into
// the publishing behavior (a self-send), and it broadcasts it via the
// Event Bus as EMIT:<Type> to every matching subscriber, preserving
// publisher-local order.
type DomainEvent struct {
	Type    string
	Payload any
}

func (DomainEvent) planMarker() {}

// SendMode controls how a SendInstruction behaves when its target
// mailbox rejects the envelope under a fail-sender overflow policy.
type SendMode struct {
	// Retries is the number of additional attempts after the first,
	// with bounded backoff between attempts. Zero means fire-and-forget
	// with no retry.
	Retries int
}

// FireAndForget is the default SendMode: a single enqueue attempt, no
// retry on rejection.
var FireAndForget = SendMode{}

// Retry returns a SendMode that retries up to n additional times on a
// Rejected(Full) result from a fail-sender mailbox.
func Retry(n int) SendMode {
	return SendMode{Retries: n}
}

// SendInstruction enqueues Tell into To's mailbox, fire-and-forget.
type SendInstruction struct {
	To   Address
	Tell Envelope
	Mode SendMode
}

func (SendInstruction) planMarker() {}

// AskInstruction sends Ask to To and registers a pending entry in the
// Correlation Table. When a reply with a matching correlation id
// arrives, OnOK runs with the reply payload and its returned
// MessagePlan is executed as a future turn on the publisher cell.
// If the deadline (Timeout, defaulting to the system's
// default_ask_timeout_ms) expires first, OnError runs with an
// AskTimeout error if set; otherwise the runtime surfaces
// SYS:ASK_TIMEOUT to the publisher.
type AskInstruction struct {
	To      Address
	Ask     Envelope
	OnOK    func(reply any) MessagePlan
	OnError func(err error) MessagePlan
	Timeout time.Duration
}

func (AskInstruction) planMarker() {}

// Sequence is a finite ordered list of plan elements, executed in
// order. Sends do not block later elements; asks' continuations run in
// later turns when their reply arrives. Nested sequences are invalid
// and normalization fails with ErrInvalidPlan.
type Sequence struct {
	Elements []MessagePlan
}

func (Sequence) planMarker() {}

// Seq is a convenience constructor for Sequence.
func Seq(elements ...MessagePlan) MessagePlan {
	return Sequence{Elements: elements}
}
