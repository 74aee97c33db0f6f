package actor

import (
	"context"
	"time"
)

// Behavior is the message-handling logic and initial state an actor
// runs, swappable across restarts while bound to a stable Address.
// OnMessage is the only required method; OnStart, OnStop, and
// SupervisionStrategy are optional and detected via the Starter,
// Stopper, and Supervised interfaces below.
type Behavior interface {
	// OnMessage processes one envelope and returns the MessagePlan the
	// Plan Interpreter should execute. ctx is the context the scheduler
	// runs the turn under (cancelled when the scheduler stops); it
	// carries nothing from the sender's context.
	OnMessage(ctx context.Context, env Envelope) (MessagePlan, error)
}

// Starter is an optional hook run once before a behavior processes its
// first message, and again after every restart (a fresh incarnation
// re-runs OnStart from scratch).
type Starter interface {
	OnStart(ctx context.Context) (MessagePlan, error)
}

// Stopper is an optional cleanup hook run after the mailbox has been
// drained to dead letters, before the cell is marked stopped.
type Stopper interface {
	OnStop(ctx context.Context) error
}

// Supervised lets a behavior declare its own supervision strategy. A
// child without this interface runs under its parent's default
// strategy (see actor/supervisor.DefaultStrategy).
type Supervised interface {
	SupervisionStrategy() SupervisionStrategy
}

// Directive is the parent's response to a child's failure.
type Directive int

const (
	// Resume marks the child running again without re-initializing its
	// state. The offending envelope is moved to dead letters, never
	// redelivered, to prevent poison-message loops.
	Resume Directive = iota

	// Restart stops the child (discarding its mailbox by default),
	// increments its incarnation, and re-runs OnStart.
	Restart

	// Stop transitions the child to stopped and detaches it from its
	// parent's child set.
	Stop

	// Escalate treats the failure as the parent's own, propagating
	// SYS:CHILD_FAILED to the grandparent.
	Escalate
)

func (d Directive) String() string {
	switch d {
	case Resume:
		return "resume"
	case Restart:
		return "restart"
	case Stop:
		return "stop"
	case Escalate:
		return "escalate"
	default:
		return "unknown"
	}
}

// Failure describes a child's handler failure, passed to
// SupervisionStrategy.Decide.
type Failure struct {
	Child   Address
	Reason  error
	Attempt Envelope
}

// SupervisionStrategy is a per-behavior value controlling how a
// parent reacts to this child's failures.
type SupervisionStrategy struct {
	// Decide maps a failure to a directive. If nil, DefaultDecide is
	// used (always Restart).
	Decide func(Failure) Directive

	// MaxRetries is the restart budget within Window. Exceeding it
	// upgrades the directive to OnBudgetExceeded (default Stop).
	MaxRetries int

	// Window bounds the rolling restart-count window.
	Window time.Duration

	// Backoff separates consecutive restarts.
	Backoff time.Duration

	// OnBudgetExceeded is the directive applied once MaxRetries is
	// exceeded within Window. The zero value (Resume) is replaced by
	// Stop when the strategy is registered with a supervisor, so the
	// settings that take effect are Stop (the default) and Escalate.
	OnBudgetExceeded Directive
}

// DefaultDecide always restarts; it is the fallback when a
// SupervisionStrategy has a nil Decide func.
func DefaultDecide(Failure) Directive {
	return Restart
}

// BehaviorFunc adapts a plain function to the Behavior interface, for
// actors that need no start/stop hooks.
type BehaviorFunc func(ctx context.Context, env Envelope) (MessagePlan, error)

// OnMessage implements Behavior.
func (f BehaviorFunc) OnMessage(ctx context.Context, env Envelope) (MessagePlan, error) {
	return f(ctx, env)
}
