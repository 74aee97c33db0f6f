package actor

import "errors"

// Sentinel errors returned by the core runtime packages.
var (
	// ErrMailboxFull is returned by Mailbox.Send under FailSender when
	// the queue is at capacity.
	ErrMailboxFull = errors.New("actor: mailbox full")

	// ErrMailboxClosed is returned by Mailbox.Send once Close has been
	// called.
	ErrMailboxClosed = errors.New("actor: mailbox closed")

	// ErrActorTerminated is returned when an operation targets a cell
	// that has already stopped.
	ErrActorTerminated = errors.New("actor: actor terminated")

	// ErrUnknownKind is returned by the virtual directory when no
	// behavior factory is registered for a kind.
	ErrUnknownKind = errors.New("actor: unknown virtual kind")

	// ErrSystemSaturated is returned by spawn when max_actors would be
	// exceeded.
	ErrSystemSaturated = errors.New("actor: system saturated")

	// ErrInvalidPlan is returned by the Plan Interpreter when a
	// MessagePlan is malformed, such as a Sequence nested inside another
	// Sequence.
	ErrInvalidPlan = errors.New("actor: invalid message plan")

	// ErrAskTimeout is returned to an ask caller, and passed to
	// AskInstruction.OnError, when a reply does not arrive before the
	// ask's deadline.
	ErrAskTimeout = errors.New("actor: ask timed out")

	// ErrAskCancelled is returned when an ask's context is cancelled
	// before a reply or timeout.
	ErrAskCancelled = errors.New("actor: ask cancelled")

	// ErrTargetUnreachable is returned when a send or ask targets an
	// address that does not resolve to any cell and is not a
	// registered virtual kind.
	ErrTargetUnreachable = errors.New("actor: target unreachable")

	// ErrSendFailed is surfaced when a SendInstruction with Retry(N)
	// exhausts its attempts against a fail-sender mailbox still full on
	// the final try.
	ErrSendFailed = errors.New("actor: send failed after retries")
)
