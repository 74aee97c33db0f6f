package actor

import (
	"context"
	"iter"
)

// OverflowPolicy governs what a bounded Mailbox does when Send is
// called against a full queue.
type OverflowPolicy int

const (
	// DropNewest discards the incoming envelope and reports it to dead
	// letters; the queue is left untouched.
	DropNewest OverflowPolicy = iota

	// DropOldest evicts the head of the queue to dead letters and
	// enqueues the incoming envelope.
	DropOldest

	// BlockSender blocks the caller of Send until space is available or
	// ctx is done.
	BlockSender

	// FailSender returns ErrMailboxFull immediately instead of blocking
	// or dropping, leaving retry policy to the caller (see SendMode).
	FailSender
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	case BlockSender:
		return "block-sender"
	case FailSender:
		return "fail-sender"
	default:
		return "unknown"
	}
}

// EnqueueOutcome reports what Send actually did, so a caller enforcing
// a SendMode retry policy knows whether to retry.
type EnqueueOutcome int

const (
	Enqueued EnqueueOutcome = iota
	EnqueuedAfterEviction
	RejectedFull
	RejectedClosed
)

// Mailbox is a bounded, per-cell FIFO queue. A Mailbox belongs to
// exactly one Cell; Send may be called concurrently by many senders,
// Receive and Drain are owned by the cell's single dispatch goroutine.
type Mailbox interface {
	// Send enqueues env according to the mailbox's OverflowPolicy,
	// blocking only under BlockSender. Returns the outcome and, for
	// RejectedClosed and for RejectedFull under FailSender or
	// BlockSender, a non-nil error; an envelope discarded under
	// DropNewest or DropOldest yields RejectedFull with a nil error.
	Send(ctx context.Context, env Envelope) (EnqueueOutcome, error)

	// Receive yields envelopes in FIFO order until ctx is done or the
	// mailbox is closed.
	Receive(ctx context.Context) iter.Seq[Envelope]

	// TryReceive pops one envelope without blocking, returning false if
	// none is currently queued. The scheduler-driven dispatch loop uses
	// this instead of Receive so a turn never blocks waiting for work
	// that may never arrive.
	TryReceive() (Envelope, bool)

	// Close marks the mailbox closed. Idempotent.
	Close()

	// IsClosed reports whether Close has been called.
	IsClosed() bool

	// Drain returns every envelope still queued after Close, for
	// delivery to dead letters. Valid only after Close.
	Drain() []Envelope

	// Flush discards every envelope currently queued without closing
	// the mailbox, for the restart directive's default
	// discard-mailbox behavior. The mailbox remains
	// open and ready to accept new envelopes afterward.
	Flush() []Envelope

	// Len reports the number of envelopes currently queued.
	Len() int

	// Cap reports the mailbox's configured capacity.
	Cap() int
}
