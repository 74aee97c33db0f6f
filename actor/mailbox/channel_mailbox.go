// Package mailbox provides the bounded, per-cell envelope queue:
// strict FIFO over actor.Envelope with four overflow policies.
package mailbox

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/internal/log"
)

// DeadLetterSink receives envelopes the mailbox could not keep:
// evicted under drop-oldest/drop-newest. Close does not report to it;
// envelopes left behind are returned by Drain instead.
type DeadLetterSink interface {
	DeadLetter(to actor.Address, env actor.Envelope, reason error)
}

// ChannelMailbox is a Mailbox implementation backed by a Go channel.
// Send holds a read lock for its whole body and Close takes the write
// lock before closing, so the channel can never be closed while a
// Send is in flight.
type ChannelMailbox struct {
	self   actor.Address
	policy actor.OverflowPolicy
	dlo    DeadLetterSink

	cap int
	ch  chan actor.Envelope

	closed    atomic.Bool
	mu        sync.RWMutex
	closeOnce sync.Once

	// queueMu serializes DropOldest's evict-then-enqueue pair against
	// concurrent evictions by other senders; the other three policies
	// need no extra coordination beyond the channel itself.
	queueMu sync.Mutex

	actorCtx context.Context
}

// New creates a mailbox of the given capacity and overflow policy,
// scoped to the owning cell's lifecycle context and address.
func New(actorCtx context.Context, self actor.Address, capacity int, policy actor.OverflowPolicy, dlo DeadLetterSink) *ChannelMailbox {
	if capacity <= 0 {
		capacity = 1
	}

	m := &ChannelMailbox{
		self:     self,
		policy:   policy,
		dlo:      dlo,
		cap:      capacity,
		ch:       make(chan actor.Envelope, capacity),
		actorCtx: actorCtx,
	}
	return m
}

// Send implements actor.Mailbox.
func (m *ChannelMailbox) Send(ctx context.Context, env actor.Envelope) (actor.EnqueueOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return actor.RejectedClosed, actor.ErrMailboxClosed
	}

	switch m.policy {
	case actor.BlockSender:
		select {
		case m.ch <- env:
			return actor.Enqueued, nil
		case <-ctx.Done():
			return actor.RejectedFull, ctx.Err()
		case <-m.actorCtx.Done():
			return actor.RejectedClosed, actor.ErrActorTerminated
		}

	case actor.FailSender:
		select {
		case m.ch <- env:
			return actor.Enqueued, nil
		default:
			return actor.RejectedFull, actor.ErrMailboxFull
		}

	case actor.DropNewest:
		select {
		case m.ch <- env:
			return actor.Enqueued, nil
		default:
			log.TraceS(ctx, "mailbox full, dropping newest envelope",
				"to", m.self.String(), "msg_type", env.Type)
			if m.dlo != nil {
				m.dlo.DeadLetter(m.self, env, actor.ErrMailboxFull)
			}
			return actor.RejectedFull, nil
		}

	case actor.DropOldest:
		return m.sendDropOldest(ctx, env), nil

	default:
		select {
		case m.ch <- env:
			return actor.Enqueued, nil
		default:
			return actor.RejectedFull, actor.ErrMailboxFull
		}
	}
}

// sendDropOldest enqueues env, evicting the current head to dead
// letters first if the channel is at capacity. queueMu only orders
// concurrent evictions against each other; it does not need to be held
// across the channel send because the channel itself is already
// capacity-bounded.
func (m *ChannelMailbox) sendDropOldest(ctx context.Context, env actor.Envelope) actor.EnqueueOutcome {
	select {
	case m.ch <- env:
		return actor.Enqueued
	default:
	}

	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	select {
	case oldest := <-m.ch:
		if m.dlo != nil {
			m.dlo.DeadLetter(m.self, oldest, actor.ErrMailboxFull)
		}
	default:
	}

	select {
	case m.ch <- env:
		return actor.EnqueuedAfterEviction
	default:
		// Another sender raced us and refilled the slot just evicted;
		// the envelope we're holding is the one that loses.
		if m.dlo != nil {
			m.dlo.DeadLetter(m.self, env, actor.ErrMailboxFull)
		}
		return actor.RejectedFull
	}
}

// Receive implements actor.Mailbox.
func (m *ChannelMailbox) Receive(ctx context.Context) iter.Seq[actor.Envelope] {
	return func(yield func(actor.Envelope) bool) {
		for {
			if ctx.Err() != nil {
				return
			}

			select {
			case env, ok := <-m.ch:
				if !ok {
					return
				}
				if !yield(env) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

// TryReceive implements actor.Mailbox.
func (m *ChannelMailbox) TryReceive() (actor.Envelope, bool) {
	select {
	case env, ok := <-m.ch:
		return env, ok
	default:
		return actor.Envelope{}, false
	}
}

// Close implements actor.Mailbox.
func (m *ChannelMailbox) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		log.DebugS(m.actorCtx, "mailbox closing",
			"to", m.self.String(), "remaining", len(m.ch))

		m.closed.Store(true)
		close(m.ch)
	})
}

// IsClosed implements actor.Mailbox.
func (m *ChannelMailbox) IsClosed() bool {
	return m.closed.Load()
}

// Drain implements actor.Mailbox. Valid only after Close.
func (m *ChannelMailbox) Drain() []actor.Envelope {
	if !m.IsClosed() {
		return nil
	}

	var out []actor.Envelope
	for {
		select {
		case env, ok := <-m.ch:
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

// Flush implements actor.Mailbox.
func (m *ChannelMailbox) Flush() []actor.Envelope {
	var out []actor.Envelope
	for {
		select {
		case env, ok := <-m.ch:
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

// Len implements actor.Mailbox.
func (m *ChannelMailbox) Len() int {
	return len(m.ch)
}

// Cap implements actor.Mailbox.
func (m *ChannelMailbox) Cap() int {
	return m.cap
}

var _ actor.Mailbox = (*ChannelMailbox)(nil)
