// Package correlation implements the pending-ask registry mapping a
// correlation id to the continuation a publisher registered via an
// AskInstruction, with deadline-based timeout and explicit
// cancellation. Rather than a blocking future the caller awaits, a
// pending ask resolves by resuming the publisher cell's own dispatch
// loop on a later turn, so this package stores continuations, not
// channel-backed futures.
package correlation

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/internal/log"
)

// Sender delivers a synthetic envelope into a publisher's mailbox,
// used only for the SYS:ASK_TIMEOUT fallback when an expired ask has
// no OnError continuation. This is a narrow port so this package does
// not need to import actor/cell or actor/scheduler.
type Sender interface {
	Send(ctx context.Context, to actor.Address, env actor.Envelope) (actor.EnqueueOutcome, error)
}

// Runner executes a MessagePlan as a fresh turn of self, used to run
// an ask's OnError continuation on timeout. Implemented by package
// system wrapping the plan interpreter.
type Runner interface {
	RunPlan(ctx context.Context, self actor.Address, plan actor.MessagePlan) error
}

// Continuation is the pair of callbacks an AskInstruction registers.
// Exactly one of OnOK or OnError runs, exactly once, for a given
// correlation id.
type Continuation struct {
	OnOK    func(reply any) actor.MessagePlan
	OnError func(err error) actor.MessagePlan
}

type entry struct {
	corrID    string
	publisher actor.Address
	cont      Continuation
	deadline  time.Time
	heapIndex int
}

// Table is the Correlation Table. Safe for concurrent use: Register is
// called from the Plan Interpreter executing an AskInstruction,
// Resolve from the router when a RESPONSE envelope is sent, and the
// deadline sweep runs on its own goroutine.
type Table struct {
	sender Sender
	runner Runner

	mu      sync.Mutex
	entries map[string]*entry
	byDead  deadlineHeap

	sweepInterval time.Duration
	stopOnce      sync.Once
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// NewTable constructs a Table that runs on_error continuations through
// runner, falling back to a raw SYS:ASK_TIMEOUT delivered through
// sender when an expired entry has no on_error, sweeping for expired
// entries every sweepInterval (a zero value defaults to 50ms).
func NewTable(sender Sender, runner Runner, sweepInterval time.Duration) *Table {
	if sweepInterval <= 0 {
		sweepInterval = 50 * time.Millisecond
	}
	t := &Table{
		sender:        sender,
		runner:        runner,
		entries:       make(map[string]*entry),
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	heap.Init(&t.byDead)
	go t.runSweeper()
	return t
}

// Register records a pending ask for publisher, returning the
// correlation id to stamp onto the outbound ask envelope. timeout is
// resolved against time.Now() at call time.
func (t *Table) Register(publisher actor.Address, cont Continuation, timeout time.Duration) string {
	corrID := uuid.NewString()

	e := &entry{
		corrID:    corrID,
		publisher: publisher,
		cont:      cont,
		deadline:  time.Now().Add(timeout),
	}

	t.mu.Lock()
	t.entries[corrID] = e
	heap.Push(&t.byDead, e)
	t.mu.Unlock()

	return corrID
}

// Resolve removes and returns the continuation registered for corrID
// and the address of the publisher that registered it, if any. The
// publisher address is the "self" a caller must run the continuation's
// plan as. Callers use the envelope that carried corrID to decide
// whether to invoke OnOK or OnError.
func (t *Table) Resolve(corrID string) (Continuation, actor.Address, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[corrID]
	if !ok {
		return Continuation{}, actor.Address{}, false
	}
	delete(t.entries, corrID)
	heap.Remove(&t.byDead, e.heapIndex)
	return e.cont, e.publisher, true
}

// Cancel removes a pending ask without resolving it, used when the
// publisher's own context is cancelled before a reply or timeout.
func (t *Table) Cancel(corrID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[corrID]
	if !ok {
		return false
	}
	delete(t.entries, corrID)
	heap.Remove(&t.byDead, e.heapIndex)
	return true
}

// RegisterAsk adapts Register to the signature actor/plan.Correlator
// expects, so package system can hand a *Table to the Interpreter
// directly without a wrapper type.
func (t *Table) RegisterAsk(publisher actor.Address, onOK func(any) actor.MessagePlan, onError func(error) actor.MessagePlan, timeout time.Duration) string {
	return t.Register(publisher, Continuation{OnOK: onOK, OnError: onError}, timeout)
}

// CancelAsk adapts Cancel to the signature actor/plan.Correlator
// expects.
func (t *Table) CancelAsk(corrID string) bool {
	return t.Cancel(corrID)
}

// Len reports the number of pending asks.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stop halts the deadline sweeper. Idempotent.
func (t *Table) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		<-t.doneCh
	})
}

func (t *Table) runSweeper() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sweepExpired()
		}
	}
}

func (t *Table) sweepExpired() {
	now := time.Now()

	var expired []*entry
	t.mu.Lock()
	for t.byDead.Len() > 0 {
		next := t.byDead[0]
		if next.deadline.After(now) {
			break
		}
		heap.Pop(&t.byDead)
		delete(t.entries, next.corrID)
		expired = append(expired, next)
	}
	t.mu.Unlock()

	for _, e := range expired {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)

		if e.cont.OnError != nil && t.runner != nil {
			plan := e.cont.OnError(actor.ErrAskTimeout)
			if err := t.runner.RunPlan(ctx, e.publisher, plan); err != nil {
				log.WarnS(ctx, "failed to run ask timeout continuation",
					"to", e.publisher.String(), "corr_id", e.corrID, "err", err)
			}
			cancel()
			continue
		}

		env := actor.Envelope{
			Type:          actor.SysPrefix + "ASK_TIMEOUT",
			CorrelationID: e.corrID,
			Timestamp:     time.Now().UnixNano(),
		}
		if _, err := t.sender.Send(ctx, e.publisher, env); err != nil {
			log.WarnS(ctx, "failed to deliver ask timeout notification",
				"to", e.publisher.String(), "corr_id", e.corrID, "err", err)
		}
		cancel()
	}
}

// deadlineHeap is a container/heap min-heap ordered by
// entry.deadline, giving the sweeper O(log n) access to the next
// expiring ask.
type deadlineHeap []*entry

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *deadlineHeap) Push(x any) {
	e := x.(*entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}
