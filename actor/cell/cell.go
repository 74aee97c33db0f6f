// Package cell implements the actor cell: the owner of one behavior
// instance and one mailbox, running the handler loop under an
// at-most-one-in-flight guarantee. The Scheduler, not a goroutine of
// the cell's own, decides when a turn runs.
package cell

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/internal/log"
)

// FailureNotifier delivers SYS:CHILD_FAILED to a cell's parent.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, child actor.Address, reason error, envelope actor.Envelope)
}

// Submitter is the Scheduler-facing port a cell uses to hand itself
// back for another turn once its ready bit flips from idle to
// scheduled.
type Submitter interface {
	Submit(r Runnable)
}

// Runnable is what the Scheduler (package actor/scheduler) drives.
type Runnable interface {
	Address() actor.Address
	RunOneTurn(ctx context.Context)
}

// Snapshotter is an optional Behavior capability exposing a read-only
// view of its state for Cell.CurrentSnapshot.
type Snapshotter interface {
	Snapshot() any
}

// Cell owns one behavior instance, one mailbox, and the lifecycle
// state machine around them.
type Cell struct {
	self   actor.Address
	parent actor.Address

	factory  func() actor.Behavior
	behavior actor.Behavior

	mailbox     actor.Mailbox
	planHandler actor.PlanHandler
	notifier    FailureNotifier
	scheduler   Submitter
	dlo         DeadLetterSink

	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc

	mu          sync.RWMutex
	status      actor.CellStatus
	incarnation int
	children    map[actor.Address]struct{}

	schedMu sync.Mutex
	sched   schedState

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   chan struct{}
}

// DeadLetterSink receives envelopes the cell could not deliver to its
// behavior: redirected shutdown traffic, mailbox overflow, or the
// final drain on termination.
type DeadLetterSink interface {
	DeadLetter(to actor.Address, env actor.Envelope, reason error)
}

type schedState int

const (
	idle schedState = iota
	scheduled
)

// Config bundles the collaborators a Cell needs, supplied by whatever
// package wires the runtime together (package system).
type Config struct {
	Self            actor.Address
	Parent          actor.Address
	BehaviorFactory func() actor.Behavior
	Mailbox         actor.Mailbox
	PlanHandler     actor.PlanHandler
	Notifier        FailureNotifier
	Scheduler       Submitter
	DeadLetters     DeadLetterSink
}

// New constructs a Cell in the Starting state. Call Start to run the
// behavior's initializer and transition it to Running.
func New(cfg Config) *Cell {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cell{
		self:            cfg.Self,
		parent:          cfg.Parent,
		factory:         cfg.BehaviorFactory,
		mailbox:         cfg.Mailbox,
		planHandler:     cfg.PlanHandler,
		notifier:        cfg.Notifier,
		scheduler:       cfg.Scheduler,
		dlo:             cfg.DeadLetters,
		lifecycleCtx:    ctx,
		lifecycleCancel: cancel,
		status:          actor.Starting,
		children:        make(map[actor.Address]struct{}),
		stopped:         make(chan struct{}),
	}
}

// Address returns the cell's bound address.
func (c *Cell) Address() actor.Address {
	return c.self
}

// Start runs the behavior's initializer (if any), transitioning the
// cell to Running on success or Failed (with a parent notification) on
// error.
func (c *Cell) Start(ctx context.Context) error {
	var startErr error
	c.startOnce.Do(func() {
		c.behavior = c.factory()

		if starter, ok := c.behavior.(actor.Starter); ok {
			plan, err := starter.OnStart(ctx)
			if err != nil {
				c.transitionFailed(ctx, err, actor.Envelope{})
				startErr = err
				return
			}
			if err := c.planHandler(ctx, c.self, plan); err != nil {
				c.transitionFailed(ctx, err, actor.Envelope{})
				startErr = err
				return
			}
		}

		c.mu.Lock()
		c.status = actor.Running
		c.mu.Unlock()

		log.DebugS(ctx, "cell started", "address", c.self.String(),
			"incarnation", c.incarnation)
	})
	return startErr
}

// Send enqueues env into the cell's mailbox and, if it was idle,
// submits the cell to the scheduler for its next turn.
func (c *Cell) Send(ctx context.Context, env actor.Envelope) (actor.EnqueueOutcome, error) {
	outcome, err := c.mailbox.Send(ctx, env)
	if outcome == actor.Enqueued || outcome == actor.EnqueuedAfterEviction {
		c.markReady()
	}
	return outcome, err
}

// markReady flips the cell from idle to scheduled and submits it,
// the scheduler-facing half of the idle/scheduled handshake completed
// by RunOneTurn.
func (c *Cell) markReady() {
	c.schedMu.Lock()
	if c.sched == scheduled {
		c.schedMu.Unlock()
		return
	}
	c.sched = scheduled
	c.schedMu.Unlock()

	if c.scheduler != nil {
		c.scheduler.Submit(c)
	}
}

// RunOneTurn implements Runnable: it processes exactly one envelope,
// then re-arms itself if the mailbox still has work.
func (c *Cell) RunOneTurn(ctx context.Context) {
	status := c.Status()

	switch status {
	case actor.Stopped, actor.Failed:
		c.finishTurn()
		return
	case actor.Suspended:
		// Held, not dequeued: suspended cells keep their mailbox
		// intact until Resume.
		c.finishTurn()
		return
	}

	env, ok := c.mailbox.TryReceive()
	if !ok {
		c.finishTurn()
		return
	}

	if status == actor.Stopping && !env.IsSys() {
		if c.dlo != nil {
			c.dlo.DeadLetter(c.self, env, fmt.Errorf("actor: cell stopping, user message redirected"))
		}
		c.finishTurn()
		return
	}

	c.runHandler(ctx, env)
	c.finishTurn()
}

func (c *Cell) runHandler(ctx context.Context, env actor.Envelope) {
	if env.Type == actor.SysContinuation {
		plan, ok := env.Payload.(actor.MessagePlan)
		if !ok {
			log.WarnS(ctx, "dropping malformed continuation envelope",
				"address", c.self.String())
			return
		}
		if err := c.planHandler(ctx, c.self, plan); err != nil {
			c.transitionFailed(ctx, err, env)
		}
		return
	}

	plan, err := c.behavior.OnMessage(ctx, env)
	if err != nil {
		c.transitionFailed(ctx, err, env)
		return
	}

	// A malformed MessagePlan (e.g. a nested Sequence, or an
	// unrecognized plan type) is a handler failure with reason
	// InvalidPlan, exactly like an OnMessage error above: it must
	// transition the cell to Failed and notify the parent so
	// supervision applies, not merely be logged and dropped.
	if err := c.planHandler(ctx, c.self, plan); err != nil {
		c.transitionFailed(ctx, err, env)
	}
}

func (c *Cell) transitionFailed(ctx context.Context, reason error, env actor.Envelope) {
	c.mu.Lock()
	c.status = actor.Failed
	c.mu.Unlock()

	log.ErrorS(ctx, "cell handler failed", reason, "address", c.self.String())

	if c.notifier != nil {
		c.notifier.NotifyFailure(ctx, c.self, reason, env)
	}
}

// finishTurn completes the idle/scheduled handshake: if the mailbox
// still has envelopes, the cell resubmits itself; otherwise it goes
// idle. Holding schedMu for both this check and markReady's check
// makes the handoff race-free: any Send that lands after this method
// observes either the still-scheduled state (and no-ops, because this
// call is about to resubmit) or the idle state (and resubmits itself).
func (c *Cell) finishTurn() {
	c.schedMu.Lock()
	if c.mailbox.Len() > 0 {
		c.schedMu.Unlock()
		if c.scheduler != nil {
			c.scheduler.Submit(c)
		}
		return
	}
	c.sched = idle
	c.schedMu.Unlock()
}

// Status returns the cell's current lifecycle status.
func (c *Cell) Status() actor.CellStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Suspend transitions a Running cell to Suspended.
func (c *Cell) Suspend() {
	c.mu.Lock()
	if c.status == actor.Running {
		c.status = actor.Suspended
	}
	c.mu.Unlock()
}

// Resume transitions a Suspended cell back to Running and re-arms the
// scheduler in case messages piled up while suspended.
func (c *Cell) Resume() {
	c.mu.Lock()
	if c.status == actor.Suspended {
		c.status = actor.Running
	}
	c.mu.Unlock()
	c.markReady()
}

// ResumeFromFailure transitions a Failed cell back to Running without
// re-running the behavior's initializer and without touching its
// state, the supervisor "resume" directive. The
// offending envelope that caused the failure is never redelivered;
// the caller (the supervisor applying the directive) is responsible
// for reporting it to dead letters.
func (c *Cell) ResumeFromFailure() {
	c.mu.Lock()
	if c.status == actor.Failed {
		c.status = actor.Running
	}
	c.mu.Unlock()
	c.markReady()
}

// AddChild records a child address under this cell's supervision.
func (c *Cell) AddChild(child actor.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children[child] = struct{}{}
}

// RemoveChild drops a child address.
func (c *Cell) RemoveChild(child actor.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.children, child)
}

// Children returns a snapshot of this cell's child addresses.
func (c *Cell) Children() []actor.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]actor.Address, 0, len(c.children))
	for addr := range c.children {
		out = append(out, addr)
	}
	return out
}

// Incarnation returns the cell's current incarnation counter.
func (c *Cell) Incarnation() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.incarnation
}

// Parent returns the address of this cell's supervisor, the zero
// Address if this is the guardian.
func (c *Cell) Parent() actor.Address {
	return c.parent
}

// CurrentSnapshot returns the behavior's state snapshot, nil if the
// behavior does not implement Snapshotter.
func (c *Cell) CurrentSnapshot() any {
	c.mu.RLock()
	b := c.behavior
	c.mu.RUnlock()

	if snap, ok := b.(Snapshotter); ok {
		return snap.Snapshot()
	}
	return nil
}

// Stats returns the cell's current stats() contract value.
func (c *Cell) Stats() actor.CellStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return actor.CellStats{
		Address:     c.self,
		Status:      c.status,
		Incarnation: c.incarnation,
		MailboxLen:  c.mailbox.Len(),
		MailboxCap:  c.mailbox.Cap(),
	}
}

// Stop transitions the cell through stopping -> stopped: it stops
// accepting new user work (handled by RunOneTurn's stopping-status
// redirect), cancels the lifecycle context, drains the mailbox to dead
// letters, and runs the behavior's Stopper hook if present. Idempotent.
func (c *Cell) Stop(ctx context.Context, reason error) {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.status = actor.Stopping
		c.mu.Unlock()

		c.lifecycleCancel()

		c.mailbox.Close()
		for _, env := range c.mailbox.Drain() {
			if c.dlo != nil {
				c.dlo.DeadLetter(c.self, env, fmt.Errorf("actor: cell stopped: %w", reason))
			}
		}

		if stopper, ok := c.behavior.(actor.Stopper); ok {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := stopper.OnStop(stopCtx); err != nil {
				log.WarnS(stopCtx, "behavior OnStop returned error",
					"address", c.self.String(), "err", err)
			}
			cancel()
		}

		c.mu.Lock()
		c.status = actor.Stopped
		c.mu.Unlock()

		close(c.stopped)

		log.DebugS(ctx, "cell stopped", "address", c.self.String())
	})
}

// Stopped returns a channel closed once Stop has fully completed.
func (c *Cell) Stopped() <-chan struct{} {
	return c.stopped
}

// Restart stops the current incarnation (discarding its mailbox),
// increments the incarnation counter, builds a
// fresh behavior from the factory, and re-runs its initializer. The
// address and subscriber table (owned by the shared eventbus.Table
// keyed on address, not incarnation) are unaffected.
func (c *Cell) Restart(ctx context.Context, reason error) error {
	c.mu.Lock()
	c.status = actor.Stopping
	c.mu.Unlock()

	for _, env := range c.mailbox.Flush() {
		if c.dlo != nil {
			c.dlo.DeadLetter(c.self, env, fmt.Errorf("actor: cell restarting: %w", reason))
		}
	}

	c.mu.Lock()
	c.incarnation++
	c.status = actor.Starting
	c.mu.Unlock()

	c.behavior = c.factory()

	if starter, ok := c.behavior.(actor.Starter); ok {
		plan, err := starter.OnStart(ctx)
		if err != nil {
			c.transitionFailed(ctx, err, actor.Envelope{})
			return err
		}
		if err := c.planHandler(ctx, c.self, plan); err != nil {
			c.transitionFailed(ctx, err, actor.Envelope{})
			return err
		}
	}

	c.mu.Lock()
	c.status = actor.Running
	c.mu.Unlock()

	log.InfoS(ctx, "cell restarted", "address", c.self.String(),
		"incarnation", c.incarnation)

	c.markReady()
	return nil
}

var _ Runnable = (*Cell)(nil)
