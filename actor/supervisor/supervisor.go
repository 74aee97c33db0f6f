// Package supervisor applies a child's supervision directive on
// failure, enforces restart budgets, and escalates failures up the
// parent chain. A parent is the only authority that observes a
// child's failure; everything else learns of it through system
// events.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/internal/log"
)

// CellController is the slice of *cell.Cell a Supervisor needs, kept
// as an interface so this package does not import actor/cell (which
// in turn would create a cycle once package system wires both
// together).
type CellController interface {
	Address() actor.Address
	Parent() actor.Address
	Status() actor.CellStatus
	Incarnation() int
	Restart(ctx context.Context, reason error) error
	Stop(ctx context.Context, reason error)
	ResumeFromFailure()
	AddChild(child actor.Address)
	RemoveChild(child actor.Address)
}

// Events is the subset of the distinguished system-event actor's
// publish surface a Supervisor drives.
type Events interface {
	EmitActorRestarted(addr actor.Address, incarnation int)
	EmitActorStopped(addr actor.Address)
	EmitActorFailed(addr actor.Address, reason error)
}

// DeadLetters receives the offending envelope of a "resume"
// directive, which is never redelivered.
type DeadLetters interface {
	DeadLetter(to actor.Address, env actor.Envelope, reason error)
}

// entry is the bookkeeping a Supervisor keeps per supervised child.
type entry struct {
	mu       sync.Mutex
	ctrl     CellController
	strategy actor.SupervisionStrategy
	budget   *restartBudget
}

// Supervisor is the runtime-wide supervision authority: every cell
// registers itself here at spawn time, and every handler failure is
// routed to NotifyFailure, which implements cell.FailureNotifier.
// There is conceptually one Supervisor per actor system; the root
// guardian is simply the entry with a zero Parent address.
type Supervisor struct {
	events Events
	dlo    DeadLetters

	guardian           actor.Address
	onGuardianEscalate func(ctx context.Context, reason error)

	mu      sync.RWMutex
	entries map[actor.Address]*entry
}

// New constructs a Supervisor. guardian is the well-known root
// address; when the guardian itself is asked to escalate (its own
// strategy yields Escalate, or its restart budget is upgraded to
// Escalate), onGuardianEscalate runs and the system terminates.
func New(events Events, dlo DeadLetters, guardian actor.Address, onGuardianEscalate func(context.Context, error)) *Supervisor {
	return &Supervisor{
		events:             events,
		dlo:                dlo,
		guardian:           guardian,
		onGuardianEscalate: onGuardianEscalate,
		entries:            make(map[actor.Address]*entry),
	}
}

// Register adds ctrl under supervision with the given strategy. A
// zero-value strategy (nil Decide, zero MaxRetries/Window) falls back
// to DefaultStrategy.
func (s *Supervisor) Register(ctrl CellController, strategy actor.SupervisionStrategy) {
	strategy = normalizeStrategy(strategy)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ctrl.Address()] = &entry{
		ctrl:     ctrl,
		strategy: strategy,
		budget:   newRestartBudget(strategy.Window, strategy.MaxRetries),
	}
}

// Unregister removes addr from supervision, called once a child has
// permanently stopped (directive Stop, or a voluntary system.Stop).
func (s *Supervisor) Unregister(addr actor.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, addr)
}

// DefaultStrategy is applied to a child whose Behavior does not
// implement actor.Supervised: always restart, budget of 3 restarts
// per 10 seconds upgrading to Stop, 100ms backoff between restarts.
func DefaultStrategy() actor.SupervisionStrategy {
	return actor.SupervisionStrategy{
		Decide:           actor.DefaultDecide,
		MaxRetries:       3,
		Window:           10 * time.Second,
		Backoff:          100 * time.Millisecond,
		OnBudgetExceeded: actor.Stop,
	}
}

func normalizeStrategy(s actor.SupervisionStrategy) actor.SupervisionStrategy {
	def := DefaultStrategy()
	if s.Decide == nil {
		s.Decide = def.Decide
	}
	if s.MaxRetries == 0 && s.Window == 0 {
		s.MaxRetries = def.MaxRetries
		s.Window = def.Window
	}
	if s.Backoff == 0 {
		s.Backoff = def.Backoff
	}
	if s.OnBudgetExceeded == actor.Resume {
		s.OnBudgetExceeded = def.OnBudgetExceeded
	}
	return s
}

// NotifyFailure implements cell.FailureNotifier. It looks up child's
// supervisor entry, decides a directive, applies the restart budget,
// and executes the result.
func (s *Supervisor) NotifyFailure(ctx context.Context, child actor.Address, reason error, envelope actor.Envelope) {
	s.mu.RLock()
	e, ok := s.entries[child]
	s.mu.RUnlock()

	if !ok {
		log.WarnS(ctx, "failure reported for unsupervised child",
			"child", child.String(), "reason", reason)
		if s.dlo != nil {
			s.dlo.DeadLetter(child, envelope, reason)
		}
		return
	}

	if s.events != nil {
		s.events.EmitActorFailed(child, reason)
	}

	e.mu.Lock()
	directive := e.strategy.Decide(actor.Failure{
		Child: child, Reason: reason, Attempt: envelope,
	})

	if directive == actor.Restart {
		exceeded, count := e.budget.recordAndCheck(time.Now())
		if exceeded {
			upgraded := e.strategy.OnBudgetExceeded
			log.WarnS(ctx, "restart budget exceeded, upgrading directive",
				"child", child.String(), "restarts_in_window", count,
				"max_retries", e.strategy.MaxRetries, "upgraded_to", upgraded)
			directive = upgraded
		} else if backoff := e.strategy.Backoff; backoff > 0 && count > 1 {
			time.Sleep(backoff)
		}
	}
	e.mu.Unlock()

	s.apply(ctx, child, e, directive, reason, envelope)
}

func (s *Supervisor) apply(ctx context.Context, child actor.Address, e *entry, directive actor.Directive, reason error, envelope actor.Envelope) {
	switch directive {
	case actor.Resume:
		e.ctrl.ResumeFromFailure()
		if s.dlo != nil {
			s.dlo.DeadLetter(child, envelope, fmt.Errorf("actor: resumed after failure, offending envelope dropped: %w", reason))
		}
		log.InfoS(ctx, "child resumed after failure", "child", child.String())

	case actor.Restart:
		if err := e.ctrl.Restart(ctx, reason); err != nil {
			log.ErrorS(ctx, "child restart failed", err, "child", child.String())
			return
		}
		if s.events != nil {
			s.events.EmitActorRestarted(child, e.ctrl.Incarnation())
		}

	case actor.Stop:
		e.ctrl.Stop(ctx, reason)
		s.detach(child, e.ctrl.Parent())
		s.Unregister(child)
		if s.events != nil {
			s.events.EmitActorStopped(child)
		}

	case actor.Escalate:
		s.escalate(ctx, child, e.ctrl.Parent(), reason, envelope)

	default:
		log.WarnS(ctx, "unrecognized supervision directive, stopping child",
			"child", child.String(), "directive", int(directive))
		e.ctrl.Stop(ctx, reason)
		s.detach(child, e.ctrl.Parent())
		s.Unregister(child)
	}
}

// escalate treats child's failure as its parent's own failure. If
// parent is the guardian (or the zero address, meaning child was
// already the guardian), the system terminates instead of escalating
// further.
func (s *Supervisor) escalate(ctx context.Context, child, parent actor.Address, reason error, envelope actor.Envelope) {
	wrapped := fmt.Errorf("actor: escalated from child %s: %w", child.String(), reason)

	if parent.IsZero() || parent == child {
		log.ErrorS(ctx, "guardian escalation, terminating system", wrapped)
		if s.onGuardianEscalate != nil {
			s.onGuardianEscalate(ctx, wrapped)
		}
		return
	}

	if parent == s.guardian {
		s.mu.RLock()
		_, guardianSupervised := s.entries[s.guardian]
		s.mu.RUnlock()
		if !guardianSupervised {
			log.ErrorS(ctx, "guardian escalation, terminating system", wrapped)
			if s.onGuardianEscalate != nil {
				s.onGuardianEscalate(ctx, wrapped)
			}
			return
		}
	}

	log.WarnS(ctx, "escalating failure to grandparent",
		"child", child.String(), "parent", parent.String())
	s.NotifyFailure(ctx, parent, wrapped, envelope)
}

func (s *Supervisor) detach(child, parent actor.Address) {
	s.mu.RLock()
	parentEntry, ok := s.entries[parent]
	s.mu.RUnlock()
	if ok {
		parentEntry.ctrl.RemoveChild(child)
	}
}

// Strategy returns the registered strategy for addr, for operational
// inspection (e.g. GET_SYSTEM_INFO).
func (s *Supervisor) Strategy(addr actor.Address) (actor.SupervisionStrategy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[addr]
	if !ok {
		return actor.SupervisionStrategy{}, false
	}
	return e.strategy, true
}

// Count returns the number of currently supervised children.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
