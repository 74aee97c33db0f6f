// Package system wires the eight runtime components (mailbox, cell,
// scheduler, plan interpreter, correlation table, event bus,
// supervisor/guardian, virtual directory) into the single entry point
// an embedding application uses: System. No other package imports
// more than a couple of its siblings plus their own narrow port
// interfaces; package system is where every concrete type finally
// meets every other one.
package system

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/actor/cell"
	"github.com/cellgrid/actorsys/actor/correlation"
	"github.com/cellgrid/actorsys/actor/eventbus"
	"github.com/cellgrid/actorsys/actor/mailbox"
	"github.com/cellgrid/actorsys/actor/plan"
	"github.com/cellgrid/actorsys/actor/scheduler"
	"github.com/cellgrid/actorsys/actor/supervisor"
	"github.com/cellgrid/actorsys/actor/virtual"
	"github.com/cellgrid/actorsys/internal/log"
)

// schedulerSubmitter adapts *scheduler.Scheduler to cell.Submitter.
// Both scheduler.Runnable and cell.Runnable declare the identical
// method set, but Go requires exact type identity (not just an
// identical method set) when checking whether a concrete method
// satisfies an interface-typed parameter across package boundaries, so
// *scheduler.Scheduler's Submit(scheduler.Runnable) does not by itself
// implement cell.Submitter's Submit(cell.Runnable). This adapter is
// the one place in the whole wiring graph that needs to exist for that
// reason.
type schedulerSubmitter struct {
	sched *scheduler.Scheduler
}

func (s schedulerSubmitter) Submit(r cell.Runnable) {
	s.sched.Submit(r)
}

// System is the runtime entry point: it owns every component instance
// and is the concrete type behind every port interface the components
// define (plan.Router/Correlator/Publisher, correlation.Runner,
// supervisor.Spawner, virtual.Activator); cell.Submitter is met by
// schedulerSubmitter above.
type System struct {
	cfg actor.Config

	scheduler   *scheduler.Scheduler
	correlation *correlation.Table
	supervisor  *supervisor.Supervisor
	subs        *eventbus.Table
	sysEvents   *eventbus.SystemEvents
	emitter     *eventbus.Emitter
	directory   *virtual.Directory
	interpreter *plan.Interpreter

	guardianAddr actor.Address
	guardianCell *cell.Cell

	mu        sync.RWMutex
	cells     map[actor.Address]*cell.Cell
	behaviors map[string]func() actor.Behavior

	messageCount atomic.Int64
	startedAt    time.Time
	started      bool
	shuttingDown bool

	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs a System from cfg but does not start it; call Start
// to bring the guardian and scheduler up.
func New(cfg actor.Config) *System {
	sysEvents := eventbus.NewSystemEvents()
	emitter := eventbus.NewEmitter(sysEvents)

	s := &System{
		cfg:          cfg,
		sysEvents:    sysEvents,
		emitter:      emitter,
		subs:         eventbus.NewTable(),
		cells:        make(map[actor.Address]*cell.Cell),
		behaviors:    make(map[string]func() actor.Behavior),
		guardianAddr: supervisor.GuardianAddress(cfg.NodeID),
	}

	// Worker capacity is not a Config knob; the Scheduler gets a
	// generous GOMAXPROCS-scaled default.
	workerCapacity := int64(runtime.GOMAXPROCS(0) * 4)
	s.scheduler = scheduler.New(workerCapacity, 4096)

	s.correlation = correlation.NewTable(routerSender{s}, runnerAdapter{s}, 50*time.Millisecond)

	s.supervisor = supervisor.New(emitter, emitter, s.guardianAddr, s.onGuardianEscalate)

	placement := resolvePlacement(cfg.PlacementStrategy)
	s.directory = virtual.New(virtual.Config{
		Activator: s,
		Placement: placement,
		Node:      cfg.NodeID,
		NodeSet:   []string{cfg.NodeID},
		Capacity:  cfg.VirtualCacheSize,
		MaxIdle:   cfg.VirtualMaxIdle(),
	})

	s.interpreter = plan.New(s, s.correlation, s, cfg.DefaultAskTimeout())

	return s
}

func resolvePlacement(strategy actor.PlacementStrategy) virtual.Placement {
	switch strategy {
	case actor.ConsistentHashPlacement:
		return virtual.NewConsistentHash()
	case actor.LoadAwarePlacement:
		return virtual.NewLoadAware()
	default:
		return virtual.NewRoundRobin()
	}
}

// routerSender adapts System.routeSend to correlation.Sender without
// exposing the rest of System's surface to package correlation.
type routerSender struct{ sys *System }

func (r routerSender) Send(ctx context.Context, to actor.Address, env actor.Envelope) (actor.EnqueueOutcome, error) {
	return r.sys.routeSend(ctx, to, env)
}

// runnerAdapter adapts System.RunPlan to correlation.Runner.
type runnerAdapter struct{ sys *System }

func (r runnerAdapter) RunPlan(ctx context.Context, self actor.Address, p actor.MessagePlan) error {
	return r.sys.RunPlan(ctx, self, p)
}

// Start brings the scheduler and the root guardian cell up. Idempotent.
func (s *System) Start(ctx context.Context) error {
	var startErr error
	s.startOnce.Do(func() {
		s.scheduler.Start()

		s.mu.Lock()
		s.startedAt = time.Now()
		s.started = true
		s.mu.Unlock()

		guardian := cell.New(cell.Config{
			Self:            s.guardianAddr,
			BehaviorFactory: func() actor.Behavior { return supervisor.NewGuardian(s.guardianAddr, s) },
			Mailbox:         mailbox.New(ctx, s.guardianAddr, s.cfg.DefaultMailboxCapacity, actor.FailSender, s.emitter),
			PlanHandler:     s.interpreter.Execute,
			Notifier:        s.supervisor,
			Scheduler:       schedulerSubmitter{s.scheduler},
			DeadLetters:     s.emitter,
		})
		s.guardianCell = guardian
		s.supervisor.Register(guardian, actor.SupervisionStrategy{Decide: func(actor.Failure) actor.Directive {
			return actor.Escalate
		}})

		s.mu.Lock()
		s.cells[s.guardianAddr] = guardian
		s.mu.Unlock()

		if err := guardian.Start(ctx); err != nil {
			startErr = fmt.Errorf("system: starting guardian: %w", err)
			return
		}

		log.InfoS(ctx, "actor system started", "node_id", s.cfg.NodeID,
			"guardian", s.guardianAddr.String())
	})
	return startErr
}

// onGuardianEscalate is invoked by the Supervisor when the guardian
// itself escalates a failure; a guardian escalation terminates the
// system.
func (s *System) onGuardianEscalate(ctx context.Context, reason error) {
	log.ErrorS(ctx, "guardian escalated, terminating system", reason,
		"node_id", s.cfg.NodeID)
	if err := s.Shutdown(ctx); err != nil {
		log.ErrorS(ctx, "system shutdown after guardian escalation failed", err)
	}
}

// Stop tears the whole system down: every cell below the guardian,
// then the scheduler, correlation sweeper, virtual directory reaper,
// and system-event hub. Idempotent.
func (s *System) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.shuttingDown = true
		s.started = false
		s.mu.Unlock()

		if s.guardianCell != nil {
			for _, child := range s.guardianCell.Children() {
				s.stopTree(ctx, child)
			}
			s.guardianCell.Stop(ctx, nil)
			<-s.guardianCell.Stopped()
		}

		s.scheduler.Stop()
		s.correlation.Stop()
		s.directory.Stop()
		if err := s.sysEvents.Close(); err != nil {
			log.WarnS(ctx, "closing system-event hub failed", "err", err)
		}

		log.InfoS(ctx, "actor system stopped", "node_id", s.cfg.NodeID)
	})
}

func (s *System) lookupCell(addr actor.Address) (*cell.Cell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cells[addr]
	return c, ok
}

func (s *System) cellCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}

// RegisterBehavior binds a behavior factory to kind, usable both for
// guardian-mediated Spawn-by-kind requests and as a virtual directory
// factory.
func (s *System) RegisterBehavior(kind string, factory func() actor.Behavior) {
	s.mu.Lock()
	s.behaviors[kind] = factory
	s.mu.Unlock()
	s.directory.RegisterKind(kind, factory)
}

// Spawn creates a new cell for the given kind at a generated id,
// supervised by parent (the guardian if parent is the zero Address).
func (s *System) Spawn(ctx context.Context, kind string, parent actor.Address, mailboxCap int, strategy actor.SupervisionStrategy) (actor.Address, error) {
	return s.SpawnNamed(ctx, kind, uuid.NewString(), parent, mailboxCap, strategy)
}

// SpawnNamed is Spawn with an explicit id instead of a generated one.
func (s *System) SpawnNamed(ctx context.Context, kind, id string, parent actor.Address, mailboxCap int, strategy actor.SupervisionStrategy) (actor.Address, error) {
	s.mu.RLock()
	factory, ok := s.behaviors[kind]
	s.mu.RUnlock()
	if !ok {
		return actor.Address{}, fmt.Errorf("%w: %s", actor.ErrUnknownKind, kind)
	}

	if parent.IsZero() {
		parent = s.guardianAddr
	}
	addr := actor.Address{Node: s.cfg.NodeID, Kind: kind, ID: id}
	return s.spawnCell(ctx, addr, parent, factory, mailboxCap, strategy)
}

// SpawnWithBehavior spawns a cell at an explicit address with a
// caller-supplied factory, bypassing the kind registry. Used by
// embedding code (and tests) that build a behavior inline rather than
// registering it under a kind first.
func (s *System) SpawnWithBehavior(ctx context.Context, addr, parent actor.Address, factory func() actor.Behavior, mailboxCap int, strategy actor.SupervisionStrategy) (actor.Address, error) {
	if parent.IsZero() {
		parent = s.guardianAddr
	}
	return s.spawnCell(ctx, addr, parent, factory, mailboxCap, strategy)
}

func (s *System) spawnCell(ctx context.Context, addr, parent actor.Address, factory func() actor.Behavior, mailboxCap int, strategy actor.SupervisionStrategy) (actor.Address, error) {
	if s.cellCount() >= s.cfg.MaxActors {
		return actor.Address{}, actor.ErrSystemSaturated
	}
	if _, exists := s.lookupCell(addr); exists {
		return actor.Address{}, fmt.Errorf("actor: address already in use: %s", addr.String())
	}

	if mailboxCap <= 0 {
		mailboxCap = s.cfg.DefaultMailboxCapacity
	}

	c := cell.New(cell.Config{
		Self:            addr,
		Parent:          parent,
		BehaviorFactory: factory,
		Mailbox:         mailbox.New(ctx, addr, mailboxCap, actor.FailSender, s.emitter),
		PlanHandler:     s.interpreter.Execute,
		Notifier:        s.supervisor,
		Scheduler:       schedulerSubmitter{s.scheduler},
		DeadLetters:     s.emitter,
	})

	// A behavior declaring actor.Supervised overrides the caller's
	// strategy only when the caller did not provide one (Decide == nil).
	// This costs one throwaway construction of the behavior purely to
	// inspect it; cell.New constructs the real instance separately when
	// Start runs.
	if strategy.Decide == nil {
		if peek, ok := factory().(actor.Supervised); ok {
			strategy = peek.SupervisionStrategy()
		}
	}
	s.supervisor.Register(c, strategy)

	s.mu.Lock()
	s.cells[addr] = c
	s.mu.Unlock()

	if parentCell, ok := s.lookupCell(parent); ok {
		parentCell.AddChild(addr)
	}

	if err := c.Start(ctx); err != nil {
		s.mu.Lock()
		delete(s.cells, addr)
		s.mu.Unlock()
		s.supervisor.Unregister(addr)
		return actor.Address{}, fmt.Errorf("actor: starting %s: %w", addr.String(), err)
	}

	s.emitter.EmitActorSpawned(addr)
	return addr, nil
}

// StopChild implements supervisor.Spawner: stops target and every one
// of its descendants, depth-first.
func (s *System) StopChild(ctx context.Context, target actor.Address) error {
	if _, ok := s.lookupCell(target); !ok {
		return fmt.Errorf("%w: %s", actor.ErrTargetUnreachable, target.String())
	}
	s.stopTree(ctx, target)
	return nil
}

// SpawnChild implements supervisor.Spawner, the port the guardian
// behavior uses to fulfill a SPAWN_ACTOR ask.
func (s *System) SpawnChild(ctx context.Context, parent actor.Address, req supervisor.SpawnActorRequest) (actor.Address, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	return s.SpawnNamed(ctx, req.Kind, id, parent, req.MailboxCap, req.Strategy)
}

func (s *System) stopTree(ctx context.Context, addr actor.Address) {
	c, ok := s.lookupCell(addr)
	if !ok {
		return
	}

	for _, child := range c.Children() {
		s.stopTree(ctx, child)
	}

	c.Stop(ctx, nil)
	<-c.Stopped()

	s.supervisor.Unregister(addr)
	s.subs.RemovePublisher(addr)

	s.mu.Lock()
	delete(s.cells, addr)
	s.mu.Unlock()

	s.emitter.EmitActorStopped(addr)
}

// Shutdown implements supervisor.Spawner: it tears down every child of
// the guardian (but not the guardian itself, which Stop handles) and
// is what a SHUTDOWN ask against the guardian ultimately runs.
func (s *System) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	if s.guardianCell != nil {
		for _, child := range s.guardianCell.Children() {
			s.stopTree(ctx, child)
		}
	}
	return nil
}

// Info implements supervisor.Spawner, the reply payload of a
// GET_SYSTEM_INFO ask.
func (s *System) Info() supervisor.SystemInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return supervisor.SystemInfo{
		NodeID:       s.cfg.NodeID,
		StartedAt:    s.startedAt,
		Uptime:       time.Since(s.startedAt),
		ActorCount:   len(s.cells),
		MessageCount: s.messageCount.Load(),
		ShuttingDown: s.shuttingDown,
	}
}

// IsRunning reports whether the system has been started and not yet
// stopped.
func (s *System) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.shuttingDown
}

// Lookup returns the address of the live cell whose ID segment matches
// id, if any. IDs are unique per spawn (generated ones are UUIDs,
// named ones are rejected on collision at spawn time within a kind),
// but two kinds may reuse an id; Lookup returns the first match in
// that case and callers that need kind-qualified resolution should go
// through the virtual directory instead.
func (s *System) Lookup(id string) (actor.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for addr := range s.cells {
		if addr.ID == id {
			return addr, true
		}
	}
	return actor.Address{}, false
}

// ListActors returns the addresses of every live cell, guardian
// included, in a stable printable-form order.
func (s *System) ListActors() []actor.Address {
	s.mu.RLock()
	out := make([]actor.Address, 0, len(s.cells))
	for addr := range s.cells {
		out = append(out, addr)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// externalAddress synthesizes an address for a caller outside the
// supervision tree (an embedding application's own goroutine calling
// Tell/Ask directly), so correlation-table registration and
// self-feedback sends have a well-formed Address even though no cell
// backs it.
func externalAddress(node string) actor.Address {
	return actor.Address{Node: node, Kind: "external", ID: uuid.NewString()}
}

// Tell delivers env to to, fire-and-forget, from outside the
// supervision tree.
func (s *System) Tell(ctx context.Context, to actor.Address, env actor.Envelope) (actor.EnqueueOutcome, error) {
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixNano()
	}
	return s.routeSend(ctx, to, env)
}

// Ask sends env to to and blocks until a reply arrives, the deadline
// (defaulting to the system's configured ask timeout) expires, or ctx
// is done. It returns an fn.Result instead of a future type since
// there is no ongoing actor turn here to suspend.
func (s *System) Ask(ctx context.Context, to actor.Address, env actor.Envelope, timeout time.Duration) fn.Result[any] {
	if timeout <= 0 {
		timeout = s.cfg.DefaultAskTimeout()
	}

	self := externalAddress(s.cfg.NodeID)
	replyCh := make(chan fn.Result[any], 1)

	corrID := s.correlation.RegisterAsk(self,
		func(reply any) actor.MessagePlan {
			replyCh <- fn.Ok(reply)
			return actor.Nothing{}
		},
		func(err error) actor.MessagePlan {
			replyCh <- fn.Err[any](err)
			return actor.Nothing{}
		},
		timeout,
	)

	env.Sender = &self
	env.CorrelationID = corrID
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixNano()
	}

	if _, err := s.routeSend(ctx, to, env); err != nil {
		s.correlation.CancelAsk(corrID)
		return fn.Err[any](err)
	}

	select {
	case res := <-replyCh:
		return res
	case <-ctx.Done():
		s.correlation.CancelAsk(corrID)
		return fn.Err[any](fmt.Errorf("%w: %w", actor.ErrAskCancelled, ctx.Err()))
	}
}
