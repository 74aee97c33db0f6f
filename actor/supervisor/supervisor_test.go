package supervisor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/actor/supervisor"
)

type fakeCell struct {
	addr   actor.Address
	parent actor.Address

	mu          sync.Mutex
	incarnation int
	status      actor.CellStatus
	restarts    int
	stops       int
	resumes     int
	children    map[actor.Address]struct{}
	restartErr  error
}

func newFakeCell(addr, parent actor.Address) *fakeCell {
	return &fakeCell{addr: addr, parent: parent, status: actor.Running, children: map[actor.Address]struct{}{}}
}

func (f *fakeCell) Address() actor.Address  { return f.addr }
func (f *fakeCell) Parent() actor.Address   { return f.parent }
func (f *fakeCell) Status() actor.CellStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}
func (f *fakeCell) Incarnation() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.incarnation
}

func (f *fakeCell) Restart(ctx context.Context, reason error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restartErr != nil {
		return f.restartErr
	}
	f.restarts++
	f.incarnation++
	f.status = actor.Running
	return nil
}

func (f *fakeCell) Stop(ctx context.Context, reason error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.status = actor.Stopped
}

func (f *fakeCell) ResumeFromFailure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	f.status = actor.Running
}

func (f *fakeCell) AddChild(child actor.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[child] = struct{}{}
}

func (f *fakeCell) RemoveChild(child actor.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.children, child)
}

func (f *fakeCell) hasChild(child actor.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.children[child]
	return ok
}

type fakeEvents struct {
	mu        sync.Mutex
	restarted []actor.Address
	stopped   []actor.Address
	failed    []actor.Address
}

func (e *fakeEvents) EmitActorRestarted(addr actor.Address, incarnation int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restarted = append(e.restarted, addr)
}

func (e *fakeEvents) EmitActorStopped(addr actor.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = append(e.stopped, addr)
}

func (e *fakeEvents) EmitActorFailed(addr actor.Address, reason error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, addr)
}

func (e *fakeEvents) count(kind string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch kind {
	case "restarted":
		return len(e.restarted)
	case "stopped":
		return len(e.stopped)
	case "failed":
		return len(e.failed)
	}
	return 0
}

type fakeDLO struct {
	mu   sync.Mutex
	envs []actor.Envelope
}

func (d *fakeDLO) DeadLetter(to actor.Address, env actor.Envelope, reason error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.envs = append(d.envs, env)
}

func addr(id string) actor.Address {
	return actor.Address{Node: "n1", Kind: "worker", ID: id}
}

func TestNotifyFailureRestart(t *testing.T) {
	events := &fakeEvents{}
	dlo := &fakeDLO{}
	guardianAddr := supervisor.GuardianAddress("n1")
	sup := supervisor.New(events, dlo, guardianAddr, nil)

	child := newFakeCell(addr("c1"), guardianAddr)
	sup.Register(child, actor.SupervisionStrategy{
		Decide:     actor.DefaultDecide,
		MaxRetries: 5,
		Window:     time.Second,
	})

	sup.NotifyFailure(context.Background(), child.Address(), errors.New("boom"), actor.Envelope{Type: "DO_WORK"})

	require.Equal(t, 1, child.restarts)
	require.Equal(t, 1, events.count("restarted"))
	require.Equal(t, 1, events.count("failed"))
}

func TestNotifyFailureResumeDropsEnvelope(t *testing.T) {
	events := &fakeEvents{}
	dlo := &fakeDLO{}
	guardianAddr := supervisor.GuardianAddress("n1")
	sup := supervisor.New(events, dlo, guardianAddr, nil)

	child := newFakeCell(addr("c1"), guardianAddr)
	sup.Register(child, actor.SupervisionStrategy{
		Decide: func(actor.Failure) actor.Directive { return actor.Resume },
	})

	sup.NotifyFailure(context.Background(), child.Address(), errors.New("boom"), actor.Envelope{Type: "DO_WORK"})

	require.Equal(t, 1, child.resumes)
	require.Equal(t, 0, child.restarts)
	require.Len(t, dlo.envs, 1)
	require.Equal(t, "DO_WORK", dlo.envs[0].Type)
}

func TestNotifyFailureStopDetachesFromParent(t *testing.T) {
	events := &fakeEvents{}
	dlo := &fakeDLO{}
	guardianAddr := supervisor.GuardianAddress("n1")
	sup := supervisor.New(events, dlo, guardianAddr, nil)

	parent := newFakeCell(guardianAddr, actor.Address{})
	sup.Register(parent, supervisor.DefaultStrategy())

	child := newFakeCell(addr("c1"), guardianAddr)
	parent.AddChild(child.Address())
	sup.Register(child, actor.SupervisionStrategy{
		Decide: func(actor.Failure) actor.Directive { return actor.Stop },
	})

	sup.NotifyFailure(context.Background(), child.Address(), errors.New("boom"), actor.Envelope{})

	require.Equal(t, 1, child.stops)
	require.False(t, parent.hasChild(child.Address()))
	require.Equal(t, 1, events.count("stopped"))
}

func TestRestartBudgetUpgradesToStop(t *testing.T) {
	events := &fakeEvents{}
	dlo := &fakeDLO{}
	guardianAddr := supervisor.GuardianAddress("n1")
	sup := supervisor.New(events, dlo, guardianAddr, nil)

	parent := newFakeCell(guardianAddr, actor.Address{})
	sup.Register(parent, supervisor.DefaultStrategy())

	child := newFakeCell(addr("c1"), guardianAddr)
	parent.AddChild(child.Address())
	sup.Register(child, actor.SupervisionStrategy{
		Decide:           actor.DefaultDecide,
		MaxRetries:       2,
		Window:           500 * time.Millisecond,
		OnBudgetExceeded: actor.Stop,
	})

	ctx := context.Background()
	sup.NotifyFailure(ctx, child.Address(), errors.New("e1"), actor.Envelope{})
	sup.NotifyFailure(ctx, child.Address(), errors.New("e2"), actor.Envelope{})
	sup.NotifyFailure(ctx, child.Address(), errors.New("e3"), actor.Envelope{})

	require.Equal(t, 2, child.restarts)
	require.Equal(t, 1, child.stops)
	require.Equal(t, 2, events.count("restarted"))
	require.Equal(t, 1, events.count("stopped"))
}

func TestEscalateToGuardianTerminatesSystem(t *testing.T) {
	events := &fakeEvents{}
	dlo := &fakeDLO{}
	guardianAddr := supervisor.GuardianAddress("n1")

	var terminated bool
	var mu sync.Mutex
	sup := supervisor.New(events, dlo, guardianAddr, func(ctx context.Context, reason error) {
		mu.Lock()
		terminated = true
		mu.Unlock()
	})

	child := newFakeCell(addr("c1"), guardianAddr)
	sup.Register(child, actor.SupervisionStrategy{
		Decide: func(actor.Failure) actor.Directive { return actor.Escalate },
	})

	sup.NotifyFailure(context.Background(), child.Address(), errors.New("fatal"), actor.Envelope{})

	mu.Lock()
	defer mu.Unlock()
	require.True(t, terminated)
}

func TestUnregisteredChildDeadLetters(t *testing.T) {
	dlo := &fakeDLO{}
	guardianAddr := supervisor.GuardianAddress("n1")
	sup := supervisor.New(&fakeEvents{}, dlo, guardianAddr, nil)

	sup.NotifyFailure(context.Background(), addr("ghost"), errors.New("boom"), actor.Envelope{Type: "X"})

	require.Len(t, dlo.envs, 1)
}
