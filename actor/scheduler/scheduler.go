// Package scheduler dispatches ready cells onto bounded worker
// capacity, with fairness and non-blocking backpressure. Capacity is
// controlled with golang.org/x/sync's weighted semaphore rather than
// a hand-rolled counting channel.
package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/internal/log"
)

// Runnable is a schedulable unit: a cell that can run exactly one turn
// when given worker capacity.
type Runnable interface {
	Address() actor.Address
	RunOneTurn(ctx context.Context)
}

// Scheduler dispatches Runnables submitted via Submit onto a bounded
// pool of concurrent turns. Submit returns at once while the ready
// channel has room; once queueSize submissions are pending, it blocks
// until the dispatch loop takes one or the scheduler stops.
type Scheduler struct {
	capacity *semaphore.Weighted
	readyCh  chan Runnable

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs a Scheduler with workerCapacity concurrent turns in
// flight at most, buffering up to queueSize pending submissions
// before Submit itself would need to block. The buffer is bounded;
// per-cell submission dedup in the caller keeps it from growing with
// message volume.
func New(workerCapacity int64, queueSize int) *Scheduler {
	if workerCapacity <= 0 {
		workerCapacity = 1
	}
	if queueSize <= 0 {
		queueSize = 4096
	}
	return &Scheduler{
		capacity: semaphore.NewWeighted(workerCapacity),
		readyCh:  make(chan Runnable, queueSize),
	}
}

// Start begins the dispatch loop.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.wg.Add(1)
		go s.dispatchLoop()
	})
}

// Submit hands r to the scheduler for its next turn. Safe to call
// concurrently and from within a running turn.
func (s *Scheduler) Submit(r Runnable) {
	if s.ctx == nil {
		return
	}
	select {
	case s.readyCh <- r:
	case <-s.ctx.Done():
	}
}

func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case r := <-s.readyCh:
			if err := s.capacity.Acquire(s.ctx, 1); err != nil {
				return
			}
			go s.runTurn(r)
		}
	}
}

func (s *Scheduler) runTurn(r Runnable) {
	defer s.capacity.Release(1)
	r.RunOneTurn(s.ctx)
}

// Stop halts the dispatch loop and waits for in-flight turns submitted
// before Stop was called to finish being dispatched. It does not wait
// for every in-flight RunOneTurn to return; callers that need a clean
// shutdown should stop individual cells first (see actor/cell.Stop)
// and only then stop the scheduler.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		log.DebugS(context.Background(), "scheduler stopped")
	})
}
