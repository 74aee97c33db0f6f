// Package virtual implements the virtual actor directory:
// address-to-cell resolution with activation on first access, a
// bounded LRU cache (hashicorp/golang-lru/v2), an idle reaper, and
// pluggable placement.
package virtual

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/internal/log"
)

// VirtualID identifies a virtual actor: a kind (which behavior
// factory to use) plus an instance id, optionally qualified by a
// partition.
type VirtualID struct {
	Kind      string
	ID        string
	Partition string
}

// String renders a stable cache-key form.
func (v VirtualID) String() string {
	if v.Partition == "" {
		return v.Kind + "/" + v.ID
	}
	return v.Kind + "/" + v.ID + "#" + v.Partition
}

// Entry is the directory's bookkeeping record for one active virtual
// actor.
type Entry struct {
	VirtualID       VirtualID
	Address         actor.Address
	Node            string
	LastAccessed    time.Time
	ActivationCount int64
	IsActive        bool
}

// Activator performs the actual work of bringing a virtual actor to
// life (spawning a cell under the guardian) and tearing it down,
// implemented by package system.
type Activator interface {
	ActivateVirtual(ctx context.Context, addr actor.Address, factory func() actor.Behavior) error
	DeactivateVirtual(ctx context.Context, addr actor.Address, reason error)
}

// Factory builds a fresh behavior instance for one kind.
type Factory func() actor.Behavior

// Stats is the operational snapshot exposed by Directory.Stats.
type Stats struct {
	HitCount      int64
	MissCount     int64
	CacheSize     int
	PerNodeActive map[string]int
}

// Directory is the Virtual Directory. Safe for concurrent use.
type Directory struct {
	activator Activator
	placement Placement
	node      string
	nodeSet   []string
	maxIdle   time.Duration

	mu        sync.RWMutex
	factories map[string]Factory
	cache     *lru.Cache[string, *Entry]

	hits   int64
	misses int64

	reapStop chan struct{}
	reapDone chan struct{}
}

// Config bundles Directory construction parameters.
type Config struct {
	Activator Activator
	Placement Placement
	Node      string
	NodeSet   []string
	Capacity  int
	MaxIdle   time.Duration
}

// New constructs a Directory. NodeSet defaults to []string{Node} for
// a single-node deployment; a future multi-node transport would
// supply the live node set.
func New(cfg Config) *Directory {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10_000
	}
	if len(cfg.NodeSet) == 0 {
		cfg.NodeSet = []string{cfg.Node}
	}
	if cfg.Placement == nil {
		cfg.Placement = NewRoundRobin()
	}

	d := &Directory{
		activator: cfg.Activator,
		placement: cfg.Placement,
		node:      cfg.Node,
		nodeSet:   cfg.NodeSet,
		maxIdle:   cfg.MaxIdle,
		factories: make(map[string]Factory),
		reapStop:  make(chan struct{}),
		reapDone:  make(chan struct{}),
	}

	cache, err := lru.NewWithEvict[string, *Entry](cfg.Capacity, d.onEvict)
	if err != nil {
		// Only returns an error for a non-positive size, already
		// guarded above.
		panic(fmt.Sprintf("virtual: building LRU cache: %v", err))
	}
	d.cache = cache

	if cfg.MaxIdle > 0 {
		go d.runReaper()
	} else {
		close(d.reapDone)
	}

	return d
}

// RegisterKind binds a behavior factory to kind. First access to an
// unknown virtual id runs the factory registered for its kind.
func (d *Directory) RegisterKind(kind string, factory Factory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.factories[kind] = factory
}

// Get resolves (kind, id, partition) to an address, activating a
// fresh cell on a cache miss. partition may be empty.
func (d *Directory) Get(ctx context.Context, kind, id, partition string) (actor.Address, error) {
	vid := VirtualID{Kind: kind, ID: id, Partition: partition}
	key := vid.String()

	d.mu.Lock()
	if e, ok := d.cache.Get(key); ok {
		e.LastAccessed = time.Now()
		e.ActivationCount++
		d.hits++
		d.mu.Unlock()
		return e.Address, nil
	}

	factory, ok := d.factories[kind]
	if !ok {
		d.mu.Unlock()
		return actor.Address{}, fmt.Errorf("%w: %s", actor.ErrUnknownKind, kind)
	}
	d.misses++
	node := d.placement.Select(vid, d.nodeSet)
	addr := actor.Address{Node: node, Kind: kind, ID: id, Path: partition}
	d.mu.Unlock()

	if err := d.activator.ActivateVirtual(ctx, addr, factory); err != nil {
		return actor.Address{}, fmt.Errorf("virtual: activating %s: %w", key, err)
	}

	entry := &Entry{
		VirtualID:       vid,
		Address:         addr,
		Node:            node,
		LastAccessed:    time.Now(),
		ActivationCount: 1,
		IsActive:        true,
	}

	d.mu.Lock()
	d.cache.Add(key, entry)
	d.mu.Unlock()

	log.DebugS(ctx, "virtual actor activated", "id", key, "node", node)
	return addr, nil
}

// Deactivate evicts (kind, id, partition) from the cache, draining
// and stopping its cell. Re-access after eviction transparently
// reactivates.
func (d *Directory) Deactivate(kind, id, partition string) {
	key := VirtualID{Kind: kind, ID: id, Partition: partition}.String()
	d.mu.Lock()
	d.cache.Remove(key)
	d.mu.Unlock()
}

// onEvict is the LRU callback driving both explicit Deactivate calls
// and capacity-triggered eviction. It runs
// synchronously under the cache's internal lock via hashicorp/golang-lru,
// so the actual teardown is handed off to a goroutine to avoid holding
// Directory.mu across an activator call.
func (d *Directory) onEvict(key string, entry *Entry) {
	entry.IsActive = false
	go d.activator.DeactivateVirtual(context.Background(), entry.Address,
		fmt.Errorf("virtual: evicted from directory (capacity or idle reaper)"))
}

// runReaper periodically deactivates entries idle longer than
// maxIdle.
func (d *Directory) runReaper() {
	defer close(d.reapDone)

	interval := d.maxIdle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.reapStop:
			return
		case <-ticker.C:
			d.reapIdle()
		}
	}
}

func (d *Directory) reapIdle() {
	now := time.Now()

	d.mu.Lock()
	var stale []string
	for _, key := range d.cache.Keys() {
		e, ok := d.cache.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(e.LastAccessed) >= d.maxIdle {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		d.cache.Remove(key)
	}
	d.mu.Unlock()
}

// Stop halts the idle reaper. Idempotent is not required; call once.
func (d *Directory) Stop() {
	select {
	case <-d.reapDone:
		return
	default:
	}
	close(d.reapStop)
	<-d.reapDone
}

// Stats returns the directory's current hit/miss/size/per-node counts.
func (d *Directory) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	perNode := make(map[string]int)
	for _, key := range d.cache.Keys() {
		if e, ok := d.cache.Peek(key); ok && e.IsActive {
			perNode[e.Node]++
		}
	}

	return Stats{
		HitCount:      d.hits,
		MissCount:     d.misses,
		CacheSize:     d.cache.Len(),
		PerNodeActive: perNode,
	}
}

// ByNode returns every active entry placed on node.
func (d *Directory) ByNode(node string) []Entry {
	return d.filter(func(e *Entry) bool { return e.Node == node })
}

// ByKind returns every active entry of the given kind.
func (d *Directory) ByKind(kind string) []Entry {
	return d.filter(func(e *Entry) bool { return e.VirtualID.Kind == kind })
}

func (d *Directory) filter(match func(*Entry) bool) []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Entry
	for _, key := range d.cache.Keys() {
		e, ok := d.cache.Peek(key)
		if ok && match(e) {
			out = append(out, *e)
		}
	}
	return out
}
