package virtual

import (
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
)

// NodeMetrics is the per-node load sample a Placement strategy
// consults to decide whether an already-placed virtual id should
// migrate.
type NodeMetrics struct {
	// ActorCount is the number of active cells currently placed on the
	// node.
	ActorCount int

	// CPUPercent is a 0-100 load sample; zero if the caller does not
	// track it.
	CPUPercent float64

	// Healthy is false once a node has been marked unreachable; only
	// round-robin placement reacts to this.
	Healthy bool
}

// Placement selects which node a virtual id activates on and whether
// an already-active entry should move.
type Placement interface {
	// Select returns the node from nodes that virtualID should place
	// on. nodes is never empty.
	Select(virtualID VirtualID, nodes []string) string

	// ShouldMigrate reports whether entry (already active) should be
	// relocated given the current per-node metrics.
	ShouldMigrate(entry Entry, metrics map[string]NodeMetrics) bool
}

// roundRobinPlacement cycles through the node set with an atomic
// counter, so consecutive activations spread evenly regardless of id
// distribution.
type roundRobinPlacement struct {
	next atomic.Uint64
}

// NewRoundRobin constructs the round-robin placement strategy.
func NewRoundRobin() Placement {
	return &roundRobinPlacement{}
}

func (p *roundRobinPlacement) Select(_ VirtualID, nodes []string) string {
	idx := p.next.Add(1) % uint64(len(nodes))
	return nodes[idx]
}

func (p *roundRobinPlacement) ShouldMigrate(entry Entry, metrics map[string]NodeMetrics) bool {
	m, ok := metrics[entry.Node]
	return ok && !m.Healthy
}

// consistentHashPlacement maps a virtual id to a stable node via an
// FNV-hashed sorted node ring, so the same id maps to the same node
// while the node set is unchanged; it never migrates on transient
// load, only when the node it was placed on leaves the set (handled
// by the caller re-Select-ing on next activation, since the entry was
// evicted along with the departed node).
type consistentHashPlacement struct {
	mu sync.Mutex
}

// NewConsistentHash constructs the consistent-hash placement strategy.
func NewConsistentHash() Placement {
	return &consistentHashPlacement{}
}

func (p *consistentHashPlacement) Select(virtualID VirtualID, nodes []string) string {
	sorted := make([]string, len(nodes))
	copy(sorted, nodes)
	sort.Strings(sorted)

	h := fnv.New64a()
	_, _ = h.Write([]byte(virtualID.String()))
	sum := h.Sum64()

	return sorted[sum%uint64(len(sorted))]
}

func (p *consistentHashPlacement) ShouldMigrate(Entry, map[string]NodeMetrics) bool {
	// Conservative: consistent-hash placement does not move an entry
	// on transient load spikes.
	return false
}

// loadAwarePlacement picks the lowest-load node at activation time and
// migrates once a node's actor count or CPU exceeds the configured
// thresholds.
type loadAwarePlacement struct {
	maxActorsPerNode int
	maxCPUPercent    float64
	metrics          func() map[string]NodeMetrics
}

// LoadAwareOption configures a load-aware placement strategy.
type LoadAwareOption func(*loadAwarePlacement)

// WithMaxActorsPerNode sets the actor-count migration threshold.
func WithMaxActorsPerNode(n int) LoadAwareOption {
	return func(p *loadAwarePlacement) { p.maxActorsPerNode = n }
}

// WithMaxCPUPercent sets the CPU-load migration threshold.
func WithMaxCPUPercent(pct float64) LoadAwareOption {
	return func(p *loadAwarePlacement) { p.maxCPUPercent = pct }
}

// WithMetricsSource supplies the live per-node metrics Select
// consults to find the lowest-load node. Without one, Select falls
// back to round-robin-by-hash over the given nodes.
func WithMetricsSource(src func() map[string]NodeMetrics) LoadAwareOption {
	return func(p *loadAwarePlacement) { p.metrics = src }
}

// NewLoadAware constructs the load-aware placement strategy.
func NewLoadAware(opts ...LoadAwareOption) Placement {
	p := &loadAwarePlacement{maxActorsPerNode: 1000, maxCPUPercent: 85}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *loadAwarePlacement) Select(virtualID VirtualID, nodes []string) string {
	if p.metrics == nil {
		h := fnv.New64a()
		_, _ = h.Write([]byte(virtualID.String()))
		return nodes[h.Sum64()%uint64(len(nodes))]
	}

	metrics := p.metrics()
	best := nodes[0]
	bestLoad := -1
	for _, n := range nodes {
		m := metrics[n]
		if bestLoad == -1 || m.ActorCount < bestLoad {
			best, bestLoad = n, m.ActorCount
		}
	}
	return best
}

func (p *loadAwarePlacement) ShouldMigrate(entry Entry, metrics map[string]NodeMetrics) bool {
	m, ok := metrics[entry.Node]
	if !ok {
		return false
	}
	return m.ActorCount > p.maxActorsPerNode || m.CPUPercent > p.maxCPUPercent
}
