package actor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PlacementStrategy names a virtual-directory placement algorithm.
type PlacementStrategy string

const (
	RoundRobinPlacement     PlacementStrategy = "round-robin"
	ConsistentHashPlacement PlacementStrategy = "consistent-hash"
	LoadAwarePlacement      PlacementStrategy = "load-aware"
)

// Config is the runtime's external configuration surface, loadable
// from an operator YAML file with functional-option overrides applied
// in code on top of the loaded values.
type Config struct {
	NodeID                  string            `yaml:"node_id"`
	Debug                   bool              `yaml:"debug"`
	MaxActors               int               `yaml:"max_actors"`
	DefaultMailboxCapacity  int               `yaml:"default_mailbox_capacity"`
	DefaultAskTimeoutMs     int               `yaml:"default_ask_timeout_ms"`
	VirtualCacheSize        int               `yaml:"virtual_cache_size"`
	VirtualMaxIdleMs        int               `yaml:"virtual_max_idle_ms"`
	PlacementStrategy       PlacementStrategy `yaml:"placement_strategy"`
}

// DefaultConfig returns the runtime's baseline configuration.
func DefaultConfig() Config {
	return Config{
		NodeID:                 "node-1",
		Debug:                  false,
		MaxActors:              100_000,
		DefaultMailboxCapacity: 1024,
		DefaultAskTimeoutMs:    5_000,
		VirtualCacheSize:       10_000,
		VirtualMaxIdleMs:       10 * 60 * 1000,
		PlacementStrategy:      RoundRobinPlacement,
	}
}

// DefaultAskTimeout returns DefaultAskTimeoutMs as a time.Duration.
func (c Config) DefaultAskTimeout() time.Duration {
	return time.Duration(c.DefaultAskTimeoutMs) * time.Millisecond
}

// VirtualMaxIdle returns VirtualMaxIdleMs as a time.Duration.
func (c Config) VirtualMaxIdle() time.Duration {
	return time.Duration(c.VirtualMaxIdleMs) * time.Millisecond
}

// Validate reports a descriptive error for any field the runtime
// cannot operate with.
func (c Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("actor: config node_id must not be empty")
	}
	if c.MaxActors <= 0 {
		return fmt.Errorf("actor: config max_actors must be positive")
	}
	if c.DefaultMailboxCapacity <= 0 {
		return fmt.Errorf("actor: config default_mailbox_capacity must be positive")
	}
	if c.DefaultAskTimeoutMs <= 0 {
		return fmt.Errorf("actor: config default_ask_timeout_ms must be positive")
	}
	if c.VirtualCacheSize <= 0 {
		return fmt.Errorf("actor: config virtual_cache_size must be positive")
	}
	switch c.PlacementStrategy {
	case RoundRobinPlacement, ConsistentHashPlacement, LoadAwarePlacement:
	default:
		return fmt.Errorf("actor: config placement_strategy %q is not recognized", c.PlacementStrategy)
	}
	return nil
}

// LoadConfig reads a YAML file at path, starting from DefaultConfig()
// so an operator's file may specify only the fields it overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("actor: reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("actor: parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigOption mutates a Config, applied after DefaultConfig/LoadConfig
// to let callers override individual fields without hand-copying the
// struct.
type ConfigOption func(*Config)

// WithNodeID overrides NodeID.
func WithNodeID(id string) ConfigOption {
	return func(c *Config) { c.NodeID = id }
}

// WithMaxActors overrides MaxActors.
func WithMaxActors(n int) ConfigOption {
	return func(c *Config) { c.MaxActors = n }
}

// WithDefaultMailboxCapacity overrides DefaultMailboxCapacity.
func WithDefaultMailboxCapacity(n int) ConfigOption {
	return func(c *Config) { c.DefaultMailboxCapacity = n }
}

// WithDefaultAskTimeout overrides DefaultAskTimeoutMs.
func WithDefaultAskTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.DefaultAskTimeoutMs = int(d.Milliseconds()) }
}

// WithVirtualCacheSize overrides VirtualCacheSize.
func WithVirtualCacheSize(n int) ConfigOption {
	return func(c *Config) { c.VirtualCacheSize = n }
}

// WithVirtualMaxIdle overrides VirtualMaxIdleMs.
func WithVirtualMaxIdle(d time.Duration) ConfigOption {
	return func(c *Config) { c.VirtualMaxIdleMs = int(d.Milliseconds()) }
}

// WithPlacementStrategy overrides PlacementStrategy.
func WithPlacementStrategy(s PlacementStrategy) ConfigOption {
	return func(c *Config) { c.PlacementStrategy = s }
}

// Apply returns cfg with every option applied in order.
func (c Config) Apply(opts ...ConfigOption) Config {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
