package actor_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cellgrid/actorsys/actor"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := actor.DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, actor.RoundRobinPlacement, cfg.PlacementStrategy)
	require.Equal(t, 5*time.Second, cfg.DefaultAskTimeout())
}

func TestConfigApplyOptions(t *testing.T) {
	cfg := actor.DefaultConfig().Apply(
		actor.WithNodeID("node-7"),
		actor.WithMaxActors(10),
		actor.WithDefaultMailboxCapacity(64),
		actor.WithDefaultAskTimeout(250*time.Millisecond),
		actor.WithVirtualCacheSize(2),
		actor.WithVirtualMaxIdle(time.Minute),
		actor.WithPlacementStrategy(actor.ConsistentHashPlacement),
	)

	require.NoError(t, cfg.Validate())
	require.Equal(t, "node-7", cfg.NodeID)
	require.Equal(t, 10, cfg.MaxActors)
	require.Equal(t, 64, cfg.DefaultMailboxCapacity)
	require.Equal(t, 250*time.Millisecond, cfg.DefaultAskTimeout())
	require.Equal(t, 2, cfg.VirtualCacheSize)
	require.Equal(t, time.Minute, cfg.VirtualMaxIdle())
	require.Equal(t, actor.ConsistentHashPlacement, cfg.PlacementStrategy)
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	bad := actor.DefaultConfig()
	bad.NodeID = ""
	require.Error(t, bad.Validate())

	bad = actor.DefaultConfig()
	bad.MaxActors = 0
	require.Error(t, bad.Validate())

	bad = actor.DefaultConfig()
	bad.PlacementStrategy = "nonexistent"
	require.Error(t, bad.Validate())
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "node_id: node-9\nmax_actors: 500\nplacement_strategy: load-aware\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := actor.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "node-9", cfg.NodeID)
	require.Equal(t, 500, cfg.MaxActors)
	require.Equal(t, actor.LoadAwarePlacement, cfg.PlacementStrategy)
	require.Equal(t, actor.DefaultConfig().DefaultMailboxCapacity, cfg.DefaultMailboxCapacity)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := actor.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
