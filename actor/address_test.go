package actor_test

import (
	"testing"

	"github.com/cellgrid/actorsys/actor"
	"github.com/stretchr/testify/require"
)

func TestAddressEquality(t *testing.T) {
	a := actor.NewAddress("node-1", "counter", "u1")
	b := actor.NewAddress("node-1", "counter", "u1")
	c := actor.NewAddress("node-1", "counter", "u2")

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestAddressWithPath(t *testing.T) {
	a := actor.NewAddress("node-1", "counter", "u1")
	withPath := a.WithPath("shard-3")

	require.Equal(t, "", a.Path)
	require.Equal(t, "shard-3", withPath.Path)
	require.False(t, a.Equal(withPath))
}

func TestAddressString(t *testing.T) {
	a := actor.NewAddress("node-1", "counter", "u1")
	require.Equal(t, "actor://node-1/counter/u1", a.String())

	withPath := a.WithPath("shard-3")
	require.Equal(t, "actor://node-1/counter/u1#shard-3", withPath.String())
}

func TestAddressIsZero(t *testing.T) {
	var zero actor.Address
	require.True(t, zero.IsZero())

	a := actor.NewAddress("node-1", "counter", "u1")
	require.False(t, a.IsZero())
}
