package plan_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/actor/plan"
)

func TestNormalizeNilIsNothing(t *testing.T) {
	elems, err := plan.Normalize(nil)
	require.NoError(t, err)
	require.Equal(t, []actor.MessagePlan{actor.Nothing{}}, elems)
}

func TestNormalizeLeafVariants(t *testing.T) {
	leaf := actor.DomainEvent{Type: "X"}
	elems, err := plan.Normalize(leaf)
	require.NoError(t, err)
	require.Equal(t, []actor.MessagePlan{leaf}, elems)
}

func TestNormalizeFlattensTopLevelSequence(t *testing.T) {
	seq := actor.Seq(
		actor.DomainEvent{Type: "A"},
		actor.Nothing{},
		actor.DomainEvent{Type: "B"},
	)

	elems, err := plan.Normalize(seq)
	require.NoError(t, err)
	require.Len(t, elems, 3)
	require.Equal(t, actor.DomainEvent{Type: "A"}, elems[0])
	require.Equal(t, actor.DomainEvent{Type: "B"}, elems[2])
}

func TestNormalizeRejectsNestedSequence(t *testing.T) {
	seq := actor.Seq(
		actor.Nothing{},
		actor.Seq(actor.DomainEvent{Type: "A"}),
	)

	_, err := plan.Normalize(seq)
	require.ErrorIs(t, err, actor.ErrInvalidPlan)
}

func TestNormalizeEmptySequenceIsNothing(t *testing.T) {
	elems, err := plan.Normalize(actor.Seq())
	require.NoError(t, err)
	require.Equal(t, []actor.MessagePlan{actor.Nothing{}}, elems)
}
