package actor_test

import (
	"testing"
	"time"

	"github.com/cellgrid/actorsys/actor"
	"github.com/stretchr/testify/require"
)

func TestMessagePlanVariantsImplementInterface(t *testing.T) {
	var plans = []actor.MessagePlan{
		actor.Nothing{},
		actor.DomainEvent{Type: "COUNT_CHANGED", Payload: 3},
		actor.SendInstruction{
			To:   actor.NewAddress("node-1", "counter", "u1"),
			Tell: actor.NewEnvelope("PING", nil),
			Mode: actor.FireAndForget,
		},
		actor.AskInstruction{
			To:      actor.NewAddress("node-1", "counter", "u1"),
			Ask:     actor.NewEnvelope("GET", nil),
			Timeout: time.Second,
		},
		actor.Seq(actor.Nothing{}, actor.DomainEvent{Type: "X"}),
	}

	require.Len(t, plans, 5)
}

func TestSendModeConstructors(t *testing.T) {
	require.Equal(t, actor.SendMode{}, actor.FireAndForget)
	require.Equal(t, actor.SendMode{Retries: 3}, actor.Retry(3))
}

func TestSeqBuildsSequence(t *testing.T) {
	plan := actor.Seq(actor.Nothing{}, actor.DomainEvent{Type: "A"})
	seq, ok := plan.(actor.Sequence)
	require.True(t, ok)
	require.Len(t, seq.Elements, 2)
}
