package actor_test

import (
	"context"
	"testing"

	"github.com/cellgrid/actorsys/actor"
	"github.com/stretchr/testify/require"
)

func TestBehaviorFuncAdaptsPlainFunction(t *testing.T) {
	var calls int
	fn := actor.BehaviorFunc(func(ctx context.Context, env actor.Envelope) (actor.MessagePlan, error) {
		calls++
		return actor.Nothing{}, nil
	})

	var b actor.Behavior = fn
	plan, err := b.OnMessage(context.Background(), actor.NewEnvelope("PING", nil))

	require.NoError(t, err)
	require.Equal(t, actor.Nothing{}, plan)
	require.Equal(t, 1, calls)
}

func TestDirectiveString(t *testing.T) {
	require.Equal(t, "resume", actor.Resume.String())
	require.Equal(t, "restart", actor.Restart.String())
	require.Equal(t, "stop", actor.Stop.String())
	require.Equal(t, "escalate", actor.Escalate.String())
}

func TestDefaultDecideAlwaysRestarts(t *testing.T) {
	d := actor.DefaultDecide(actor.Failure{})
	require.Equal(t, actor.Restart, d)
}
