package eventbus_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cellgrid/actorsys/actor/eventbus"
)

func TestSystemEventsPublishAndSubscribe(t *testing.T) {
	hub := eventbus.NewSystemEvents()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := hub.Subscribe(ctx, eventbus.TopicActorRestarted)
	require.NoError(t, err)

	type payload struct {
		Address     string `json:"address"`
		Incarnation int    `json:"incarnation"`
	}
	want := payload{Address: "actor://node-1/counter/u1", Incarnation: 2}
	require.NoError(t, hub.Publish(eventbus.TopicActorRestarted, want))

	select {
	case msg := <-msgs:
		var got payload
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		require.Equal(t, want, got)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for system event")
	}
}

func TestSystemEventsTopicsAreIsolated(t *testing.T) {
	hub := eventbus.NewSystemEvents()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	spawned, err := hub.Subscribe(ctx, eventbus.TopicActorSpawned)
	require.NoError(t, err)

	require.NoError(t, hub.Publish(eventbus.TopicActorStopped, "u1"))

	select {
	case <-spawned:
		t.Fatal("received event published to a different topic")
	case <-time.After(50 * time.Millisecond):
	}
}
