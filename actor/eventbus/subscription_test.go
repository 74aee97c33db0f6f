package eventbus_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/actor/eventbus"
)

func TestSubscribeAndMatch(t *testing.T) {
	table := eventbus.NewTable()
	pub := actor.NewAddress("node-1", "counter", "u1")
	sub := actor.NewAddress("node-1", "logger", "l1")

	table.Subscribe(pub, sub, actor.EmitType("COUNT_CHANGED"))

	matches := table.MatchingSubscribers(pub, "COUNT_CHANGED")
	require.Equal(t, []actor.Address{sub}, matches)

	none := table.MatchingSubscribers(pub, "OTHER_EVENT")
	require.Empty(t, none)
}

func TestWildcardSubscriptionMatchesEverything(t *testing.T) {
	table := eventbus.NewTable()
	pub := actor.NewAddress("node-1", "counter", "u1")
	sub := actor.NewAddress("node-1", "logger", "l1")

	table.Subscribe(pub, sub, eventbus.Wildcard)

	require.Equal(t, []actor.Address{sub}, table.MatchingSubscribers(pub, "ANYTHING"))
	require.Equal(t, []actor.Address{sub}, table.MatchingSubscribers(pub, "SOMETHING_ELSE"))
}

func TestUnsubscribeRemovesOneRegistration(t *testing.T) {
	table := eventbus.NewTable()
	pub := actor.NewAddress("node-1", "counter", "u1")
	sub := actor.NewAddress("node-1", "logger", "l1")

	table.Subscribe(pub, sub, actor.EmitType("A"))
	table.Subscribe(pub, sub, actor.EmitType("B"))

	table.Unsubscribe(pub, sub, actor.EmitType("A"))

	require.Empty(t, table.MatchingSubscribers(pub, "A"))
	require.NotEmpty(t, table.MatchingSubscribers(pub, "B"))
}

func TestUnsubscribeAllRemovesEveryTopicForSubscriber(t *testing.T) {
	table := eventbus.NewTable()
	pub := actor.NewAddress("node-1", "counter", "u1")
	sub1 := actor.NewAddress("node-1", "logger", "l1")
	sub2 := actor.NewAddress("node-1", "logger", "l2")

	table.Subscribe(pub, sub1, actor.EmitType("A"))
	table.Subscribe(pub, sub1, actor.EmitType("B"))
	table.Subscribe(pub, sub2, actor.EmitType("A"))

	table.UnsubscribeAll(pub, sub1)

	require.Equal(t, []actor.Address{sub2}, table.MatchingSubscribers(pub, "A"))
	require.Empty(t, table.MatchingSubscribers(pub, "B"))
}

func TestRemovePublisherDropsEntireTable(t *testing.T) {
	table := eventbus.NewTable()
	pub := actor.NewAddress("node-1", "counter", "u1")
	sub := actor.NewAddress("node-1", "logger", "l1")

	table.Subscribe(pub, sub, eventbus.Wildcard)
	table.RemovePublisher(pub)

	require.Empty(t, table.MatchingSubscribers(pub, "ANYTHING"))
}

// TestSubscriptionIsolation is a property test: subscribing to
// one publisher's events must never deliver another publisher's
// events of the same topic to the same subscriber.
func TestSubscriptionIsolation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		table := eventbus.NewTable()

		pubA := actor.NewAddress("node-1", "counter", "a")
		pubB := actor.NewAddress("node-1", "counter", "b")
		sub := actor.NewAddress("node-1", "logger", "l1")

		eventType := rapid.StringMatching(`[A-Z]{1,10}`).Draw(rt, "event_type")

		table.Subscribe(pubA, sub, actor.EmitType(eventType))

		require.Equal(rt, []actor.Address{sub}, table.MatchingSubscribers(pubA, eventType))
		require.Empty(rt, table.MatchingSubscribers(pubB, eventType))
	})
}
