package plan_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/actor/plan"
)

type fakeRouter struct {
	mu       sync.Mutex
	sent     []actor.Envelope
	failOnce bool
}

func (r *fakeRouter) RouteSend(ctx context.Context, to actor.Address, env actor.Envelope) (actor.EnqueueOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOnce {
		r.failOnce = false
		return actor.RejectedFull, errors.New("boom")
	}
	r.sent = append(r.sent, env)
	return actor.Enqueued, nil
}

func (r *fakeRouter) snapshot() []actor.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]actor.Envelope, len(r.sent))
	copy(out, r.sent)
	return out
}

type fakeCorrelator struct {
	registered int
	cancelled  []string
}

func (c *fakeCorrelator) RegisterAsk(publisher actor.Address, onOK func(any) actor.MessagePlan, onError func(error) actor.MessagePlan, timeout time.Duration) string {
	c.registered++
	return "corr-1"
}

func (c *fakeCorrelator) CancelAsk(corrID string) bool {
	c.cancelled = append(c.cancelled, corrID)
	return true
}

type fakePublisher struct {
	published []string
}

func (p *fakePublisher) PublishEvent(ctx context.Context, publisher actor.Address, eventType string, payload any) error {
	p.published = append(p.published, eventType)
	return nil
}

func TestInterpreterExecutesDomainEvent(t *testing.T) {
	router := &fakeRouter{}
	correlator := &fakeCorrelator{}
	publisher := &fakePublisher{}
	in := plan.New(router, correlator, publisher, time.Second)

	self := actor.NewAddress("node-1", "counter", "u1")
	err := in.Execute(context.Background(), self, actor.DomainEvent{Type: "COUNT_CHANGED"})

	require.NoError(t, err)
	require.Equal(t, []string{"COUNT_CHANGED"}, publisher.published)
}

func TestInterpreterExecutesSendInstruction(t *testing.T) {
	router := &fakeRouter{}
	correlator := &fakeCorrelator{}
	publisher := &fakePublisher{}
	in := plan.New(router, correlator, publisher, time.Second)

	self := actor.NewAddress("node-1", "counter", "u1")
	target := actor.NewAddress("node-1", "counter", "u2")
	err := in.Execute(context.Background(), self, actor.SendInstruction{
		To:   target,
		Tell: actor.NewEnvelope("PING", nil),
	})

	require.NoError(t, err)
	sent := router.snapshot()
	require.Len(t, sent, 1)
	require.Equal(t, "PING", sent[0].Type)
	require.Equal(t, self, *sent[0].Sender)
}

func TestInterpreterExecutesAskInstructionAndStampsCorrelationID(t *testing.T) {
	router := &fakeRouter{}
	correlator := &fakeCorrelator{}
	publisher := &fakePublisher{}
	in := plan.New(router, correlator, publisher, time.Second)

	self := actor.NewAddress("node-1", "counter", "u1")
	target := actor.NewAddress("node-1", "counter", "u2")
	err := in.Execute(context.Background(), self, actor.AskInstruction{
		To:  target,
		Ask: actor.NewEnvelope("GET", nil),
	})

	require.NoError(t, err)
	require.Equal(t, 1, correlator.registered)
	sent := router.snapshot()
	require.Len(t, sent, 1)
	require.Equal(t, "corr-1", sent[0].CorrelationID)
}

func TestInterpreterAskFailureCancelsAndRunsOnError(t *testing.T) {
	router := &fakeRouter{failOnce: true}
	correlator := &fakeCorrelator{}
	publisher := &fakePublisher{}
	in := plan.New(router, correlator, publisher, time.Second)

	self := actor.NewAddress("node-1", "counter", "u1")
	target := actor.NewAddress("node-1", "counter", "u2")

	var gotErr error
	err := in.Execute(context.Background(), self, actor.AskInstruction{
		To:  target,
		Ask: actor.NewEnvelope("GET", nil),
		OnError: func(e error) actor.MessagePlan {
			gotErr = e
			return actor.Nothing{}
		},
	})

	require.NoError(t, err)
	require.Error(t, gotErr)
	require.Equal(t, []string{"corr-1"}, correlator.cancelled)
}

func TestInterpreterExecutesSequenceInOrder(t *testing.T) {
	router := &fakeRouter{}
	correlator := &fakeCorrelator{}
	publisher := &fakePublisher{}
	in := plan.New(router, correlator, publisher, time.Second)

	self := actor.NewAddress("node-1", "counter", "u1")
	plan2 := actor.Seq(
		actor.DomainEvent{Type: "A"},
		actor.DomainEvent{Type: "B"},
	)

	err := in.Execute(context.Background(), self, plan2)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, publisher.published)
}

func TestInterpreterRejectsInvalidPlan(t *testing.T) {
	router := &fakeRouter{}
	correlator := &fakeCorrelator{}
	publisher := &fakePublisher{}
	in := plan.New(router, correlator, publisher, time.Second)

	self := actor.NewAddress("node-1", "counter", "u1")
	nested := actor.Seq(actor.Seq(actor.Nothing{}))

	err := in.Execute(context.Background(), self, nested)
	require.ErrorIs(t, err, actor.ErrInvalidPlan)
}
