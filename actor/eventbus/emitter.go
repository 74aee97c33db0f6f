package eventbus

import (
	"context"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/internal/log"
)

// ActorLifecyclePayload is the JSON shape published for
// actorSpawned/actorStopped/actorRestarted/actorFailed.
type ActorLifecyclePayload struct {
	Address     string `json:"address"`
	Incarnation int    `json:"incarnation,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// DeadLetterPayload is the JSON shape published for deadLetter, and
// the shape internal/deadletter.Sink.SubscribeSystemEvents expects to
// decode.
type DeadLetterPayload struct {
	Node          string `json:"node"`
	Kind          string `json:"kind"`
	ID            string `json:"id"`
	Path          string `json:"path"`
	MessageType   string `json:"message_type"`
	Reason        string `json:"reason"`
	CorrelationID string `json:"correlation_id"`
}

// Emitter adapts a SystemEvents hub to the narrow emission ports other
// packages consume (actor/supervisor.Events, actor/cell.DeadLetterSink,
// actor/mailbox.DeadLetterSink), so package system can hand out one
// *Emitter everywhere instead of re-deriving these adapters.
type Emitter struct {
	hub *SystemEvents
}

// NewEmitter wraps hub.
func NewEmitter(hub *SystemEvents) *Emitter {
	return &Emitter{hub: hub}
}

func (e *Emitter) publish(topic string, payload any) {
	if err := e.hub.Publish(topic, payload); err != nil {
		log.WarnS(context.Background(), "failed to publish system event",
			"topic", topic, "err", err)
	}
}

// EmitActorSpawned implements the actorSpawned system event.
func (e *Emitter) EmitActorSpawned(addr actor.Address) {
	e.publish(TopicActorSpawned, ActorLifecyclePayload{Address: addr.String()})
}

// EmitActorStopped implements actor/supervisor.Events.
func (e *Emitter) EmitActorStopped(addr actor.Address) {
	e.publish(TopicActorStopped, ActorLifecyclePayload{Address: addr.String()})
}

// EmitActorRestarted implements actor/supervisor.Events.
func (e *Emitter) EmitActorRestarted(addr actor.Address, incarnation int) {
	e.publish(TopicActorRestarted, ActorLifecyclePayload{
		Address: addr.String(), Incarnation: incarnation,
	})
}

// EmitActorFailed implements actor/supervisor.Events.
func (e *Emitter) EmitActorFailed(addr actor.Address, reason error) {
	reasonStr := ""
	if reason != nil {
		reasonStr = reason.Error()
	}
	e.publish(TopicActorFailed, ActorLifecyclePayload{
		Address: addr.String(), Reason: reasonStr,
	})
}

// DeadLetter implements actor/cell.DeadLetterSink and
// actor/mailbox.DeadLetterSink: every envelope the runtime cannot
// deliver is surfaced as a deadLetter system event rather than
// logged, so user actors can observe delivery failures.
func (e *Emitter) DeadLetter(to actor.Address, env actor.Envelope, reason error) {
	reasonStr := ""
	if reason != nil {
		reasonStr = reason.Error()
	}
	e.publish(TopicDeadLetter, DeadLetterPayload{
		Node: to.Node, Kind: to.Kind, ID: to.ID, Path: to.Path,
		MessageType:   env.Type,
		Reason:        reasonStr,
		CorrelationID: env.CorrelationID,
	})
}
