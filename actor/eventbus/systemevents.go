package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Well-known system-event topics. Runtime lifecycle events have no
// single logical publisher, so they flow through a shared hub rather
// than the per-publisher subscription table.
const (
	TopicActorSpawned   = "actorSpawned"
	TopicActorStopped   = "actorStopped"
	TopicActorRestarted = "actorRestarted"
	TopicActorFailed    = "actorFailed"
	TopicDeadLetter     = "deadLetter"
)

// SystemEvents is the distinguished system-event actor's transport:
// an in-memory watermill pub/sub hub. Subscribers register through
// Subscribe the same way an actor registers through the per-publisher
// Table; publication fans out through a single hub instead of a
// per-publisher list because system events have no single logical
// publisher.
type SystemEvents struct {
	pubsub *gochannel.GoChannel
}

// NewSystemEvents constructs the hub. Published messages are retained
// only for currently-subscribed readers (gochannel.Config zero value),
// matching the runtime's in-memory, non-durable design.
func NewSystemEvents() *SystemEvents {
	return &SystemEvents{
		pubsub: gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}),
	}
}

// Publish marshals payload to JSON and publishes it to topic.
func (s *SystemEvents) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("eventbus: marshal system event for topic %s: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	if err := s.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("eventbus: publish system event to topic %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns a channel of messages for topic. Callers unmarshal
// Payload themselves; the hub does not impose a schema beyond the
// well-known topic constants above.
func (s *SystemEvents) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.pubsub.Subscribe(ctx, topic)
}

// Close shuts down the hub, closing every subscriber channel.
func (s *SystemEvents) Close() error {
	return s.pubsub.Close()
}
