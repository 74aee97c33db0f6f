package system

import (
	"context"
	"fmt"
	"time"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/internal/log"
)

// PublishEvent implements plan.Publisher. A DomainEvent fans out two
// ways: it is fed back to the publishing cell as an
// ordinary envelope (a self-send, preserving publisher-local order
// since it goes through the same mailbox as everything else), and
// broadcast as EMIT:<type> to every subscriber currently registered
// against publisher.
func (s *System) PublishEvent(ctx context.Context, publisher actor.Address, eventType string, payload any) error {
	selfEnv := actor.Envelope{
		Type:      eventType,
		Payload:   payload,
		Sender:    &publisher,
		Timestamp: time.Now().UnixNano(),
	}
	if _, err := s.routeSend(ctx, publisher, selfEnv); err != nil {
		log.WarnS(ctx, "domain event self-feedback send failed",
			"publisher", publisher.String(), "type", eventType, "err", err)
	}

	subscribers := s.subs.MatchingSubscribers(publisher, eventType)
	if len(subscribers) == 0 {
		return nil
	}

	emitEnv := actor.Envelope{
		Type:      actor.EmitType(eventType),
		Payload:   payload,
		Sender:    &publisher,
		Timestamp: time.Now().UnixNano(),
	}
	for _, sub := range subscribers {
		if _, err := s.routeSend(ctx, sub, emitEnv); err != nil {
			log.WarnS(ctx, "event fan-out send failed",
				"publisher", publisher.String(), "subscriber", sub.String(),
				"type", eventType, "err", err)
		}
	}
	return nil
}

// Subscribe registers subscriber against publisher for topic (either a
// concrete EMIT:<type> string via actor.EmitType, or eventbus.Wildcard).
func (s *System) Subscribe(publisher, subscriber actor.Address, topic string) {
	s.subs.Subscribe(publisher, subscriber, topic)
}

// Unsubscribe removes one subscription registered through Subscribe.
func (s *System) Unsubscribe(publisher, subscriber actor.Address, topic string) {
	s.subs.Unsubscribe(publisher, subscriber, topic)
}

// UnsubscribeAll drops every subscription subscriber holds against
// publisher.
func (s *System) UnsubscribeAll(publisher, subscriber actor.Address) {
	s.subs.UnsubscribeAll(publisher, subscriber)
}

// ActivateVirtual implements virtual.Activator: it spawns a cell for a
// virtual actor at addr, supervised directly under the guardian.
func (s *System) ActivateVirtual(ctx context.Context, addr actor.Address, factory func() actor.Behavior) error {
	_, err := s.spawnCell(ctx, addr, s.guardianAddr, factory, s.cfg.DefaultMailboxCapacity, actor.SupervisionStrategy{})
	if err != nil {
		return fmt.Errorf("system: activating virtual actor %s: %w", addr.String(), err)
	}
	return nil
}

// DeactivateVirtual implements virtual.Activator: it tears down a
// virtual actor's cell on eviction or explicit Directory.Deactivate.
// Re-access after this transparently reactivates a fresh cell at the
// same address.
func (s *System) DeactivateVirtual(ctx context.Context, addr actor.Address, reason error) {
	if _, ok := s.lookupCell(addr); !ok {
		return
	}
	s.stopTree(ctx, addr)
	log.DebugS(ctx, "virtual actor deactivated", "address", addr.String(), "reason", reason)
}
