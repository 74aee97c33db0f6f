// Package eventbus implements the event bus: a per-publisher topic
// subscription table routing EMIT:<topic> envelopes to subscribers,
// plus the distinguished system-event hub for the runtime lifecycle
// events (actorSpawned, actorStopped, actorRestarted, actorFailed,
// deadLetter).
package eventbus

import (
	"sync"

	"github.com/cellgrid/actorsys/actor"
)

// Wildcard is the subscription topic that matches every emit from its
// publisher.
const Wildcard = actor.EmitPrefix + "*"

// Subscription pairs a subscriber address with the topic pattern it
// registered for on one publisher.
type Subscription struct {
	Subscriber actor.Address
	Topic      string
}

// Table is a per-publisher subscription table: each publisher address
// owns its own independent list of subscriptions, so two publishers
// emitting the same event type never cross-deliver to each other's
// subscribers.
type Table struct {
	mu   sync.RWMutex
	subs map[actor.Address][]Subscription
}

// NewTable constructs an empty subscription table.
func NewTable() *Table {
	return &Table{subs: make(map[actor.Address][]Subscription)}
}

// Subscribe registers subscriber to receive topic emissions from
// publisher. topic is either a concrete EMIT:<type> string or
// Wildcard. Re-subscribing with the same (publisher, subscriber,
// topic) tuple is a no-op.
func (t *Table) Subscribe(publisher, subscriber actor.Address, topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.subs[publisher] {
		if s.Subscriber == subscriber && s.Topic == topic {
			return
		}
	}
	t.subs[publisher] = append(t.subs[publisher], Subscription{
		Subscriber: subscriber,
		Topic:      topic,
	})
}

// Unsubscribe removes one (subscriber, topic) registration from
// publisher's table.
func (t *Table) Unsubscribe(publisher, subscriber actor.Address, topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.subs[publisher]
	for i, s := range list {
		if s.Subscriber == subscriber && s.Topic == topic {
			t.subs[publisher] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// UnsubscribeAll removes every subscription subscriber holds against
// publisher, used when subscriber stops.
func (t *Table) UnsubscribeAll(publisher, subscriber actor.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.subs[publisher]
	out := list[:0]
	for _, s := range list {
		if s.Subscriber != subscriber {
			out = append(out, s)
		}
	}
	t.subs[publisher] = out
}

// RemovePublisher drops publisher's entire subscription table, called
// when the publisher cell stops for good (not on a transient
// restart — restarted cells keep the same address and re-subscribe
// their prior subscribers automatically because the table is keyed by
// address, not incarnation).
func (t *Table) RemovePublisher(publisher actor.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, publisher)
}

// MatchingSubscribers returns every subscriber address registered
// against publisher whose topic matches eventType (a bare domain event
// type, not yet EMIT:-prefixed).
func (t *Table) MatchingSubscribers(publisher actor.Address, eventType string) []actor.Address {
	topic := actor.EmitType(eventType)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []actor.Address
	for _, s := range t.subs[publisher] {
		if s.Topic == Wildcard || s.Topic == topic {
			out = append(out, s.Subscriber)
		}
	}
	return out
}

// Subscriptions returns a snapshot of publisher's subscription list,
// for operational inspection.
func (t *Table) Subscriptions(publisher actor.Address) []Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := t.subs[publisher]
	out := make([]Subscription, len(list))
	copy(out, list)
	return out
}
