// Package demo wires a small actor tree — an echo actor and a counter
// actor with an event-bus subscriber — used by actorctl's run command
// to exercise a live system end to end without requiring an embedding
// application.
package demo

import (
	"context"
	"fmt"
	"sync"

	"github.com/cellgrid/actorsys/actor"
)

const (
	EchoKind    = "demo.echo"
	CounterKind = "demo.counter"
	LoggerKind  = "demo.logger"

	MsgPing           = "PING"
	MsgIncrement      = "INCREMENT"
	EventCountChanged = "COUNT_CHANGED"
)

// EchoBehavior replies with a RESPONSE carrying "pong:<payload>" to
// every PING ask and ignores
// tells, the simplest possible behavior exercising the ask/correlation
// path end to end.
type EchoBehavior struct{}

func (EchoBehavior) OnMessage(ctx context.Context, env actor.Envelope) (actor.MessagePlan, error) {
	if env.Type != MsgPing || env.Sender == nil || env.CorrelationID == "" {
		return actor.Nothing{}, nil
	}
	return actor.SendInstruction{
		To: *env.Sender,
		Tell: actor.Envelope{
			Type:          actor.TypeResponse,
			Payload:       fmt.Sprintf("pong:%v", env.Payload),
			CorrelationID: env.CorrelationID,
		},
	}, nil
}

// CounterBehavior holds an in-memory count and emits COUNT_CHANGED on
// every INCREMENT, exercising DomainEvent fan-out through the event
// bus.
type CounterBehavior struct {
	mu    sync.Mutex
	count int
}

func (c *CounterBehavior) OnMessage(ctx context.Context, env actor.Envelope) (actor.MessagePlan, error) {
	if env.Type != MsgIncrement {
		return actor.Nothing{}, nil
	}
	c.mu.Lock()
	c.count++
	n := c.count
	c.mu.Unlock()
	return actor.DomainEvent{Type: EventCountChanged, Payload: n}, nil
}

// LoggerBehavior records every emission it receives, standing in for an
// operator-visible subscriber.
type LoggerBehavior struct {
	mu   sync.Mutex
	Seen []actor.Envelope
}

func (l *LoggerBehavior) OnMessage(ctx context.Context, env actor.Envelope) (actor.MessagePlan, error) {
	l.mu.Lock()
	l.Seen = append(l.Seen, env)
	l.mu.Unlock()
	return actor.Nothing{}, nil
}

func (l *LoggerBehavior) Snapshot() []actor.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]actor.Envelope, len(l.Seen))
	copy(out, l.Seen)
	return out
}
