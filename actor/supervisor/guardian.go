package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/cellgrid/actorsys/actor"
)

// GuardianKind is the well-known Kind segment of the root guardian's
// address.
const GuardianKind = "system"

// GuardianID is the well-known ID segment of the root guardian's
// address.
const GuardianID = "guardian"

// GuardianAddress builds the well-known guardian address for node.
func GuardianAddress(node string) actor.Address {
	return actor.Address{Node: node, Kind: GuardianKind, ID: GuardianID, Path: "guardian"}
}

// Message types the guardian accepts via the ask pattern.
const (
	MsgSpawnActor        = "SPAWN_ACTOR"
	MsgStopActor         = "STOP_ACTOR"
	MsgShutdown          = "SHUTDOWN"
	MsgGetSystemInfo     = "GET_SYSTEM_INFO"
	MsgSystemHealthCheck = "SYSTEM_HEALTH_CHECK"
)

// SpawnActorRequest is the payload of a SPAWN_ACTOR ask.
type SpawnActorRequest struct {
	Kind       string
	ID         string
	Parent     actor.Address
	MailboxCap int
	Strategy   actor.SupervisionStrategy
}

// StopActorRequest is the payload of a STOP_ACTOR ask.
type StopActorRequest struct {
	Target actor.Address
}

// SystemInfo is the reply payload of a GET_SYSTEM_INFO ask.
type SystemInfo struct {
	NodeID       string
	StartedAt    time.Time
	Uptime       time.Duration
	ActorCount   int
	MessageCount int64
	ShuttingDown bool
}

// HealthCheckResult is the reply payload of a SYSTEM_HEALTH_CHECK ask.
type HealthCheckResult struct {
	Healthy      bool
	ActorCount   int
	MessageCount int64
}

// Spawner is the port the guardian uses to perform the actual work of
// spawning/stopping children and tearing the system down; implemented
// by package system, which is the only package that knows how to
// build a cell, mailbox, and supervisor registration together.
type Spawner interface {
	SpawnChild(ctx context.Context, parent actor.Address, req SpawnActorRequest) (actor.Address, error)
	StopChild(ctx context.Context, target actor.Address) error
	Shutdown(ctx context.Context) error
	Info() SystemInfo
}

// Guardian is the root cell's Behavior. It has no
// private state of its own beyond a shutdown flag; all real state
// (the actor registry, message counters) lives behind the Spawner
// port in package system.
type Guardian struct {
	spawner      Spawner
	self         actor.Address
	shuttingDown bool
}

// NewGuardian constructs the guardian behavior bound to self, backed
// by spawner.
func NewGuardian(self actor.Address, spawner Spawner) *Guardian {
	return &Guardian{self: self, spawner: spawner}
}

// OnMessage implements actor.Behavior.
func (g *Guardian) OnMessage(ctx context.Context, env actor.Envelope) (actor.MessagePlan, error) {
	switch env.Type {
	case MsgSpawnActor:
		return g.handleSpawn(ctx, env)
	case MsgStopActor:
		return g.handleStop(ctx, env)
	case MsgShutdown:
		return g.handleShutdown(ctx, env)
	case MsgGetSystemInfo:
		return g.reply(env, g.spawner.Info()), nil
	case MsgSystemHealthCheck:
		info := g.spawner.Info()
		return g.reply(env, HealthCheckResult{
			Healthy:      !g.shuttingDown,
			ActorCount:   info.ActorCount,
			MessageCount: info.MessageCount,
		}), nil
	default:
		if env.IsSys() {
			// SYS:CHILD_FAILED etc for children registered directly
			// under the guardian are delivered to Supervisor.NotifyFailure
			// out of band (see cell.FailureNotifier), not through this
			// mailbox; any other SYS: traffic here is unexpected but
			// harmless.
			return actor.Nothing{}, nil
		}
		return actor.Nothing{}, fmt.Errorf("actor: guardian received unrecognized message %q", env.Type)
	}
}

func (g *Guardian) handleSpawn(ctx context.Context, env actor.Envelope) (actor.MessagePlan, error) {
	if g.shuttingDown {
		return g.replyErr(env, fmt.Errorf("actor: system is shutting down")), nil
	}
	req, ok := env.Payload.(SpawnActorRequest)
	if !ok {
		return g.replyErr(env, fmt.Errorf("actor: SPAWN_ACTOR payload must be SpawnActorRequest")), nil
	}
	if req.Parent.IsZero() {
		req.Parent = g.self
	}
	addr, err := g.spawner.SpawnChild(ctx, req.Parent, req)
	if err != nil {
		return g.replyErr(env, err), nil
	}
	return g.reply(env, addr), nil
}

func (g *Guardian) handleStop(ctx context.Context, env actor.Envelope) (actor.MessagePlan, error) {
	req, ok := env.Payload.(StopActorRequest)
	if !ok {
		return g.replyErr(env, fmt.Errorf("actor: STOP_ACTOR payload must be StopActorRequest")), nil
	}
	if err := g.spawner.StopChild(ctx, req.Target); err != nil {
		return g.replyErr(env, err), nil
	}
	return g.reply(env, req.Target), nil
}

func (g *Guardian) handleShutdown(ctx context.Context, env actor.Envelope) (actor.MessagePlan, error) {
	g.shuttingDown = true
	err := g.spawner.Shutdown(ctx)
	if err != nil {
		return g.replyErr(env, err), nil
	}
	return g.reply(env, "ok"), nil
}

// reply builds the RESPONSE send instruction for an ask.
func (g *Guardian) reply(env actor.Envelope, payload any) actor.MessagePlan {
	if env.Sender == nil || env.CorrelationID == "" {
		return actor.Nothing{}
	}
	return actor.SendInstruction{
		To: *env.Sender,
		Tell: actor.Envelope{
			Type:          actor.TypeResponse,
			Payload:       payload,
			CorrelationID: env.CorrelationID,
		},
	}
}

func (g *Guardian) replyErr(env actor.Envelope, err error) actor.MessagePlan {
	return g.reply(env, err.Error())
}

var _ actor.Behavior = (*Guardian)(nil)
