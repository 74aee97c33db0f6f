package actor

import "strings"

// Reserved type prefixes. User code must not mint messages whose Type
// begins with either prefix; both are reserved for runtime traffic.
const (
	// EmitPrefix marks event-bus traffic produced by the Plan
	// Interpreter's fan-out of a domain event.
	EmitPrefix = "EMIT:"

	// SysPrefix marks internal supervisor / lifecycle traffic such as
	// SYS:CHILD_FAILED and SYS:ASK_TIMEOUT.
	SysPrefix = "SYS:"

	// TypeResponse is reserved for ask replies.
	TypeResponse = "RESPONSE"

	// SysContinuation carries an ask's resolved MessagePlan back into
	// its publisher's own mailbox, so the plan an on_ok/on_error
	// continuation returned runs as an ordinary later turn of that cell;
	// the continuation function itself runs on whatever goroutine
	// resolved the ask. Payload is the
	// actor.MessagePlan to execute; Type carries no other meaning.
	SysContinuation = SysPrefix + "CONTINUATION"
)

// Envelope is the message as it travels through the runtime: user
// Type/Payload plus runtime metadata. Metadata fields are reserved;
// Type and Payload are the user's to use freely (so long as Type does
// not collide with a reserved prefix).
type Envelope struct {
	// Type is a free-form string naming the message. Reserved prefixes
	// EmitPrefix and SysPrefix are runtime-owned.
	Type string

	// Payload is a JSON-shaped user value: nil, bool, number, string,
	// slice, map, or a struct the behavior knows how to assert on. The
	// runtime never inspects it beyond passing it through.
	Payload any

	// Sender is the address of the actor that sent this envelope, if
	// any. Replies and emits always set this to the publisher/replier.
	Sender *Address

	// CorrelationID ties an ask's reply back to the pending entry in
	// the Correlation Table. Empty for tells and for domain events that
	// are not ask replies.
	CorrelationID string

	// Timestamp is the Unix-nanosecond time the envelope was created.
	Timestamp int64

	// Version is a free-form schema version tag for Payload, owned by
	// user code.
	Version string
}

// NewEnvelope builds a bare envelope with the given type and payload.
// Metadata fields are left for the caller (typically the Plan
// Interpreter or a Mailbox.Send caller) to fill in.
func NewEnvelope(msgType string, payload any) Envelope {
	return Envelope{Type: msgType, Payload: payload}
}

// IsEmit reports whether this envelope is event-bus traffic.
func (e Envelope) IsEmit() bool {
	return strings.HasPrefix(e.Type, EmitPrefix)
}

// IsSys reports whether this envelope is internal supervisor traffic.
func (e Envelope) IsSys() bool {
	return strings.HasPrefix(e.Type, SysPrefix)
}

// IsResponse reports whether this envelope is an ask reply.
func (e Envelope) IsResponse() bool {
	return e.Type == TypeResponse
}

// EmitType returns the EMIT:<type> form of a bare domain event type for
// delivery to a subscriber.
func EmitType(msgType string) string {
	return EmitPrefix + msgType
}

// TopicFor returns the topic a subscriber filter must match to receive
// an emit of msgType. It is identical to EmitType; the name is kept
// distinct because callers reason about it as "a topic", not as a
// wire-level message type.
func TopicFor(msgType string) string {
	return EmitType(msgType)
}
