// Package actor defines the core vocabulary of the runtime: Address,
// Envelope, MessagePlan, Behavior, Mailbox, Config, and the sentinel
// errors every other package builds on. It has no dependency on any
// other package in this module, so it can be imported freely by
// actor/mailbox, actor/correlation, actor/eventbus, actor/plan,
// actor/cell, actor/scheduler, actor/supervisor, actor/virtual, and
// system without creating an import cycle.
package actor
