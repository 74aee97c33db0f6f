package actor

import "context"

// PlanHandler executes a MessagePlan produced by a behavior's turn,
// performed by the Plan Interpreter (package actor/plan). Package
// actor/cell depends only on this function type, not on actor/plan
// directly, so the two packages can be composed by whichever package
// wires the runtime together (package system) without an import
// cycle: cell -> actor <- plan.
type PlanHandler func(ctx context.Context, self Address, plan MessagePlan) error
