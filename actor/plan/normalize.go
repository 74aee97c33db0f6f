package plan

import (
	"fmt"

	"github.com/cellgrid/actorsys/actor"
)

// Normalize flattens p into an ordered list of leaf plan elements
// (Nothing, DomainEvent, SendInstruction, AskInstruction). A top-level
// Sequence is flattened one level; a Sequence nested inside another
// Sequence is rejected with ErrInvalidPlan.
func Normalize(p actor.MessagePlan) ([]actor.MessagePlan, error) {
	switch v := p.(type) {
	case nil:
		return []actor.MessagePlan{actor.Nothing{}}, nil

	case actor.Sequence:
		out := make([]actor.MessagePlan, 0, len(v.Elements))
		for _, elem := range v.Elements {
			if _, nested := elem.(actor.Sequence); nested {
				return nil, fmt.Errorf("%w: nested Sequence is not permitted", actor.ErrInvalidPlan)
			}
			out = append(out, elem)
		}
		if len(out) == 0 {
			return []actor.MessagePlan{actor.Nothing{}}, nil
		}
		return out, nil

	case actor.Nothing, actor.DomainEvent, actor.SendInstruction, actor.AskInstruction:
		return []actor.MessagePlan{v}, nil

	default:
		return nil, fmt.Errorf("%w: unrecognized plan type %T", actor.ErrInvalidPlan, p)
	}
}
