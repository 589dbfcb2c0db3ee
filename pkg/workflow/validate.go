package workflow

import (
	"fmt"

	pkgerrors "github.com/tombee/drover/pkg/errors"
)

// Validate checks the structural rules every runnable workflow must
// satisfy. Load calls this; callers constructing workflows in code may
// call it directly.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return &pkgerrors.ValidationError{
			Field:      "name",
			Message:    "workflow name is required",
			Suggestion: "add a top-level name field",
		}
	}
	if len(w.Transitions) == 0 {
		return &pkgerrors.ValidationError{
			Field:   "transitions",
			Message: "workflow has no transitions",
		}
	}
	if w.InitialState == "" {
		return &pkgerrors.ValidationError{
			Field:   "initial_state",
			Message: "initial state is empty",
		}
	}

	// A from state is reachable in principle only when it is the initial
	// state or some transition's destination.
	reachable := map[string]bool{w.InitialState: true}
	for _, t := range w.Transitions {
		reachable[t.To()] = true
	}

	for i, t := range w.Transitions {
		where := fmt.Sprintf("transitions[%d]", i)
		if len(t.States) != 2 || t.States[0] == "" || t.States[1] == "" {
			return &pkgerrors.ValidationError{
				Field:   where + ".states",
				Message: "states must be a [from, to] pair of non-empty names",
			}
		}
		if !reachable[t.From()] {
			return &pkgerrors.ValidationError{
				Field:   where + ".states",
				Message: fmt.Sprintf("state %q is not part of the workflow", t.From()),
			}
		}
		for j, g := range t.Guards {
			if g.Actor == "" || g.Method == "" {
				return &pkgerrors.ValidationError{
					Field:   fmt.Sprintf("%s.guards[%d]", where, j),
					Message: "guard requires actor and method",
				}
			}
		}
		for j, a := range t.Actions {
			if a.Actor == "" || a.Method == "" {
				return &pkgerrors.ValidationError{
					Field:   fmt.Sprintf("%s.actions[%d]", where, j),
					Message: "action requires actor and method",
				}
			}
		}
	}
	return nil
}
