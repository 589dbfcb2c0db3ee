// Package workflow defines the guarded state-machine workflow model and
// its interpreter.
//
// A workflow is a finite state machine: an initial state plus an ordered
// list of transitions. Each transition names a from/to state pair, an
// ordered list of guards, and an ordered list of actions. Guards and
// actions both address actors by name; the interpreter never executes
// anything itself, it only dispatches.
package workflow

import "github.com/expr-lang/expr/vm"

// Workflow is immutable after load.
type Workflow struct {
	Name         string       `yaml:"name" json:"name" xml:"name"`
	Description  string       `yaml:"description,omitempty" json:"description,omitempty" xml:"description,omitempty"`
	InitialState string       `yaml:"initial_state,omitempty" json:"initial_state,omitempty" xml:"initial_state,omitempty"`
	Transitions  []Transition `yaml:"transitions,omitempty" json:"transitions,omitempty" xml:"transitions>transition,omitempty"`

	// Steps is an alias accepted on load; Load folds it into Transitions.
	Steps []Transition `yaml:"steps,omitempty" json:"steps,omitempty" xml:"steps>step,omitempty"`

	// Path records where the workflow was loaded from, for reporting and
	// sub-workflow resolution.
	Path string `yaml:"-" json:"-" xml:"-"`
}

// Transition is one guarded edge of the state machine.
type Transition struct {
	// States is the [from, to] pair.
	States []string `yaml:"states" json:"states" xml:"states>state"`

	// When is an optional expression over {state, step, node} evaluated
	// before the guards. Compiled once at load.
	When string `yaml:"when,omitempty" json:"when,omitempty" xml:"when,omitempty"`

	Guards  []Guard  `yaml:"guards,omitempty" json:"guards,omitempty" xml:"guards>guard,omitempty"`
	Actions []Action `yaml:"actions,omitempty" json:"actions,omitempty" xml:"actions>action,omitempty"`

	// Label and Note are free text carried into reports.
	Label string `yaml:"label,omitempty" json:"label,omitempty" xml:"label,omitempty"`
	Note  string `yaml:"note,omitempty" json:"note,omitempty" xml:"note,omitempty"`

	whenProgram *vm.Program
}

// From returns the transition's source state.
func (t *Transition) From() string {
	if len(t.States) > 0 {
		return t.States[0]
	}
	return ""
}

// To returns the transition's destination state.
func (t *Transition) To() string {
	if len(t.States) > 1 {
		return t.States[1]
	}
	return ""
}

// Guard gates a transition. It holds iff the named action succeeds and,
// when Expect is set, the result string equals it.
type Guard struct {
	Actor     string   `yaml:"actor" json:"actor" xml:"actor"`
	Method    string   `yaml:"method" json:"method" xml:"method"`
	Arguments []string `yaml:"arguments,omitempty" json:"arguments,omitempty" xml:"arguments>argument,omitempty"`
	Expect    *string  `yaml:"expect,omitempty" json:"expect,omitempty" xml:"expect,omitempty"`
}

// Action is one side effect of a transition.
type Action struct {
	Actor     string   `yaml:"actor" json:"actor" xml:"actor"`
	Method    string   `yaml:"method" json:"method" xml:"method"`
	Arguments []string `yaml:"arguments,omitempty" json:"arguments,omitempty" xml:"arguments>argument,omitempty"`
}

// Name returns the action's dotted form for log records.
func (a Action) Name() string {
	return a.Actor + "." + a.Method
}

// AllStates returns the workflow's state set: the initial state plus
// every state any transition mentions.
func (w *Workflow) AllStates() map[string]bool {
	states := map[string]bool{}
	if w.InitialState != "" {
		states[w.InitialState] = true
	}
	for _, t := range w.Transitions {
		for _, s := range t.States {
			states[s] = true
		}
	}
	return states
}
