package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/drover/pkg/action"
)

// Step budgets. A parent run defaults to DefaultMaxSteps; sub-workflow
// invocations get the smaller SubWorkflowMaxSteps unless told otherwise.
const (
	DefaultMaxSteps     = 10000
	SubWorkflowMaxSteps = 1000
)

// terminalState ends a run, compared case-insensitively.
const terminalState = "end"

// SelfActor is the actor alias a workflow uses to address whichever node
// the interpreter is currently driving. One document fans out across the
// whole inventory because each interpreter resolves it to its own node.
const SelfActor = "node"

// OutcomeKind classifies one interpreter step.
type OutcomeKind int

const (
	// Progressed: a transition was selected and completed.
	Progressed OutcomeKind = iota
	// Terminated: the current state is terminal.
	Terminated
	// NoEligible: no transition from the current state has all guards
	// holding.
	NoEligible
	// Failed: an action failed or the step budget ran out.
	Failed
)

// StepOutcome reports what one Step did.
type StepOutcome struct {
	Kind   OutcomeKind
	From   string
	To     string
	State  string
	Reason string
}

// Interpreter drives one workflow instance for one node. It is not safe
// for concurrent use; every node gets its own.
type Interpreter struct {
	dispatcher action.Dispatcher
	wf         *Workflow

	state     string
	stepCount int

	// Node names the target this interpreter runs for; stamped on every
	// emitted event.
	Node string

	// BaseDir resolves relative sub-workflow paths. Defaults to the
	// directory of the loaded workflow.
	BaseDir string

	// OverlayDir, when set, is passed through to dynamically created
	// actors.
	OverlayDir string

	// OnEnterTransition fires after a transition is selected, before its
	// actions run. OnExitTransition fires after the actions, with the
	// step's success.
	OnEnterTransition func(*Transition)
	OnExitTransition  func(*Transition, bool)

	sink EventSink
}

// NewInterpreter creates an interpreter bound to a dispatcher.
func NewInterpreter(dispatcher action.Dispatcher, node string, sink EventSink) *Interpreter {
	if sink == nil {
		sink = discardSink{}
	}
	return &Interpreter{dispatcher: dispatcher, Node: node, sink: sink}
}

// Load assigns the workflow and resets the interpreter to its initial
// state with a zero step count.
func (it *Interpreter) Load(wf *Workflow) {
	it.wf = wf
	it.state = wf.InitialState
	it.stepCount = 0
	if it.BaseDir == "" && wf.Path != "" {
		it.BaseDir = filepath.Dir(wf.Path)
	}
}

// State returns the current state.
func (it *Interpreter) State() string { return it.state }

// StepCount returns the number of completed transitions.
func (it *Interpreter) StepCount() int { return it.stepCount }

// Workflow returns the loaded workflow, nil before Load.
func (it *Interpreter) Workflow() *Workflow { return it.wf }

// Step executes at most one transition.
func (it *Interpreter) Step(ctx context.Context, maxSteps int) StepOutcome {
	if strings.EqualFold(it.state, terminalState) {
		return StepOutcome{Kind: Terminated, State: it.state}
	}
	if it.stepCount >= maxSteps {
		return StepOutcome{Kind: Failed, State: it.state, Reason: "max steps exceeded"}
	}

	t := it.selectTransition(ctx)
	if t == nil {
		return StepOutcome{Kind: NoEligible, State: it.state}
	}

	if it.OnEnterTransition != nil {
		it.OnEnterTransition(t)
	}

	label := transitionLabel(t)
	for _, act := range t.Actions {
		start := time.Now()
		res := it.dispatcher.Call(ctx, it.resolveActor(act.Actor), act.Method, action.Args(act.Arguments...))
		dur := time.Since(start).Milliseconds()

		it.sink.Emit(Event{
			Node:       it.Node,
			Label:      label,
			ActionName: act.Name(),
			Message:    res.Value,
			Error:      !res.OK,
			ExitCode:   exitCodeOf(res.Value),
			DurationMS: &dur,
		})

		if !res.OK {
			reason := res.Value
			it.emitTransition(t, false, reason)
			if it.OnExitTransition != nil {
				it.OnExitTransition(t, false)
			}
			// The state does not advance on a failed step.
			return StepOutcome{Kind: Failed, From: t.From(), To: t.To(), State: it.state, Reason: reason}
		}
	}

	from := it.state
	it.state = t.To()
	it.stepCount++
	it.emitTransition(t, true, "")
	if it.OnExitTransition != nil {
		it.OnExitTransition(t, true)
	}
	return StepOutcome{Kind: Progressed, From: from, To: it.state, State: it.state}
}

// RunUntilEnd steps until the terminal state, a failure, or a dead end.
// Success means a terminal state was reached within maxSteps transitions.
// A zero budget fails immediately on any non-terminal workflow; defaults
// belong to the caller.
func (it *Interpreter) RunUntilEnd(ctx context.Context, maxSteps int) action.Result {
	for {
		if err := ctx.Err(); err != nil {
			return action.Failf("Error: %v", err)
		}
		outcome := it.Step(ctx, maxSteps)
		switch outcome.Kind {
		case Terminated:
			return action.Ok(outcome.State)
		case Progressed:
			continue
		case NoEligible:
			reason := fmt.Sprintf("no eligible transition from %s", outcome.State)
			it.sink.Emit(Event{Node: it.Node, Message: reason, Error: true})
			return action.Fail(reason)
		case Failed:
			return action.Fail(outcome.Reason)
		}
	}
}

// selectTransition returns the first transition in declaration order
// whose from matches the current state, whose when expression holds, and
// whose guards all hold. Declaration order makes selection deterministic.
func (it *Interpreter) selectTransition(ctx context.Context) *Transition {
	env := whenEnv{State: it.state, Step: it.stepCount, Node: it.Node}
	for i := range it.wf.Transitions {
		t := &it.wf.Transitions[i]
		if t.From() != it.state {
			continue
		}
		if ok, err := evalWhen(t, env); err != nil || !ok {
			if err != nil {
				slog.Warn("when expression failed",
					"state", it.state, "to", t.To(), "error", err)
			}
			continue
		}
		if it.guardsHold(ctx, t) {
			return t
		}
	}
	return nil
}

// resolveActor maps the self alias to this interpreter's node actor.
func (it *Interpreter) resolveActor(name string) string {
	if name == SelfActor && it.Node != "" {
		return it.Node
	}
	return name
}

func (it *Interpreter) guardsHold(ctx context.Context, t *Transition) bool {
	for _, g := range t.Guards {
		res := it.dispatcher.Call(ctx, it.resolveActor(g.Actor), g.Method, action.Args(g.Arguments...))
		if !res.OK {
			return false
		}
		if g.Expect != nil && res.Value != *g.Expect {
			return false
		}
	}
	return true
}

func (it *Interpreter) emitTransition(t *Transition, ok bool, reason string) {
	msg := fmt.Sprintf("Transition %s->%s: SUCCESS", t.From(), t.To())
	if !ok {
		msg = fmt.Sprintf("Transition %s->%s: FAILED - %s", t.From(), t.To(), reason)
	}
	if t.Note != "" {
		msg += " [" + t.Note + "]"
	}
	it.sink.Emit(Event{Node: it.Node, Label: transitionLabel(t), Message: msg, Error: !ok})
}

// transitionLabel renders the first few lines of the transition as YAML
// so log rows can show where a record came from.
func transitionLabel(t *Transition) string {
	if t.Label != "" {
		return t.Label
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > 4 {
		lines = lines[:4]
	}
	return strings.Join(lines, "\n")
}

var exitStatusRe = regexp.MustCompile(`exit (?:status|code)[ =](\d+)`)

// exitCodeOf extracts an exit code when the result text carries one in
// the conventional "exit status N" form.
func exitCodeOf(message string) *int {
	m := exitStatusRe.FindStringSubmatch(message)
	if m == nil {
		return nil
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &code
}
