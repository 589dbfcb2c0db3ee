package workflow

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/drover/pkg/action"
	pkgerrors "github.com/tombee/drover/pkg/errors"
)

// stubDispatcher answers calls from a table keyed by "actor.method" and
// records every invocation.
type stubDispatcher struct {
	mu       sync.Mutex
	handlers map[string]func(args []string) action.Result
	calls    []string
}

func newStubDispatcher() *stubDispatcher {
	return &stubDispatcher{handlers: map[string]func([]string) action.Result{}}
}

func (d *stubDispatcher) on(name string, fn func(args []string) action.Result) {
	d.handlers[name] = fn
}

func (d *stubDispatcher) Call(ctx context.Context, actor, method, argsJSON string) action.Result {
	d.mu.Lock()
	d.calls = append(d.calls, actor+"."+method)
	d.mu.Unlock()

	fn, ok := d.handlers[actor+"."+method]
	if !ok {
		return action.Failf("Unknown actor: %s", actor)
	}
	args, err := action.ParseArgs(argsJSON)
	if err != nil {
		return action.Failf("Error: %v", err)
	}
	return fn(args)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		out = append(out, ev.Message)
	}
	return out
}

func writeWorkflow(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func linearWorkflow() *Workflow {
	wf := &Workflow{
		Name:         "linear",
		InitialState: "0",
		Transitions: []Transition{
			{States: []string{"0", "1"}, Actions: []Action{{Actor: "subWorkflow", Method: "doNothing"}}},
			{States: []string{"1", "end"}, Actions: []Action{{Actor: "subWorkflow", Method: "doNothing"}}},
		},
	}
	return wf
}

func TestLoadYAMLWithStepsAlias(t *testing.T) {
	path := writeWorkflow(t, "deploy.yaml", `
name: deploy
description: roll out the release
steps:
  - states: ["0", "1"]
    label: install
  - states: ["1", "end"]
`)
	wf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "deploy", wf.Name)
	assert.Equal(t, "0", wf.InitialState, "initial_state defaults to the first from")
	require.Len(t, wf.Transitions, 2)
	assert.Equal(t, "install", wf.Transitions[0].Label)
	assert.True(t, filepath.IsAbs(wf.Path))
}

func TestLoadJSON(t *testing.T) {
	path := writeWorkflow(t, "deploy.json", `{
  "name": "deploy",
  "transitions": [
    {"states": ["0", "end"], "actions": [{"actor": "subWorkflow", "method": "doNothing"}]}
  ]
}`)
	wf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "deploy", wf.Name)
	require.Len(t, wf.Transitions, 1)
	assert.Equal(t, "subWorkflow.doNothing", wf.Transitions[0].Actions[0].Name())
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeWorkflow(t, "deploy.toml", "name = 'x'")
	_, err := Load(path)
	require.Error(t, err)
	var verr *pkgerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Suggestion)
}

func TestValidateRules(t *testing.T) {
	cases := []struct {
		name string
		wf   Workflow
		want string
	}{
		{
			name: "missing name",
			wf:   Workflow{InitialState: "0", Transitions: []Transition{{States: []string{"0", "end"}}}},
			want: "name is required",
		},
		{
			name: "no transitions",
			wf:   Workflow{Name: "x", InitialState: "0"},
			want: "no transitions",
		},
		{
			name: "bad state pair",
			wf:   Workflow{Name: "x", InitialState: "0", Transitions: []Transition{{States: []string{"0"}}}},
			want: "[from, to] pair",
		},
		{
			name: "orphan from state",
			wf: Workflow{Name: "x", InitialState: "0", Transitions: []Transition{
				{States: []string{"0", "end"}},
				{States: []string{"elsewhere", "end"}},
			}},
			want: "not part of the workflow",
		},
		{
			name: "guard without method",
			wf: Workflow{Name: "x", InitialState: "0", Transitions: []Transition{
				{States: []string{"0", "end"}, Guards: []Guard{{Actor: "env"}}},
			}},
			want: "guard requires actor and method",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.wf.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestWhenExpressionMustCompile(t *testing.T) {
	path := writeWorkflow(t, "bad.yaml", `
name: bad
transitions:
  - states: ["0", "end"]
    when: "step ==="
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid expression")
}

func TestWhenExpressionGatesTransition(t *testing.T) {
	path := writeWorkflow(t, "when.yaml", `
name: when
transitions:
  - states: ["0", "retry"]
    when: "step > 0"
  - states: ["0", "end"]
    when: "step == 0"
  - states: ["retry", "end"]
`)
	wf, err := Load(path)
	require.NoError(t, err)

	it := NewInterpreter(newStubDispatcher(), "node-a", nil)
	it.Load(wf)
	res := it.RunUntilEnd(context.Background(), 10)
	require.True(t, res.OK, res.Value)
	assert.Equal(t, 1, it.StepCount(), "the step==0 branch goes straight to end")
}

func TestRunLinearWorkflow(t *testing.T) {
	d := newStubDispatcher()
	d.on("subWorkflow.doNothing", func([]string) action.Result { return action.Ok("") })
	sink := &recordingSink{}

	it := NewInterpreter(d, "node-a", sink)
	it.Load(linearWorkflow())

	res := it.RunUntilEnd(context.Background(), 10)
	require.True(t, res.OK, res.Value)
	assert.Equal(t, 2, it.StepCount())
	assert.Equal(t, "end", it.State())

	var transitions []string
	for _, msg := range sink.messages() {
		if len(msg) > 10 && msg[:10] == "Transition" {
			transitions = append(transitions, msg)
		}
	}
	require.Len(t, transitions, 2)
	assert.Equal(t, "Transition 0->1: SUCCESS", transitions[0])
	assert.Equal(t, "Transition 1->end: SUCCESS", transitions[1])
}

func TestZeroBudgetFailsWithoutInvokingActions(t *testing.T) {
	d := newStubDispatcher()
	d.on("subWorkflow.doNothing", func([]string) action.Result { return action.Ok("") })

	it := NewInterpreter(d, "node-a", nil)
	it.Load(linearWorkflow())

	res := it.RunUntilEnd(context.Background(), 0)
	require.False(t, res.OK)
	assert.Equal(t, "max steps exceeded", res.Value)
	assert.Empty(t, d.calls, "budget is checked before any dispatch")
}

func TestInitialTerminalStateSucceedsInZeroSteps(t *testing.T) {
	wf := &Workflow{
		Name:         "noop",
		InitialState: "End",
		Transitions:  []Transition{{States: []string{"End", "End"}}},
	}
	it := NewInterpreter(newStubDispatcher(), "node-a", nil)
	it.Load(wf)

	res := it.RunUntilEnd(context.Background(), 10)
	assert.True(t, res.OK)
	assert.Equal(t, 0, it.StepCount())
}

func TestTransitionWithoutActionsStillAdvances(t *testing.T) {
	wf := &Workflow{
		Name:         "bare",
		InitialState: "0",
		Transitions:  []Transition{{States: []string{"0", "end"}}},
	}
	sink := &recordingSink{}
	it := NewInterpreter(newStubDispatcher(), "node-a", sink)
	it.Load(wf)

	res := it.RunUntilEnd(context.Background(), 10)
	require.True(t, res.OK)
	assert.Equal(t, "end", it.State())
	require.Len(t, sink.events, 1)
	assert.Equal(t, "Transition 0->end: SUCCESS", sink.events[0].Message)
}

func TestGuardedBranchSelection(t *testing.T) {
	expect := "true"
	wf := &Workflow{
		Name:         "branch",
		InitialState: "0",
		Transitions: []Transition{
			{States: []string{"0", "skip"}, Guards: []Guard{{Actor: "env", Method: "has", Arguments: []string{"A"}, Expect: &expect}}},
			{States: []string{"0", "run"}},
			{States: []string{"skip", "end"}},
			{States: []string{"run", "end"}},
		},
	}
	require.NoError(t, wf.Validate())

	for _, tc := range []struct {
		envHas string
		next   string
	}{
		{"false", "run"},
		{"true", "skip"},
	} {
		d := newStubDispatcher()
		d.on("env.has", func([]string) action.Result { return action.Ok(tc.envHas) })
		it := NewInterpreter(d, "node-a", nil)
		it.Load(wf)

		outcome := it.Step(context.Background(), 10)
		require.Equal(t, Progressed, outcome.Kind)
		assert.Equal(t, tc.next, outcome.To, "env.has=%s", tc.envHas)
	}
}

func TestDeclarationOrderBreaksTies(t *testing.T) {
	wf := &Workflow{
		Name:         "tie",
		InitialState: "0",
		Transitions: []Transition{
			{States: []string{"0", "first"}},
			{States: []string{"0", "second"}},
			{States: []string{"first", "end"}},
			{States: []string{"second", "end"}},
		},
	}
	for i := 0; i < 5; i++ {
		it := NewInterpreter(newStubDispatcher(), "node-a", nil)
		it.Load(wf)
		outcome := it.Step(context.Background(), 10)
		require.Equal(t, Progressed, outcome.Kind)
		assert.Equal(t, "first", outcome.To, "selection must be deterministic")
	}
}

func TestActionFailureAbortsStep(t *testing.T) {
	d := newStubDispatcher()
	d.on("svc.ok", func([]string) action.Result { return action.Ok("fine") })
	d.on("svc.boom", func([]string) action.Result { return action.Fail("boom") })
	d.on("svc.never", func([]string) action.Result { return action.Ok("") })
	sink := &recordingSink{}

	wf := &Workflow{
		Name:         "failing",
		InitialState: "0",
		Transitions: []Transition{{
			States: []string{"0", "end"},
			Actions: []Action{
				{Actor: "svc", Method: "ok"},
				{Actor: "svc", Method: "boom"},
				{Actor: "svc", Method: "never"},
			},
		}},
	}
	it := NewInterpreter(d, "node-a", sink)
	it.Load(wf)

	res := it.RunUntilEnd(context.Background(), 10)
	require.False(t, res.OK)
	assert.Equal(t, "boom", res.Value)
	assert.Equal(t, "0", it.State(), "a failed step must not advance state")
	assert.Equal(t, []string{"svc.ok", "svc.boom"}, d.calls, "actions after the failure are skipped")

	var failedAction *Event
	for i := range sink.events {
		if sink.events[i].ActionName == "svc.boom" {
			failedAction = &sink.events[i]
		}
	}
	require.NotNil(t, failedAction)
	assert.True(t, failedAction.Error)
	assert.Contains(t, sink.messages(), "Transition 0->end: FAILED - boom")
}

func TestNoEligibleTransitionReason(t *testing.T) {
	wf := &Workflow{
		Name:         "stuck",
		InitialState: "0",
		Transitions: []Transition{
			{States: []string{"0", "middle"}},
			{States: []string{"middle", "end"}, Guards: []Guard{{Actor: "gate", Method: "open"}}},
		},
	}
	d := newStubDispatcher()
	d.on("gate.open", func([]string) action.Result { return action.Fail("closed") })

	it := NewInterpreter(d, "node-a", nil)
	it.Load(wf)
	res := it.RunUntilEnd(context.Background(), 10)
	require.False(t, res.OK)
	assert.Equal(t, "no eligible transition from middle", res.Value)
}

func TestHooksFireAroundTransitions(t *testing.T) {
	var entered, exited []string
	it := NewInterpreter(newStubDispatcher(), "node-a", nil)
	it.OnEnterTransition = func(t *Transition) { entered = append(entered, t.To()) }
	it.OnExitTransition = func(t *Transition, ok bool) {
		if ok {
			exited = append(exited, t.To())
		}
	}
	it.Load(&Workflow{
		Name:         "hooks",
		InitialState: "0",
		Transitions:  []Transition{{States: []string{"0", "end"}}},
	})

	res := it.RunUntilEnd(context.Background(), 10)
	require.True(t, res.OK)
	assert.Equal(t, []string{"end"}, entered)
	assert.Equal(t, []string{"end"}, exited)
}

func TestActionDurationAndExitCodeRecorded(t *testing.T) {
	d := newStubDispatcher()
	d.on("shell.run", func([]string) action.Result { return action.Fail("command failed: exit status 3") })
	sink := &recordingSink{}

	wf := &Workflow{
		Name:         "shellfail",
		InitialState: "0",
		Transitions: []Transition{{
			States:  []string{"0", "end"},
			Actions: []Action{{Actor: "shell", Method: "run", Arguments: []string{"false"}}},
		}},
	}
	it := NewInterpreter(d, "node-a", sink)
	it.Load(wf)
	it.RunUntilEnd(context.Background(), 10)

	require.NotEmpty(t, sink.events)
	ev := sink.events[0]
	assert.Equal(t, "shell.run", ev.ActionName)
	require.NotNil(t, ev.DurationMS)
	require.NotNil(t, ev.ExitCode)
	assert.Equal(t, 3, *ev.ExitCode)
	assert.NotEmpty(t, ev.Label)
}

func TestSubWorkflowCall(t *testing.T) {
	dir := t.TempDir()
	child := filepath.Join(dir, "child.yaml")
	require.NoError(t, os.WriteFile(child, []byte(`
name: child
transitions:
  - states: ["0", "end"]
    actions:
      - actor: subWorkflow
        method: doNothing
`), 0o644))

	d := newStubDispatcher()
	sub := &SubWorkflowActor{Dispatcher: d, Node: "node-a", BaseDir: dir}
	d.on("subWorkflow.call", func(args []string) action.Result {
		return sub.Call(context.Background(), args)
	})
	d.on("subWorkflow.doNothing", func(args []string) action.Result {
		return sub.DoNothing(context.Background(), args)
	})

	res := d.Call(context.Background(), "subWorkflow", "call", action.Args("child.yaml"))
	require.True(t, res.OK, res.Value)
	assert.Equal(t, "end", res.Value)

	res = d.Call(context.Background(), "subWorkflow", "call", action.Args("missing.yaml"))
	require.False(t, res.OK)
	assert.Contains(t, res.Value, "Error:")
}
