package workflow

import (
	"context"
	"path/filepath"

	"github.com/tombee/drover/pkg/action"
)

// SubWorkflowActor implements the subWorkflow actor: its call action runs
// another workflow file to completion on the same dispatcher, with an
// independent step budget. Each call builds a fresh interpreter; nothing
// is shared with the parent beyond the actor system.
type SubWorkflowActor struct {
	Dispatcher action.Dispatcher

	// Node and Sink are inherited by the child interpreter.
	Node string
	Sink EventSink

	// BaseDir resolves relative workflow paths, normally the parent
	// workflow's directory.
	BaseDir string

	// MaxSteps for each invocation (default SubWorkflowMaxSteps).
	MaxSteps int
}

// Call runs the named workflow file and reports its result.
func (s *SubWorkflowActor) Call(ctx context.Context, args []string) action.Result {
	if len(args) < 1 || args[0] == "" {
		return action.Fail("Error: call requires a workflow file")
	}

	path := args[0]
	if !filepath.IsAbs(path) && s.BaseDir != "" {
		path = filepath.Join(s.BaseDir, path)
	}

	wf, err := Load(path)
	if err != nil {
		return action.Failf("Error: %v", err)
	}

	child := NewInterpreter(s.Dispatcher, s.Node, s.Sink)
	child.BaseDir = filepath.Dir(path)
	child.Load(wf)

	budget := s.MaxSteps
	if budget <= 0 {
		budget = SubWorkflowMaxSteps
	}
	return child.RunUntilEnd(ctx, budget)
}

// DoNothing succeeds without side effects. Handy as a guard or action
// placeholder while authoring workflows.
func (s *SubWorkflowActor) DoNothing(ctx context.Context, args []string) action.Result {
	return action.Ok("")
}
