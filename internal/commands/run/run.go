// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package run implements drover run: execute one workflow across the
// inventory.
package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tombee/drover/internal/actor"
	"github.com/tombee/drover/internal/commands/shared"
	"github.com/tombee/drover/internal/cowsay"
	"github.com/tombee/drover/internal/inventory"
	"github.com/tombee/drover/internal/log"
	"github.com/tombee/drover/internal/logservice"
	"github.com/tombee/drover/internal/logstore"
	"github.com/tombee/drover/internal/nodegroup"
	"github.com/tombee/drover/internal/output"
	"github.com/tombee/drover/internal/remote"
	"github.com/tombee/drover/internal/report"
	"github.com/tombee/drover/pkg/action"
	"github.com/tombee/drover/pkg/workflow"
)

type options struct {
	dir       string
	workflows string
	inventory string
	group     string

	threads   int
	overlay   string
	fileLog   bool
	logDB     bool
	noFileLog bool
	noLogDB   bool
	askPass   bool
	limit    string
	cowfile  string
	renderTo string
	maxSteps int
}

// NewCommand creates the run command.
func NewCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a workflow across the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "Workflow directory (required)")
	cmd.Flags().StringVarP(&opts.workflows, "workflow", "w", "", "Workflow file, relative to --dir (required)")
	cmd.Flags().StringVarP(&opts.inventory, "inventory", "i", "", "Inventory hosts file (default: <dir>/hosts; absent runs on localhost)")
	cmd.Flags().StringVarP(&opts.group, "group", "g", "", "Inventory group to target (default: all)")
	cmd.Flags().IntVarP(&opts.threads, "threads", "t", actor.DefaultWorkers, "Worker pool width")
	cmd.Flags().StringVar(&opts.overlay, "overlay", "", "Overlay directory passed to the interpreter")
	cmd.Flags().BoolVar(&opts.fileLog, "file-log", true, "Write console output to <dir>/drover-run.log")
	cmd.Flags().BoolVar(&opts.logDB, "log-db", true, "Record the run in the log database")
	cmd.Flags().BoolVar(&opts.noFileLog, "no-file-log", false, "Disable the run log file")
	cmd.Flags().BoolVar(&opts.noLogDB, "no-log-db", false, "Disable database logging")
	cmd.Flags().BoolVar(&opts.askPass, "ask-pass", false, "Prompt once for an SSH password")
	cmd.Flags().StringVarP(&opts.limit, "limit", "l", "", "Comma-separated host subset")
	cmd.Flags().StringVar(&opts.cowfile, "cowfile", "", "Cow body file for the run banner")
	cmd.Flags().StringVar(&opts.renderTo, "render-to", "", "Duplicate console output into this file")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", workflow.DefaultMaxSteps, "Transition budget per node")

	return cmd
}

func execute(ctx context.Context, opts *options) error {
	if opts.dir == "" || opts.workflows == "" {
		return shared.NewMissingArgsError("run requires --dir and --workflow")
	}
	if opts.noFileLog {
		opts.fileLog = false
	}
	if opts.noLogDB {
		opts.logDB = false
	}

	workflowPath := opts.workflows
	if !filepath.IsAbs(workflowPath) {
		workflowPath = filepath.Join(opts.dir, opts.workflows)
	}
	wf, err := workflow.Load(workflowPath)
	if err != nil {
		return err
	}

	inv, err := loadInventory(opts)
	if err != nil {
		return err
	}

	password := ""
	if opts.askPass {
		password, err = remote.PromptPassword("SSH password: ")
		if err != nil {
			return err
		}
	}

	store, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer store.Close()

	sessionID, err := store.OpenSession(shared.CaptureSessionMeta(
		wf.Name, opts.overlay, opts.inventory, len(inv.Hosts())))
	if err != nil {
		return err
	}

	logger := log.WithSession(log.New(log.FromEnv()), sessionID, wf.Name)
	sys := actor.New(actor.Config{Workers: opts.threads, Logger: logger})
	defer sys.Shutdown()

	mux, console, cleanup, err := buildPipeline(opts, sys, store, sessionID)
	if err != nil {
		store.EndSession(sessionID, logstore.SessionFailed)
		return err
	}
	defer cleanup()

	if opts.cowfile != "" {
		mux.Add("cli", output.KindCowsay, cowsay.SayFile("Running "+wf.Name, opts.cowfile))
	}

	group := nodegroup.New(nodegroup.Config{
		System:      sys,
		Inventory:   inv,
		Store:       store,
		SessionID:   sessionID,
		Mux:         mux,
		Limit:       opts.limit,
		Password:    password,
		OverlayDir:  opts.overlay,
		Parallelism: opts.threads,
		Echo:        console,
		Logger:      logger,
	})
	defer group.Close()

	if err := registerActors(sys, group, mux, store, sessionID, workflowPath); err != nil {
		store.EndSession(sessionID, logstore.SessionFailed)
		return err
	}

	result := drive(ctx, sys, opts, workflowPath)

	status := logstore.SessionCompleted
	if !result.OK {
		status = logstore.SessionFailed
	}
	if err := store.EndSession(sessionID, status); err != nil {
		logger.Error("session not closed", log.Error(err))
	}

	emitReport(mux, store, wf, workflowPath, sessionID)

	if !result.OK {
		return shared.NewWorkflowFailedError(result.Value, nil)
	}
	return nil
}

// drive runs the three nodeGroup phases in order and returns the first
// failure.
func drive(ctx context.Context, sys *actor.System, opts *options, workflowPath string) action.Result {
	group := opts.group
	res := sys.Call(ctx, nodegroup.ActorName, "createNodeActors", action.Args(group))
	if !res.OK {
		return res
	}
	res = sys.Call(ctx, nodegroup.ActorName, "applyWorkflowToAllNodes", action.Args(workflowPath))
	if !res.OK {
		return res
	}
	return sys.Call(ctx, nodegroup.ActorName, "runUntilEnd", action.Args(fmt.Sprintf("%d", opts.maxSteps)))
}

func loadInventory(opts *options) (*inventory.Inventory, error) {
	path := opts.inventory
	if path == "" {
		candidate := filepath.Join(opts.dir, "hosts")
		if _, err := os.Stat(candidate); err != nil {
			// No inventory: run against this machine.
			return inventory.FromHosts([]inventory.Host{{Hostname: "localhost"}}), nil
		}
		path = candidate
	}
	return inventory.Load(path)
}

// openStore prefers a running log service bound to the same database;
// otherwise the store is embedded in this process.
func openStore(ctx context.Context, opts *options) (logstore.Producer, error) {
	dbPath := filepath.Join(opts.dir, "drover.db")
	if !opts.logDB {
		return logstore.Discard(), nil
	}

	if info, err := logservice.Discover(ctx, dbPath); err == nil && info != nil {
		remote, err := logservice.Dial(fmt.Sprintf("127.0.0.1:%d", info.Port))
		if err == nil {
			return remote, nil
		}
	}
	return logstore.Open(dbPath, logstore.Options{})
}

// buildPipeline wires the console, optional file, and database sinks
// behind one multiplexer.
func buildPipeline(opts *options, sys *actor.System, store logstore.Producer, sessionID int64) (*output.Multiplexer, *output.Console, func(), error) {
	console := output.NewConsole(output.WithQuiet(shared.GetQuiet()))
	mux := output.NewMultiplexer(console)

	var closers []func()
	cleanup := func() {
		for _, fn := range closers {
			fn()
		}
	}

	addFile := func(path string) error {
		sink, err := output.NewFile(path)
		if err != nil {
			return err
		}
		mux.Attach(sink)
		closers = append(closers, func() { sink.Close() })
		return nil
	}

	if opts.fileLog {
		if err := addFile(filepath.Join(opts.dir, "drover-run.log")); err != nil {
			return nil, nil, cleanup, err
		}
	}
	if opts.renderTo != "" {
		if err := addFile(opts.renderTo); err != nil {
			return nil, nil, cleanup, err
		}
	}
	if opts.logDB {
		mux.Attach(output.NewDatabase(store, sessionID, sys.SubmitDB))
	}
	return mux, console, cleanup, nil
}

// registerActors installs the runtime's distinguished actors.
func registerActors(sys *actor.System, group *nodegroup.Group, mux *output.Multiplexer, store logstore.Producer, sessionID int64, workflowPath string) error {
	sub := &workflow.SubWorkflowActor{
		Dispatcher: sys,
		Node:       "cli",
		Sink:       nil,
		BaseDir:    filepath.Dir(workflowPath),
	}
	subActions := actor.Actions{
		"call":      sub.Call,
		"doNothing": sub.DoNothing,
	}

	for name, actions := range map[string]actor.Actions{
		nodegroup.ActorName:    group.Actions(),
		output.MultiplexerName: mux.ActorActions(),
		"subWorkflow":          subActions,
		actor.LoaderName:       sys.LoaderActions(),
	} {
		if err := sys.Register(name, actions); err != nil {
			return err
		}
	}
	return nil
}

func emitReport(mux *output.Multiplexer, store logstore.Producer, wf *workflow.Workflow, workflowPath string, sessionID int64) {
	querier, ok := store.(report.Querier)
	if !ok {
		return
	}
	reporter := report.New(mux,
		&report.WorkflowName{Name: wf.Name},
		&report.WorkflowFile{Path: workflowPath},
		&report.WorkflowDescription{Description: wf.Description},
		&report.CheckResults{Store: querier},
		&report.TransitionHistory{Store: querier, Target: nodegroup.ActorName, IncludeChildren: true},
		&report.GpuSummary{Store: querier},
	)
	reporter.Emit(sessionID)
}
