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

// Package nodegroup orchestrates parallel workflow execution across the
// inventory: one interpreter and one shell per node, capped parallelism,
// per-node results aggregated into a single outcome.
package nodegroup

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/tombee/drover/internal/actor"
	"github.com/tombee/drover/internal/inventory"
	"github.com/tombee/drover/internal/log"
	"github.com/tombee/drover/internal/logstore"
	"github.com/tombee/drover/internal/output"
	"github.com/tombee/drover/internal/remote"
	"github.com/tombee/drover/pkg/action"
	"github.com/tombee/drover/pkg/workflow"
)

// ActorName is the well-known name of the fan-out orchestrator.
const ActorName = "nodeGroup"

// ShellFactory opens a shell for one host. Swappable for tests.
type ShellFactory func(host inventory.Host) (remote.Shell, error)

// Config wires a Group into the runtime.
type Config struct {
	System    *actor.System
	Inventory *inventory.Inventory
	Store     logstore.Producer
	SessionID int64
	Mux       *output.Multiplexer

	// Limit is the comma-separated host intersection set; empty keeps
	// the whole group.
	Limit string

	// Password applies to hosts with none of their own (--ask-pass).
	Password string

	// OverlayDir is handed to each node's interpreter.
	OverlayDir string

	// Parallelism caps concurrent node runs (default: the actor pool
	// width). Node drivers run on their own goroutines so interpreter
	// dispatches always have pool workers available.
	Parallelism int

	// Echo mirrors transition lines to the console.
	Echo output.Accumulator

	Shells ShellFactory
	Logger *slog.Logger
}

type node struct {
	host   inventory.Host
	shell  remote.Shell
	interp *workflow.Interpreter
}

// Group is the nodeGroup actor's state.
type Group struct {
	cfg  Config
	sink *storeSink

	mu           sync.Mutex
	nodes        []*node
	workflowPath string
	wf           *workflow.Workflow
}

func New(cfg Config) *Group {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = actor.DefaultWorkers
	}
	if cfg.Shells == nil {
		password := cfg.Password
		cfg.Shells = func(host inventory.Host) (remote.Shell, error) {
			return defaultShellFactory(host, password)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.DefaultConfig())
	}
	return &Group{
		cfg:  cfg,
		sink: &storeSink{store: cfg.Store, sessionID: cfg.SessionID, echo: cfg.Echo},
	}
}

// Actions exposes the group as the nodeGroup actor.
func (g *Group) Actions() actor.Actions {
	return actor.Actions{
		"createNodeActors":        g.createNodeActors,
		"applyWorkflowToAllNodes": g.applyWorkflowToAllNodes,
		"runUntilEnd":             g.runUntilEnd,
		"getSessionId": func(ctx context.Context, args []string) action.Result {
			return action.Okf("%d", g.cfg.SessionID)
		},
		"getWorkflowPath": func(ctx context.Context, args []string) action.Result {
			g.mu.Lock()
			defer g.mu.Unlock()
			return action.Ok(g.workflowPath)
		},
	}
}

// createNodeActors resolves the target host set, opens a shell per host,
// and registers each as node-<hostname>. An empty host-limit
// intersection creates nothing and fails.
func (g *Group) createNodeActors(ctx context.Context, args []string) action.Result {
	groupName := inventory.DefaultGroup
	if len(args) > 0 && args[0] != "" {
		groupName = args[0]
	}

	hosts := g.cfg.Inventory.Group(groupName)
	if hosts == nil {
		return action.Failf("unknown inventory group: %s", groupName)
	}
	hosts, err := intersect(hosts, g.cfg.Limit)
	if err != nil {
		return action.Failf("%v", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, host := range hosts {
		shell, err := g.cfg.Shells(host)
		if err != nil {
			return action.Failf("connect %s: %v", host.Hostname, err)
		}
		name := ActorPrefix + host.Hostname
		if err := g.cfg.System.Register(name, nodeActions(host, shell, g.cfg.Mux)); err != nil {
			shell.Close()
			return action.Failf("%v", err)
		}
		g.nodes = append(g.nodes, &node{host: host, shell: shell})
		g.cfg.Logger.Debug("node actor created", "actor", name)
	}
	return action.Okf("%d", len(g.nodes))
}

// applyWorkflowToAllNodes loads the workflow once and binds a fresh
// interpreter to every node.
func (g *Group) applyWorkflowToAllNodes(ctx context.Context, args []string) action.Result {
	if len(args) < 1 || args[0] == "" {
		return action.Fail("Error: applyWorkflowToAllNodes requires a workflow path")
	}

	wf, err := workflow.Load(args[0])
	if err != nil {
		return action.Failf("Error: %v", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.nodes) == 0 {
		return action.Fail("no node actors: call createNodeActors first")
	}
	g.wf = wf
	g.workflowPath = wf.Path
	for _, n := range g.nodes {
		interp := workflow.NewInterpreter(g.cfg.System, ActorPrefix+n.host.Hostname, g.sink)
		interp.OverlayDir = g.cfg.OverlayDir
		interp.Load(wf)
		n.interp = interp
	}
	return action.Ok(wf.Name)
}

// runUntilEnd drives every node concurrently. Per-node failure never
// stops the others; every node writes its own result row.
func (g *Group) runUntilEnd(ctx context.Context, args []string) action.Result {
	maxSteps := workflow.DefaultMaxSteps
	if len(args) > 0 && args[0] != "" {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return action.Failf("Error: invalid max steps %q", args[0])
		}
		maxSteps = v
	}

	g.mu.Lock()
	nodes := make([]*node, len(g.nodes))
	copy(nodes, g.nodes)
	g.mu.Unlock()
	if len(nodes) == 0 || nodes[0].interp == nil {
		return action.Fail("no workflow applied: call applyWorkflowToAllNodes first")
	}

	type outcome struct {
		host   string
		result action.Result
	}
	outcomes := make([]outcome, len(nodes))

	sem := make(chan struct{}, g.cfg.Parallelism)
	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		go func(i int, n *node) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = outcome{host: n.host.Hostname, result: n.interp.RunUntilEnd(ctx, maxSteps)}
		}(i, n)
	}
	wg.Wait()

	var failed []string
	for _, o := range outcomes {
		res := logstore.NodeResult{
			SessionID: g.cfg.SessionID,
			NodeID:    ActorPrefix + o.host,
			Status:    logstore.NodeSuccess,
		}
		if !o.result.OK {
			res.Status = logstore.NodeFailed
			res.Reason = o.result.Value
			failed = append(failed, o.host)
		}
		if err := g.cfg.Store.RecordNodeResult(res); err != nil {
			g.cfg.Logger.Error("node result not recorded", "node_id", res.NodeID, log.Error(err))
		}
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		return action.Failf("%d of %d nodes failed: %v", len(failed), len(nodes), failed)
	}
	return action.Okf("%d nodes completed", len(nodes))
}

// Close releases every node shell.
func (g *Group) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range g.nodes {
		if err := n.shell.Close(); err != nil {
			g.cfg.Logger.Debug("shell close", "actor", ActorPrefix+n.host.Hostname, log.Error(err))
		}
	}
	g.nodes = nil
}

// intersect applies the comma-separated host limit.
func intersect(hosts []inventory.Host, limit string) ([]inventory.Host, error) {
	if limit == "" {
		return hosts, nil
	}
	return inventory.FromHosts(hosts).Limit(limit)
}
