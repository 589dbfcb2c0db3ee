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

// Package logs implements drover logs: query the execution log
// database.
package logs

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/drover/internal/commands/shared"
	"github.com/tombee/drover/internal/logstore"
)

type options struct {
	db      string
	session int64
	node    string
	level   string
	limit   int

	list      bool
	listNodes bool
	summary   bool

	workflowFilter  string
	overlayFilter   string
	inventoryFilter string
	after           string
	since           string
	endedSince      string
}

// NewCommand creates the logs command.
func NewCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query the execution log database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.db == "" {
				return shared.NewMissingArgsError("logs requires --db")
			}
			return execute(cmd, opts)
		},
	}

	shared.AddDBFlag(cmd.Flags(), &opts.db)
	cmd.Flags().Int64VarP(&opts.session, "session", "s", 0, "Session id (default: latest)")
	cmd.Flags().StringVarP(&opts.node, "node", "n", "", "Only records from this node id")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (DEBUG, INFO, WARN, ERROR)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Limit the number of rows")
	cmd.Flags().BoolVar(&opts.list, "list", false, "List sessions instead of records")
	cmd.Flags().BoolVar(&opts.listNodes, "list-nodes", false, "List the node ids in the session")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "Print the session summary")
	cmd.Flags().StringVar(&opts.workflowFilter, "workflow", "", "Filter sessions by workflow name")
	cmd.Flags().StringVar(&opts.overlayFilter, "overlay", "", "Filter sessions by overlay name")
	cmd.Flags().StringVar(&opts.inventoryFilter, "inventory", "", "Filter sessions by inventory name")
	cmd.Flags().StringVar(&opts.after, "after", "", "Sessions started after this RFC 3339 time")
	cmd.Flags().StringVar(&opts.since, "since", "", "Sessions started in the last Nh, Nd, or Nw")
	cmd.Flags().StringVar(&opts.endedSince, "ended-since", "", "Sessions ended in the last Nh, Nd, or Nw")

	return cmd
}

func execute(cmd *cobra.Command, opts *options) error {
	store, err := logstore.Open(opts.db, logstore.Options{})
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.list {
		return listSessions(cmd, store, opts)
	}

	sessionID := opts.session
	if sessionID == 0 {
		sessionID, err = store.LatestSessionID()
		if err != nil {
			return err
		}
		if sessionID == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no sessions recorded")
			return nil
		}
	}

	switch {
	case opts.summary:
		return printSummary(cmd, store, sessionID)
	case opts.listNodes:
		return printNodes(cmd, store, sessionID)
	default:
		return printRecords(cmd, store, sessionID, opts)
	}
}

func listSessions(cmd *cobra.Command, store *logstore.Store, opts *options) error {
	filter := logstore.SessionFilter{
		Workflow:  opts.workflowFilter,
		Overlay:   opts.overlayFilter,
		Inventory: opts.inventoryFilter,
		Limit:     opts.limit,
	}
	if opts.after != "" {
		t, err := time.Parse(time.RFC3339, opts.after)
		if err != nil {
			return shared.NewMissingArgsError(fmt.Sprintf("invalid --after value %q", opts.after))
		}
		filter.StartedAfter = &t
	}
	if opts.since != "" {
		d, err := parseSince(opts.since)
		if err != nil {
			return err
		}
		t := time.Now().Add(-d)
		filter.StartedAfter = &t
	}
	if opts.endedSince != "" {
		d, err := parseSince(opts.endedSince)
		if err != nil {
			return err
		}
		t := time.Now().Add(-d)
		filter.EndedAfter = &t
	}

	sessions, err := store.ListSessionsFiltered(filter)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, sess := range sessions {
		ended := "running"
		if sess.EndedAt != nil {
			ended = sess.EndedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(out, "%-6d %-10s %-24s %-20s %s\n",
			sess.ID, sess.Status, sess.WorkflowName, sess.StartedAt.Format(time.RFC3339), ended)
	}
	return nil
}

func printSummary(cmd *cobra.Command, store *logstore.Store, sessionID int64) error {
	summary, err := store.Summary(sessionID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %d: %s\n", sessionID, summary.Session.Status)
	fmt.Fprintf(out, "Nodes: %d total, %d succeeded, %d failed\n",
		summary.NodesTotal, summary.NodesSucceeded, summary.NodesFailed)
	fmt.Fprintf(out, "Logs: %d debug, %d info, %d warn, %d error\n",
		summary.LogCounts[logstore.LevelDebug], summary.LogCounts[logstore.LevelInfo],
		summary.LogCounts[logstore.LevelWarn], summary.LogCounts[logstore.LevelError])
	for _, node := range summary.FailedNodes {
		fmt.Fprintf(out, "  %s: %s\n", node.NodeID, node.Reason)
	}
	return nil
}

func printNodes(cmd *cobra.Command, store *logstore.Store, sessionID int64) error {
	nodes, err := store.NodesInSession(sessionID)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		fmt.Fprintln(cmd.OutOrStdout(), node)
	}
	return nil
}

func printRecords(cmd *cobra.Command, store *logstore.Store, sessionID int64, opts *options) error {
	var (
		records []logstore.Record
		err     error
	)
	switch {
	case opts.node != "":
		records, err = store.LogsByNode(sessionID, opts.node)
	case opts.level != "":
		records, err = store.LogsByLevel(sessionID, logstore.ParseLevel(opts.level))
	default:
		records, err = store.LogsBySession(sessionID, opts.limit)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, rec := range records {
		fmt.Fprintf(out, "%s %-5s %-16s %s\n",
			rec.Timestamp.Format(time.RFC3339), rec.Level, rec.NodeID, rec.Message)
	}
	return nil
}

// parseSince converts Nh, Nd, Nw shorthand to a duration.
func parseSince(value string) (time.Duration, error) {
	if len(value) < 2 {
		return 0, shared.NewMissingArgsError(fmt.Sprintf("invalid duration %q", value))
	}
	n, err := strconv.Atoi(value[:len(value)-1])
	if err != nil || n < 0 {
		return 0, shared.NewMissingArgsError(fmt.Sprintf("invalid duration %q", value))
	}
	switch strings.ToLower(value[len(value)-1:]) {
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, shared.NewMissingArgsError(fmt.Sprintf("invalid duration suffix in %q", value))
	}
}
