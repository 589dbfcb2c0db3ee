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

// Package logstore provides the durable, queryable execution log: an
// embedded SQLite database with a single batching writer goroutine and a
// separate read connection for concurrent queries.
package logstore

import "time"

// Level is the severity of a log record.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// rank orders levels for minimum-level filtering.
func (l Level) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// AtLeast reports whether l is at or above min.
func (l Level) AtLeast(min Level) bool {
	return l.rank() >= min.rank()
}

// ParseLevel normalises a level string; unknown values map to INFO.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return Level(s)
	}
	switch s {
	case "WARNING":
		return LevelWarn
	case "SEVERE":
		return LevelError
	}
	return LevelInfo
}

// Session status values.
const (
	SessionRunning   = "RUNNING"
	SessionCompleted = "COMPLETED"
	SessionFailed    = "FAILED"
)

// Node result status values.
const (
	NodeSuccess = "SUCCESS"
	NodeFailed  = "FAILED"
)

// Record is one append-only row in the execution log.
type Record struct {
	ID        int64     `json:"id,omitempty"`
	SessionID int64     `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	// NodeID identifies the producer (e.g. "cli", "nodeGroup", "node-web-01").
	NodeID string `json:"node_id"`

	// Label carries free text for the originating transition, typically a
	// short YAML excerpt.
	Label string `json:"label,omitempty"`

	// ActionName is "<actor>.<method>" for action records.
	ActionName string `json:"action_name,omitempty"`

	Level   Level  `json:"level"`
	Message string `json:"message"`

	// ExitCode is set when the record captures a command outcome.
	ExitCode *int `json:"exit_code,omitempty"`

	// DurationMS is set when the record captures a timed call.
	DurationMS *int64 `json:"duration_ms,omitempty"`
}

// SessionMeta is the execution context captured when a session opens.
type SessionMeta struct {
	// RunID is a UUID correlating this session across merged databases,
	// where the integer id gets renumbered.
	RunID string `json:"run_id,omitempty"`

	WorkflowName  string `json:"workflow_name"`
	OverlayName   string `json:"overlay_name,omitempty"`
	InventoryName string `json:"inventory_name,omitempty"`
	NodeCount     int    `json:"node_count"`
	Cwd           string `json:"cwd,omitempty"`
	GitCommit     string `json:"git_commit,omitempty"`
	GitBranch     string `json:"git_branch,omitempty"`
	CommandLine   string `json:"command_line,omitempty"`
	ToolVersion   string `json:"tool_version,omitempty"`
	ToolCommit    string `json:"tool_commit,omitempty"`
}

// Session is one top-level CLI execution, the root of the log hierarchy.
type Session struct {
	ID        int64      `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
	SessionMeta
}

// NodeResult is the terminal verdict of one node within a session.
type NodeResult struct {
	SessionID int64  `json:"session_id"`
	NodeID    string `json:"node_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// SessionSummary aggregates a session's node results and log counts.
type SessionSummary struct {
	Session        Session       `json:"session"`
	NodesTotal     int           `json:"nodes_total"`
	NodesSucceeded int           `json:"nodes_succeeded"`
	NodesFailed    int           `json:"nodes_failed"`
	LogCounts      map[Level]int `json:"log_counts"`
	FailedNodes    []NodeResult  `json:"failed_nodes,omitempty"`
}

// SessionFilter narrows ListSessionsFiltered.
type SessionFilter struct {
	Workflow     string
	Overlay      string
	Inventory    string
	StartedAfter *time.Time
	EndedAfter   *time.Time
	Limit        int
}

// Producer is the write-side surface shared by the embedded store and the
// log service client. The reporter and the logs CLI use the embedded
// store's query surface directly.
type Producer interface {
	// OpenSession inserts a session row and returns its monotonic id.
	OpenSession(meta SessionMeta) (int64, error)

	// EndSession waits for queued records to drain, then stamps the
	// session's end time and final status.
	EndSession(id int64, status string) error

	// Append enqueues a record for the batching writer. It returns after
	// enqueue, not after persistence.
	Append(rec Record) error

	// RecordNodeResult inserts or overwrites the per-node verdict.
	RecordNodeResult(nr NodeResult) error

	// Close stops the writer and releases connections. Idempotent.
	Close() error
}
