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

package logstore

import (
	"database/sql"
	"fmt"

	pkgerrors "github.com/tombee/drover/pkg/errors"
)

// MergeOptions configures Merge.
type MergeOptions struct {
	// DryRun reports what would be merged without writing.
	DryRun bool

	// SkipDuplicates skips source sessions whose workflow name and start
	// time already exist in the target.
	SkipDuplicates bool
}

// MergeStats reports the outcome of a merge.
type MergeStats struct {
	SessionsMerged  int
	SessionsSkipped int
	LogsCopied      int
	ResultsCopied   int
}

// Merge copies every session (with its logs and node results) from the
// source databases into the target, renumbering session ids so the
// target's monotonic id invariant holds. The duplicate key is
// "workflow_name|started_at".
func Merge(targetPath string, sources []string, opts MergeOptions) (*MergeStats, error) {
	target, err := openConn(targetPath, true)
	if err != nil {
		return nil, &pkgerrors.StoreError{Op: "merge open target", Cause: err}
	}
	defer target.Close()
	if err := migrate(target); err != nil {
		return nil, &pkgerrors.StoreError{Op: "merge migrate target", Cause: err}
	}

	seen, err := sessionKeys(target)
	if err != nil {
		return nil, err
	}

	stats := &MergeStats{}
	for _, src := range sources {
		if src == targetPath {
			continue
		}
		if err := mergeOne(target, src, seen, opts, stats); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// sessionKeys returns the duplicate-detection keys already in the target.
func sessionKeys(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(`SELECT workflow_name, started_at FROM sessions`)
	if err != nil {
		return nil, &pkgerrors.StoreError{Op: "merge scan target", Cause: err}
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var name, started string
		if err := rows.Scan(&name, &started); err != nil {
			return nil, &pkgerrors.StoreError{Op: "merge scan target", Cause: err}
		}
		keys[name+"|"+started] = true
	}
	return keys, rows.Err()
}

func mergeOne(target *sql.DB, sourcePath string, seen map[string]bool, opts MergeOptions, stats *MergeStats) error {
	src, err := openConn(sourcePath, false)
	if err != nil {
		return &pkgerrors.StoreError{Op: fmt.Sprintf("merge open %s", sourcePath), Cause: err}
	}
	defer src.Close()

	rows, err := src.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY id`)
	if err != nil {
		return &pkgerrors.StoreError{Op: "merge list source sessions", Cause: err}
	}
	defer rows.Close()

	type pending struct {
		sess      Session
		startedAt string
	}
	var sessions []pending
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return &pkgerrors.StoreError{Op: "merge scan session", Cause: err}
		}
		// Preserve the original text form of started_at so the duplicate
		// key survives round-trips between databases byte for byte.
		var started string
		if err := src.QueryRow(`SELECT started_at FROM sessions WHERE id = ?`, sess.ID).Scan(&started); err != nil {
			return &pkgerrors.StoreError{Op: "merge read started_at", Cause: err}
		}
		sessions = append(sessions, pending{sess: *sess, startedAt: started})
	}
	if err := rows.Err(); err != nil {
		return &pkgerrors.StoreError{Op: "merge list source sessions", Cause: err}
	}

	for _, p := range sessions {
		key := p.sess.WorkflowName + "|" + p.startedAt
		if opts.SkipDuplicates && seen[key] {
			stats.SessionsSkipped++
			continue
		}
		seen[key] = true
		stats.SessionsMerged++
		if opts.DryRun {
			continue
		}
		if err := copySession(target, src, p.sess, p.startedAt, stats); err != nil {
			return err
		}
	}
	return nil
}

// copySession inserts one source session into the target under a fresh id
// and remaps its logs and node results.
func copySession(target, src *sql.DB, sess Session, startedAt string, stats *MergeStats) error {
	tx, err := target.Begin()
	if err != nil {
		return &pkgerrors.StoreError{Op: "merge begin", Cause: err}
	}
	defer tx.Rollback()

	var endedAt any
	if err := src.QueryRow(`SELECT ended_at FROM sessions WHERE id = ?`, sess.ID).Scan(&endedAt); err != nil {
		return &pkgerrors.StoreError{Op: "merge read ended_at", Cause: err}
	}

	res, err := tx.Exec(`
		INSERT INTO sessions (run_id, started_at, ended_at, workflow_name, overlay_name, inventory_name,
			node_count, status, cwd, git_commit, git_branch, command_line, tool_version, tool_commit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(sess.RunID),
		startedAt, endedAt, sess.WorkflowName, nullString(sess.OverlayName), nullString(sess.InventoryName),
		sess.NodeCount, sess.Status, nullString(sess.Cwd), nullString(sess.GitCommit),
		nullString(sess.GitBranch), nullString(sess.CommandLine), nullString(sess.ToolVersion),
		nullString(sess.ToolCommit),
	)
	if err != nil {
		return &pkgerrors.StoreError{Op: "merge insert session", Cause: err}
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return &pkgerrors.StoreError{Op: "merge session id", Cause: err}
	}

	logs, err := src.Query(
		`SELECT timestamp, node_id, label, action_name, level, message, exit_code, duration_ms
		 FROM logs WHERE session_id = ? ORDER BY id`, sess.ID)
	if err != nil {
		return &pkgerrors.StoreError{Op: "merge read logs", Cause: err}
	}
	defer logs.Close()
	for logs.Next() {
		var ts, nodeID, level, message string
		var label, actionName sql.NullString
		var exitCode, durationMS sql.NullInt64
		if err := logs.Scan(&ts, &nodeID, &label, &actionName, &level, &message, &exitCode, &durationMS); err != nil {
			return &pkgerrors.StoreError{Op: "merge scan log", Cause: err}
		}
		_, err := tx.Exec(`
			INSERT INTO logs (session_id, timestamp, node_id, label, action_name, level, message, exit_code, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			newID, ts, nodeID, label, actionName, level, message, exitCode, durationMS)
		if err != nil {
			return &pkgerrors.StoreError{Op: "merge copy log", Cause: err}
		}
		stats.LogsCopied++
	}
	if err := logs.Err(); err != nil {
		return &pkgerrors.StoreError{Op: "merge read logs", Cause: err}
	}

	results, err := src.Query(
		`SELECT node_id, status, reason FROM node_results WHERE session_id = ?`, sess.ID)
	if err != nil {
		return &pkgerrors.StoreError{Op: "merge read node results", Cause: err}
	}
	defer results.Close()
	for results.Next() {
		var nodeID, status string
		var reason sql.NullString
		if err := results.Scan(&nodeID, &status, &reason); err != nil {
			return &pkgerrors.StoreError{Op: "merge scan node result", Cause: err}
		}
		_, err := tx.Exec(`
			INSERT INTO node_results (session_id, node_id, status, reason)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (session_id, node_id) DO UPDATE SET
				status = excluded.status, reason = excluded.reason`,
			newID, nodeID, status, reason)
		if err != nil {
			return &pkgerrors.StoreError{Op: "merge copy node result", Cause: err}
		}
		stats.ResultsCopied++
	}
	if err := results.Err(); err != nil {
		return &pkgerrors.StoreError{Op: "merge read node results", Cause: err}
	}

	return tx.Commit()
}
