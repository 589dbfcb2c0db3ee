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
	"time"

	pkgerrors "github.com/tombee/drover/pkg/errors"
)

const sessionColumns = `id, run_id, started_at, ended_at, workflow_name, overlay_name, inventory_name,
	node_count, status, cwd, git_commit, git_branch, command_line, tool_version, tool_commit`

const logColumns = `id, session_id, timestamp, node_id, label, action_name, level, message, exit_code, duration_ms`

// LatestSessionID returns the highest session id, or 0 when the store is
// empty.
func (s *Store) LatestSessionID() (int64, error) {
	var id sql.NullInt64
	err := s.readDB.QueryRow(`SELECT MAX(id) FROM sessions`).Scan(&id)
	if err != nil {
		return 0, &pkgerrors.StoreError{Op: "latest session", Cause: err}
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}

// CountSessions returns the number of session rows.
func (s *Store) CountSessions() (int64, error) {
	var n int64
	if err := s.readDB.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, &pkgerrors.StoreError{Op: "count sessions", Cause: err}
	}
	return n, nil
}

// GetSession returns one session row.
func (s *Store) GetSession(id int64) (*Session, error) {
	row := s.readDB.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, &pkgerrors.NotFoundError{Resource: "session", ID: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, &pkgerrors.StoreError{Op: "get session", Cause: err}
	}
	return sess, nil
}

// ListSessions returns at most limit sessions ordered by started_at
// descending.
func (s *Store) ListSessions(limit int) ([]Session, error) {
	return s.ListSessionsFiltered(SessionFilter{Limit: limit})
}

// ListSessionsFiltered returns sessions matching the filter, ordered by
// started_at descending.
func (s *Store) ListSessionsFiltered(f SessionFilter) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	args := []any{}

	if f.Workflow != "" {
		query += " AND workflow_name = ?"
		args = append(args, f.Workflow)
	}
	if f.Overlay != "" {
		query += " AND overlay_name = ?"
		args = append(args, f.Overlay)
	}
	if f.Inventory != "" {
		query += " AND inventory_name = ?"
		args = append(args, f.Inventory)
	}
	if f.StartedAfter != nil {
		query += " AND started_at >= ?"
		args = append(args, f.StartedAfter.UTC().Format(time.RFC3339Nano))
	}
	if f.EndedAfter != nil {
		query += " AND ended_at IS NOT NULL AND ended_at >= ?"
		args = append(args, f.EndedAfter.UTC().Format(time.RFC3339Nano))
	}

	query += " ORDER BY started_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.readDB.Query(query, args...)
	if err != nil {
		return nil, &pkgerrors.StoreError{Op: "list sessions", Cause: err}
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, &pkgerrors.StoreError{Op: "scan session", Cause: err}
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// Summary aggregates node results and log counts for one session.
func (s *Store) Summary(sessionID int64) (*SessionSummary, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	summary := &SessionSummary{
		Session:   *sess,
		LogCounts: make(map[Level]int),
	}

	rows, err := s.readDB.Query(
		`SELECT node_id, status, reason FROM node_results WHERE session_id = ? ORDER BY node_id`,
		sessionID,
	)
	if err != nil {
		return nil, &pkgerrors.StoreError{Op: "summary node results", Cause: err}
	}
	defer rows.Close()
	for rows.Next() {
		nr := NodeResult{SessionID: sessionID}
		var reason sql.NullString
		if err := rows.Scan(&nr.NodeID, &nr.Status, &reason); err != nil {
			return nil, &pkgerrors.StoreError{Op: "scan node result", Cause: err}
		}
		nr.Reason = reason.String
		summary.NodesTotal++
		if nr.Status == NodeSuccess {
			summary.NodesSucceeded++
		} else {
			summary.NodesFailed++
			summary.FailedNodes = append(summary.FailedNodes, nr)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &pkgerrors.StoreError{Op: "summary node results", Cause: err}
	}

	lrows, err := s.readDB.Query(
		`SELECT level, COUNT(*) FROM logs WHERE session_id = ? GROUP BY level`,
		sessionID,
	)
	if err != nil {
		return nil, &pkgerrors.StoreError{Op: "summary log counts", Cause: err}
	}
	defer lrows.Close()
	for lrows.Next() {
		var level string
		var count int
		if err := lrows.Scan(&level, &count); err != nil {
			return nil, &pkgerrors.StoreError{Op: "scan log count", Cause: err}
		}
		summary.LogCounts[ParseLevel(level)] = count
	}
	return summary, lrows.Err()
}

// LogsByNode returns a session's records for one node in insertion order.
func (s *Store) LogsByNode(sessionID int64, nodeID string) ([]Record, error) {
	return s.queryLogs(
		`SELECT `+logColumns+` FROM logs WHERE session_id = ? AND node_id = ? ORDER BY id`,
		sessionID, nodeID,
	)
}

// LogsByLevel returns a session's records at or above the minimum level,
// in insertion order.
func (s *Store) LogsByLevel(sessionID int64, min Level) ([]Record, error) {
	recs, err := s.queryLogs(
		`SELECT `+logColumns+` FROM logs WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, rec := range recs {
		if rec.Level.AtLeast(min) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// LogsBySession returns every record of a session in insertion order, at
// most limit rows when limit > 0.
func (s *Store) LogsBySession(sessionID int64, limit int) ([]Record, error) {
	query := `SELECT ` + logColumns + ` FROM logs WHERE session_id = ? ORDER BY id`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryLogs(query, args...)
}

// NodesInSession returns the distinct node ids that produced records in a
// session, ordered by name.
func (s *Store) NodesInSession(sessionID int64) ([]string, error) {
	rows, err := s.readDB.Query(
		`SELECT DISTINCT node_id FROM logs WHERE session_id = ? ORDER BY node_id`,
		sessionID,
	)
	if err != nil {
		return nil, &pkgerrors.StoreError{Op: "nodes in session", Cause: err}
	}
	defer rows.Close()

	var nodes []string
	for rows.Next() {
		var node string
		if err := rows.Scan(&node); err != nil {
			return nil, &pkgerrors.StoreError{Op: "scan node", Cause: err}
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func (s *Store) queryLogs(query string, args ...any) ([]Record, error) {
	rows, err := s.readDB.Query(query, args...)
	if err != nil {
		return nil, &pkgerrors.StoreError{Op: "query logs", Cause: err}
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &pkgerrors.StoreError{Op: "scan log", Cause: err}
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var startedAt string
	var runID, endedAt, overlay, inventory, cwd, gitCommit, gitBranch, cmdLine, toolVersion, toolCommit sql.NullString

	err := row.Scan(
		&sess.ID, &runID, &startedAt, &endedAt, &sess.WorkflowName, &overlay, &inventory,
		&sess.NodeCount, &sess.Status, &cwd, &gitCommit, &gitBranch, &cmdLine, &toolVersion, &toolCommit,
	)
	if err != nil {
		return nil, err
	}
	sess.RunID = runID.String

	sess.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err == nil {
			sess.EndedAt = &t
		}
	}
	sess.OverlayName = overlay.String
	sess.InventoryName = inventory.String
	sess.Cwd = cwd.String
	sess.GitCommit = gitCommit.String
	sess.GitBranch = gitBranch.String
	sess.CommandLine = cmdLine.String
	sess.ToolVersion = toolVersion.String
	sess.ToolCommit = toolCommit.String
	return &sess, nil
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var ts, level string
	var label, actionName sql.NullString
	var exitCode sql.NullInt64
	var durationMS sql.NullInt64

	err := row.Scan(
		&rec.ID, &rec.SessionID, &ts, &rec.NodeID, &label, &actionName,
		&level, &rec.Message, &exitCode, &durationMS,
	)
	if err != nil {
		return nil, err
	}

	rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	rec.Label = label.String
	rec.ActionName = actionName.String
	rec.Level = ParseLevel(level)
	if exitCode.Valid {
		v := int(exitCode.Int64)
		rec.ExitCode = &v
	}
	if durationMS.Valid {
		v := durationMS.Int64
		rec.DurationMS = &v
	}
	return &rec, nil
}
