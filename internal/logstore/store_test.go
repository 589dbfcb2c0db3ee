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
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "drover.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionIDsIncrease(t *testing.T) {
	store := openTestStore(t)

	var last int64
	for i := 0; i < 3; i++ {
		id, err := store.OpenSession(SessionMeta{WorkflowName: "deploy"})
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}

	latest, err := store.LatestSessionID()
	require.NoError(t, err)
	assert.Equal(t, last, latest)
}

func TestAppendPreservesProducerOrder(t *testing.T) {
	store := openTestStore(t)

	id, err := store.OpenSession(SessionMeta{WorkflowName: "deploy"})
	require.NoError(t, err)

	for i := 0; i < 250; i++ {
		require.NoError(t, store.Append(Record{
			SessionID: id,
			NodeID:    "node-web-01",
			Level:     LevelInfo,
			Message:   fmt.Sprintf("line %03d", i),
		}))
	}
	require.NoError(t, store.EndSession(id, SessionCompleted))

	recs, err := store.LogsByNode(id, "node-web-01")
	require.NoError(t, err)
	require.Len(t, recs, 250)
	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i].ID, recs[i-1].ID, "ids must follow submission order")
	}
	assert.Equal(t, "line 000", recs[0].Message)
	assert.Equal(t, "line 249", recs[249].Message)
}

func TestEndSessionStampsStatus(t *testing.T) {
	store := openTestStore(t)

	id, err := store.OpenSession(SessionMeta{WorkflowName: "deploy", NodeCount: 2})
	require.NoError(t, err)

	sess, err := store.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, SessionRunning, sess.Status)
	assert.Nil(t, sess.EndedAt)

	require.NoError(t, store.EndSession(id, SessionFailed))
	// Rewriting is permitted; the last write wins.
	require.NoError(t, store.EndSession(id, SessionCompleted))

	sess, err = store.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, SessionCompleted, sess.Status)
	require.NotNil(t, sess.EndedAt)
	assert.False(t, sess.EndedAt.IsZero())
}

func TestNodeResultUpsert(t *testing.T) {
	store := openTestStore(t)

	id, err := store.OpenSession(SessionMeta{WorkflowName: "deploy"})
	require.NoError(t, err)

	require.NoError(t, store.RecordNodeResult(NodeResult{SessionID: id, NodeID: "node-a", Status: NodeFailed, Reason: "boom"}))
	require.NoError(t, store.RecordNodeResult(NodeResult{SessionID: id, NodeID: "node-a", Status: NodeSuccess}))
	require.NoError(t, store.RecordNodeResult(NodeResult{SessionID: id, NodeID: "node-b", Status: NodeFailed, Reason: "unreachable"}))

	summary, err := store.Summary(id)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.NodesTotal, "one row per (session, node)")
	assert.Equal(t, 1, summary.NodesSucceeded)
	assert.Equal(t, 1, summary.NodesFailed)
	require.Len(t, summary.FailedNodes, 1)
	assert.Equal(t, "node-b", summary.FailedNodes[0].NodeID)
	assert.Equal(t, "unreachable", summary.FailedNodes[0].Reason)
}

func TestListSessionsOrderAndLimit(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 5; i++ {
		_, err := store.OpenSession(SessionMeta{WorkflowName: fmt.Sprintf("wf-%d", i)})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	sessions, err := store.ListSessions(3)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "wf-4", sessions[0].WorkflowName, "newest first")
	for i := 1; i < len(sessions); i++ {
		assert.False(t, sessions[i].StartedAt.After(sessions[i-1].StartedAt))
	}
}

func TestListSessionsFiltered(t *testing.T) {
	store := openTestStore(t)

	_, err := store.OpenSession(SessionMeta{WorkflowName: "deploy", InventoryName: "prod"})
	require.NoError(t, err)
	id2, err := store.OpenSession(SessionMeta{WorkflowName: "deploy", InventoryName: "staging"})
	require.NoError(t, err)
	_, err = store.OpenSession(SessionMeta{WorkflowName: "provision", InventoryName: "staging"})
	require.NoError(t, err)

	sessions, err := store.ListSessionsFiltered(SessionFilter{Workflow: "deploy", Inventory: "staging"})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id2, sessions[0].ID)

	past := time.Now().Add(-time.Hour)
	sessions, err = store.ListSessionsFiltered(SessionFilter{StartedAfter: &past})
	require.NoError(t, err)
	assert.Len(t, sessions, 3)

	future := time.Now().Add(time.Hour)
	sessions, err = store.ListSessionsFiltered(SessionFilter{StartedAfter: &future})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestLogsByLevelFilters(t *testing.T) {
	store := openTestStore(t)

	id, err := store.OpenSession(SessionMeta{WorkflowName: "deploy"})
	require.NoError(t, err)

	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		require.NoError(t, store.Append(Record{SessionID: id, NodeID: "cli", Level: level, Message: string(level)}))
	}
	require.NoError(t, store.EndSession(id, SessionCompleted))

	recs, err := store.LogsByLevel(id, LevelWarn)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, LevelWarn, recs[0].Level)
	assert.Equal(t, LevelError, recs[1].Level)
}

func TestRecordRoundTrip(t *testing.T) {
	store := openTestStore(t)

	id, err := store.OpenSession(SessionMeta{WorkflowName: "deploy"})
	require.NoError(t, err)

	exit := 3
	dur := int64(120)
	require.NoError(t, store.Append(Record{
		SessionID:  id,
		NodeID:     "node-x",
		Label:      "states: [0, 1]",
		ActionName: "shell.run",
		Level:      LevelError,
		Message:    "[node-x] a\n[node-x] b",
		ExitCode:   &exit,
		DurationMS: &dur,
	}))
	require.NoError(t, store.EndSession(id, SessionCompleted))

	recs, err := store.LogsByNode(id, "node-x")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "states: [0, 1]", rec.Label)
	assert.Equal(t, "shell.run", rec.ActionName)
	assert.Equal(t, "[node-x] a\n[node-x] b", rec.Message)
	require.NotNil(t, rec.ExitCode)
	assert.Equal(t, 3, *rec.ExitCode)
	require.NotNil(t, rec.DurationMS)
	assert.Equal(t, int64(120), *rec.DurationMS)
}

func TestNodesInSession(t *testing.T) {
	store := openTestStore(t)

	id, err := store.OpenSession(SessionMeta{WorkflowName: "deploy"})
	require.NoError(t, err)
	for _, node := range []string{"node-b", "node-a", "node-b", "cli"} {
		require.NoError(t, store.Append(Record{SessionID: id, NodeID: node, Message: "m"}))
	}
	require.NoError(t, store.EndSession(id, SessionCompleted))

	nodes, err := store.NodesInSession(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"cli", "node-a", "node-b"}, nodes)
}

func TestCloseIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
