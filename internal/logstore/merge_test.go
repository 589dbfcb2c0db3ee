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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedDB creates a database with n sessions, each carrying two logs and
// one node result, then closes it and returns the path.
func seedDB(t *testing.T, name string, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	store, err := Open(path, Options{})
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		id, err := store.OpenSession(SessionMeta{WorkflowName: "deploy", NodeCount: 1})
		require.NoError(t, err)
		require.NoError(t, store.Append(Record{SessionID: id, NodeID: "node-a", Message: "start"}))
		require.NoError(t, store.Append(Record{SessionID: id, NodeID: "node-a", Message: "done"}))
		require.NoError(t, store.RecordNodeResult(NodeResult{SessionID: id, NodeID: "node-a", Status: NodeSuccess}))
		require.NoError(t, store.EndSession(id, SessionCompleted))
	}
	require.NoError(t, store.Close())
	return path
}

func TestMergeRenumbersSessions(t *testing.T) {
	src1 := seedDB(t, "one.db", 2)
	src2 := seedDB(t, "two.db", 1)
	target := filepath.Join(t.TempDir(), "merged.db")

	stats, err := Merge(target, []string{src1, src2}, MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.SessionsMerged)
	assert.Equal(t, 6, stats.LogsCopied)
	assert.Equal(t, 3, stats.ResultsCopied)

	store, err := Open(target, Options{})
	require.NoError(t, err)
	defer store.Close()

	sessions, err := store.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	ids := map[int64]bool{}
	for _, sess := range sessions {
		ids[sess.ID] = true
		recs, err := store.LogsByNode(sess.ID, "node-a")
		require.NoError(t, err)
		assert.Len(t, recs, 2, "logs must follow their session across the merge")
	}
	assert.Len(t, ids, 3, "renumbered ids are distinct")
}

func TestMergeSkipDuplicatesIsIdempotent(t *testing.T) {
	src := seedDB(t, "src.db", 2)
	target := filepath.Join(t.TempDir(), "merged.db")

	opts := MergeOptions{SkipDuplicates: true}
	stats, err := Merge(target, []string{src}, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SessionsMerged)

	// A second pass over the same source adds nothing.
	stats, err = Merge(target, []string{src}, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.SessionsMerged)
	assert.Equal(t, 2, stats.SessionsSkipped)

	store, err := Open(target, Options{})
	require.NoError(t, err)
	defer store.Close()
	sessions, err := store.ListSessions(0)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestMergeDryRunWritesNothing(t *testing.T) {
	src := seedDB(t, "src.db", 2)
	target := filepath.Join(t.TempDir(), "merged.db")

	stats, err := Merge(target, []string{src}, MergeOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SessionsMerged)

	store, err := Open(target, Options{})
	require.NoError(t, err)
	defer store.Close()
	sessions, err := store.ListSessions(0)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
