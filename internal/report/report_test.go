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

package report

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/drover/internal/logstore"
	"github.com/tombee/drover/internal/output"
)

type memQuerier struct {
	records []logstore.Record
}

func (m *memQuerier) LogsBySession(int64, int) ([]logstore.Record, error) {
	return m.records, nil
}

func (m *memQuerier) LogsByNode(_ int64, node string) ([]logstore.Record, error) {
	var out []logstore.Record
	for _, rec := range m.records {
		if rec.NodeID == node {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memQuerier) NodesInSession(int64) ([]string, error) {
	seen := map[string]bool{}
	var nodes []string
	for _, rec := range m.records {
		if !seen[rec.NodeID] {
			seen[rec.NodeID] = true
			nodes = append(nodes, rec.NodeID)
		}
	}
	sort.Strings(nodes)
	return nodes, nil
}

func rec(node, message string) logstore.Record {
	return logstore.Record{
		NodeID:    node,
		Message:   message,
		Timestamp: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
}

func TestWorkflowIdentitySections(t *testing.T) {
	name, err := (&WorkflowName{Name: "deploy"}).Generate(1)
	require.NoError(t, err)
	assert.Equal(t, "Workflow: deploy", name)

	file, err := (&WorkflowFile{Path: "/srv/wf/deploy.yaml"}).Generate(1)
	require.NoError(t, err)
	assert.Equal(t, "File: /srv/wf/deploy.yaml", file)

	desc, err := (&WorkflowDescription{Description: "line one\nline two"}).Generate(1)
	require.NoError(t, err)
	assert.Equal(t, "  line one\n  line two", desc)

	empty, err := (&WorkflowDescription{}).Generate(1)
	require.NoError(t, err)
	assert.Empty(t, empty, "empty description suppresses the section")
}

func TestCheckResultsDedupAndSort(t *testing.T) {
	store := &memQuerier{records: []logstore.Record{
		rec("node-a", "[node-a] %disk ok"),
		rec("node-b", "[node-b] %cpu ok\nplain output"),
		rec("node-b", "[node-b] %disk ok"),
		rec("node-a", "no checks here"),
	}}

	got, err := (&CheckResults{Store: store}).Generate(1)
	require.NoError(t, err)
	assert.Equal(t, "Check results:\n%cpu ok\n%disk ok", got)
}

func TestCheckResultsEmptyWhenNoChecks(t *testing.T) {
	store := &memQuerier{records: []logstore.Record{rec("node-a", "nothing")}}
	got, err := (&CheckResults{Store: store}).Generate(1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTransitionHistorySingleNode(t *testing.T) {
	store := &memQuerier{records: []logstore.Record{
		rec("node-a", "Transition 0->1: SUCCESS"),
		rec("node-a", "Transition 1->2: SUCCESS [install phase]"),
		rec("node-a", "Transition 2->end: FAILED - boom"),
		rec("node-a", "unrelated output"),
	}}

	got, err := (&TransitionHistory{Store: store, Target: "node-a"}).Generate(1)
	require.NoError(t, err)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Transition history:", lines[0])
	assert.Equal(t, "o 2026-08-25T12:00:00Z 0->1", lines[1])
	assert.Equal(t, "o 2026-08-25T12:00:00Z 1->2 [install phase]", lines[2])
	assert.Equal(t, "x 2026-08-25T12:00:00Z 2->end - boom", lines[3])
}

func TestTransitionHistoryGroupedByNode(t *testing.T) {
	store := &memQuerier{records: []logstore.Record{
		rec("node-a", "Transition 0->end: SUCCESS"),
		rec("node-b", "Transition 0->end: FAILED - unreachable"),
		rec("cli", "not a transition"),
	}}

	got, err := (&TransitionHistory{Store: store, Target: "nodeGroup", IncludeChildren: true}).Generate(1)
	require.NoError(t, err)
	assert.Contains(t, got, "node-a:\no ")
	assert.Contains(t, got, "node-b:\nx ")
	assert.NotContains(t, got, "cli:")
}

func TestGpuSummaryParsesAllFormats(t *testing.T) {
	store := &memQuerier{records: []logstore.Record{
		rec("node-a", "[node-a] NVIDIA A100-SXM4-40GB, 40960 MiB"),
		rec("node-b", "Card series: Instinct MI210"),
		rec("node-c", "03:00.0 VGA compatible controller: Matrox Electronics Systems Ltd. MGA G200e"),
	}}

	got, err := (&GpuSummary{Store: store}).Generate(1)
	require.NoError(t, err)
	assert.Contains(t, got, "GPU summary:")
	assert.Contains(t, got, "node-a: gpu=NVIDIA A100-SXM4-40GB memory=40960 MiB")
	assert.Contains(t, got, "node-b: card_series=Instinct MI210")
	assert.Contains(t, got, "node-c: vga=Matrox Electronics Systems Ltd. MGA G200e")
	assert.Contains(t, got, "1 GPUs detected")
}

func TestComposeOrdersAndSkipsEmpty(t *testing.T) {
	store := &memQuerier{records: []logstore.Record{
		rec("node-a", "Transition 0->end: SUCCESS"),
	}}

	mux := output.NewMultiplexer()
	var captured []string
	mux.Attach(sinkFunc(func(source, kind, data string) {
		captured = append(captured, source+"|"+kind+"|"+data)
	}))

	r := New(mux,
		&TransitionHistory{Store: store, Target: "node-a"},
		&CheckResults{Store: store},
		&WorkflowName{Name: "deploy"},
	)
	r.Emit(1)

	require.Len(t, captured, 1)
	assert.True(t, strings.HasPrefix(captured[0], "workflow-reporter|plugin-result|"))
	body := strings.SplitN(captured[0], "|", 3)[2]
	// Name (100) before history (550); empty check results dropped.
	assert.True(t, strings.Index(body, "Workflow: deploy") < strings.Index(body, "Transition history:"))
	assert.NotContains(t, body, "Check results")
	assert.Contains(t, body, "\n\n", "sections are blank-line separated")
}

type sinkFunc func(source, kind, data string)

func (f sinkFunc) Add(source, kind, data string) { f(source, kind, data) }
