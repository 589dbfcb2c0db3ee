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

package describe

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const describeYAML = `name: provision
description: |
  Provision a host.
  Two lines of it.
steps:
  - states: [start, ready]
    label: get ready
    note: idempotent
    actions:
      - actor: node
        method: run
        arguments: ["true"]
  - states: [ready, end]
`

func writeWorkflow(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "provision.yaml"), []byte(describeYAML), 0o644))
	return dir
}

func TestDescribePrintsIdentity(t *testing.T) {
	dir := writeWorkflow(t)

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.Flags().Set("dir", dir))
	require.NoError(t, cmd.Flags().Set("workflow", "provision.yaml"))
	require.NoError(t, cmd.RunE(cmd, nil))

	text := out.String()
	assert.Contains(t, text, "Name: provision\n")
	assert.Contains(t, text, "File: "+filepath.Join(dir, "provision.yaml"))
	assert.Contains(t, text, "  Provision a host.\n  Two lines of it.\n")
	assert.NotContains(t, text, "Steps:")
}

func TestDescribeStepsListsTransitions(t *testing.T) {
	dir := writeWorkflow(t)

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.Flags().Set("dir", dir))
	require.NoError(t, cmd.Flags().Set("workflow", "provision.yaml"))
	require.NoError(t, cmd.Flags().Set("steps", "true"))
	require.NoError(t, cmd.RunE(cmd, nil))

	text := out.String()
	assert.Contains(t, text, "1. start -> ready  (get ready)")
	assert.Contains(t, text, "note: idempotent")
	assert.Contains(t, text, "2. ready -> end")
}

func TestDescribeRequiresDirAndWorkflow(t *testing.T) {
	cmd := NewCommand()
	require.Error(t, cmd.RunE(cmd, nil))
}
