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

package shared

import (
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/tombee/drover/internal/logstore"
)

// CaptureSessionMeta snapshots the execution context a session records:
// working directory, git position, the exact command line, and the tool
// build. Everything is best effort; a missing git repo leaves the
// fields empty.
func CaptureSessionMeta(workflowName, overlayName, inventoryName string, nodeCount int) logstore.SessionMeta {
	cwd, _ := os.Getwd()
	return logstore.SessionMeta{
		RunID:         uuid.New().String(),
		WorkflowName:  workflowName,
		OverlayName:   overlayName,
		InventoryName: inventoryName,
		NodeCount:     nodeCount,
		Cwd:           cwd,
		GitCommit:     gitOutput("rev-parse", "HEAD"),
		GitBranch:     gitOutput("rev-parse", "--abbrev-ref", "HEAD"),
		CommandLine:   strings.Join(os.Args, " "),
		ToolVersion:   version,
		ToolCommit:    commit,
	}
}

func gitOutput(args ...string) string {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
