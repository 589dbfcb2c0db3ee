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
	"regexp"
	"sort"
	"strings"
)

// Section orders. Workflow identity first, analysis sections later;
// gaps leave room for plugins to slot between built-ins.
const (
	OrderWorkflowName        = 100
	OrderWorkflowFile        = 105
	OrderWorkflowDescription = 110
	OrderCheckResults        = 500
	OrderTransitionHistory   = 550
	OrderGpuSummary          = 600
)

// WorkflowName emits the workflow's name.
type WorkflowName struct {
	Name string
}

func (s *WorkflowName) Order() int { return OrderWorkflowName }

func (s *WorkflowName) Generate(int64) (string, error) {
	if s.Name == "" {
		return "", nil
	}
	return "Workflow: " + s.Name, nil
}

// WorkflowFile emits the resolved workflow path.
type WorkflowFile struct {
	Path string
}

func (s *WorkflowFile) Order() int { return OrderWorkflowFile }

func (s *WorkflowFile) Generate(int64) (string, error) {
	if s.Path == "" {
		return "", nil
	}
	return "File: " + s.Path, nil
}

// WorkflowDescription emits the description, indented two spaces per
// line.
type WorkflowDescription struct {
	Description string
}

func (s *WorkflowDescription) Order() int { return OrderWorkflowDescription }

func (s *WorkflowDescription) Generate(int64) (string, error) {
	if strings.TrimSpace(s.Description) == "" {
		return "", nil
	}
	lines := strings.Split(strings.TrimRight(s.Description, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n"), nil
}

var nodePrefixRe = regexp.MustCompile(`^\[node-[^\]]*\] `)

// CheckResults collects %-prefixed lines from the session's log
// messages. Workflows use them as structured check output: the leading
// node prefix is stripped, duplicates keep their first occurrence, and
// the result is sorted.
type CheckResults struct {
	Store Querier
	Rank  int
}

func (s *CheckResults) Order() int {
	if s.Rank != 0 {
		return s.Rank
	}
	return OrderCheckResults
}

func (s *CheckResults) Generate(sessionID int64) (string, error) {
	records, err := s.Store.LogsBySession(sessionID, 0)
	if err != nil {
		return "", err
	}

	seen := map[string]bool{}
	var checks []string
	for _, rec := range records {
		for _, line := range strings.Split(rec.Message, "\n") {
			line = nodePrefixRe.ReplaceAllString(line, "")
			if !strings.HasPrefix(line, "%") {
				continue
			}
			if !seen[line] {
				seen[line] = true
				checks = append(checks, line)
			}
		}
	}
	if len(checks) == 0 {
		return "", nil
	}
	sort.Strings(checks)
	return "Check results:\n" + strings.Join(checks, "\n"), nil
}
