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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tombee/drover/internal/logstore"
	"github.com/tombee/drover/internal/nodegroup"
)

var transitionRe = regexp.MustCompile(`^Transition (.+?)->(.+?): (SUCCESS|FAILED)(?: - (.*?))?(?: \[(.+)\])?$`)

// TransitionHistory renders the session's transition rows for one node,
// one line each: o/x marker, timestamp, from->to, optional note, error
// suffix on failures. With IncludeChildren and the nodeGroup target, the
// history is grouped per node instead.
type TransitionHistory struct {
	Store           Querier
	Target          string
	IncludeChildren bool
	Rank            int
}

func (s *TransitionHistory) Order() int {
	if s.Rank != 0 {
		return s.Rank
	}
	return OrderTransitionHistory
}

func (s *TransitionHistory) Generate(sessionID int64) (string, error) {
	if s.IncludeChildren && s.Target == nodegroup.ActorName {
		return s.generateGrouped(sessionID)
	}
	lines, err := s.renderNode(sessionID, s.Target)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}
	return "Transition history:\n" + strings.Join(lines, "\n"), nil
}

func (s *TransitionHistory) generateGrouped(sessionID int64) (string, error) {
	nodes, err := s.Store.NodesInSession(sessionID)
	if err != nil {
		return "", err
	}

	var blocks []string
	for _, node := range nodes {
		lines, err := s.renderNode(sessionID, node)
		if err != nil {
			return "", err
		}
		if len(lines) == 0 {
			continue
		}
		blocks = append(blocks, node+":\n"+strings.Join(lines, "\n"))
	}
	if len(blocks) == 0 {
		return "", nil
	}
	return "Transition history:\n" + strings.Join(blocks, "\n"), nil
}

func (s *TransitionHistory) renderNode(sessionID int64, node string) ([]string, error) {
	records, err := s.Store.LogsByNode(sessionID, node)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, rec := range records {
		if line, ok := renderTransition(rec); ok {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func renderTransition(rec logstore.Record) (string, bool) {
	m := transitionRe.FindStringSubmatch(rec.Message)
	if m == nil {
		return "", false
	}
	from, to, status, reason, note := m[1], m[2], m[3], m[4], m[5]

	marker := "o"
	if status == "FAILED" {
		marker = "x"
	}

	line := fmt.Sprintf("%s %s %s->%s", marker, rec.Timestamp.Format(time.RFC3339), from, to)
	if note != "" {
		line += " [" + note + "]"
	}
	if status == "FAILED" && reason != "" {
		line += " - " + reason
	}
	return line, true
}
