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

// Package report composes post-run reports from the log database. A
// report is an ordered pipeline of sections; each section queries the
// session's records and renders a block of text, and empty blocks are
// dropped.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tombee/drover/internal/logstore"
	"github.com/tombee/drover/internal/output"
)

// ReporterSource identifies report output in the multiplexer stream.
const ReporterSource = "workflow-reporter"

// Querier is the read surface sections need; *logstore.Store satisfies
// it.
type Querier interface {
	LogsBySession(sessionID int64, limit int) ([]logstore.Record, error)
	LogsByNode(sessionID int64, nodeID string) ([]logstore.Record, error)
	NodesInSession(sessionID int64) ([]string, error)
}

// Section renders one block of the report. Lower Order renders first.
type Section interface {
	Order() int
	Generate(sessionID int64) (string, error)
}

// Reporter runs sections and routes the composed report through the
// output pipeline.
type Reporter struct {
	sections []Section
	mux      *output.Multiplexer
}

func New(mux *output.Multiplexer, sections ...Section) *Reporter {
	return &Reporter{sections: sections, mux: mux}
}

// Add appends a section.
func (r *Reporter) Add(section Section) {
	r.sections = append(r.sections, section)
}

// Compose renders every section in order, joined by blank lines. A
// section error renders as a placeholder line rather than aborting the
// report.
func (r *Reporter) Compose(sessionID int64) string {
	ordered := make([]Section, len(r.sections))
	copy(ordered, r.sections)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order() < ordered[j].Order() })

	var blocks []string
	for _, section := range ordered {
		block, err := section.Generate(sessionID)
		if err != nil {
			blocks = append(blocks, fmt.Sprintf("(section error: %v)", err))
			continue
		}
		if strings.TrimSpace(block) == "" {
			continue
		}
		blocks = append(blocks, strings.TrimRight(block, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// Emit composes the report and sends it through the multiplexer.
func (r *Reporter) Emit(sessionID int64) {
	report := r.Compose(sessionID)
	if report == "" {
		return
	}
	r.mux.Add(ReporterSource, output.KindPluginResult, report)
}
