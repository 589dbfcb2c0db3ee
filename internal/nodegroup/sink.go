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

package nodegroup

import (
	"fmt"
	"os"

	"github.com/tombee/drover/internal/logstore"
	"github.com/tombee/drover/internal/output"
	"github.com/tombee/drover/pkg/workflow"
)

// storeSink bridges interpreter events into the log store as structured
// records. Process output travels the multiplexer separately; routing
// these records through it as well would persist every row twice.
type storeSink struct {
	store     logstore.Producer
	sessionID int64

	// echo, when set, mirrors event messages to the console so the
	// operator sees transitions as they happen.
	echo output.Accumulator
}

func (s *storeSink) Emit(ev workflow.Event) {
	level := logstore.LevelInfo
	kind := output.KindLogInfo
	if ev.Error {
		level = logstore.LevelError
		kind = output.KindLogSevere
	}
	err := s.store.Append(logstore.Record{
		SessionID:  s.sessionID,
		NodeID:     ev.Node,
		Label:      ev.Label,
		ActionName: ev.ActionName,
		Level:      level,
		Message:    ev.Message,
		ExitCode:   ev.ExitCode,
		DurationMS: ev.DurationMS,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "log record dropped: %v\n", err)
	}

	if s.echo != nil && ev.ActionName == "" && ev.Message != "" {
		s.echo.Add(ev.Node, kind, ev.Message)
	}
}
