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

// Package output implements the broadcast output pipeline. Every emitted
// entry is a (source, kind, data) triple; the multiplexer fans each entry
// out to console, file, and database accumulators.
package output

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tombee/drover/internal/actor"
	"github.com/tombee/drover/pkg/action"
)

// Output kinds. log-<LEVEL> kinds carry structured log lines through the
// same pipe as process output.
const (
	KindStdout       = "stdout"
	KindStderr       = "stderr"
	KindCowsay       = "cowsay"
	KindLogInfo      = "log-INFO"
	KindLogWarning   = "log-WARNING"
	KindLogSevere    = "log-SEVERE"
	KindPluginResult = "plugin-result"
)

// MultiplexerName is the well-known actor name for the multiplexer.
const MultiplexerName = "outputMultiplexer"

// Accumulator consumes output entries. Add must tolerate multi-line data.
type Accumulator interface {
	Add(source, kind, data string)
}

// Multiplexer delivers every entry to every attached sink. A failing sink
// never stops the others; sink panics are reported to stderr only, since
// routing them back through the pipeline would recurse.
type Multiplexer struct {
	mu    sync.Mutex
	sinks []Accumulator
}

func NewMultiplexer(sinks ...Accumulator) *Multiplexer {
	return &Multiplexer{sinks: sinks}
}

// Attach adds a sink. Safe to call while entries are flowing.
func (m *Multiplexer) Attach(sink Accumulator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// Detach removes a previously attached sink.
func (m *Multiplexer) Detach(sink Accumulator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sinks {
		if s == sink {
			m.sinks = append(m.sinks[:i], m.sinks[i+1:]...)
			return
		}
	}
}

// Add broadcasts one entry to all sinks.
func (m *Multiplexer) Add(source, kind, data string) {
	m.mu.Lock()
	sinks := make([]Accumulator, len(m.sinks))
	copy(sinks, m.sinks)
	m.mu.Unlock()

	for _, sink := range sinks {
		deliver(sink, source, kind, data)
	}
}

func deliver(sink Accumulator, source, kind, data string) {
	defer func() {
		if rec := recover(); rec != nil {
			fmt.Fprintf(os.Stderr, "output sink panic: %v\n", rec)
		}
	}()
	sink.Add(source, kind, data)
}

// ActorActions exposes the multiplexer as the outputMultiplexer actor:
// add(source, kind, data).
func (m *Multiplexer) ActorActions() actor.Actions {
	return actor.Actions{
		"add": func(ctx context.Context, args []string) action.Result {
			if len(args) < 3 {
				return action.Fail("Error: add requires source, type and data")
			}
			m.Add(args[0], args[1], args[2])
			return action.Ok("")
		},
	}
}
