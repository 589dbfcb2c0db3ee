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

package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/tombee/drover/internal/logstore"
)

// Database packages each entry as a log record and hands it to the store
// writer on the reserved database pool. Fire-and-forget: Add returns
// before the record is persisted.
type Database struct {
	store     logstore.Producer
	sessionID int64

	// submit schedules the store call off the caller's goroutine,
	// normally the actor system's width-1 database pool.
	submit func(func()) bool
}

func NewDatabase(store logstore.Producer, sessionID int64, submit func(func()) bool) *Database {
	if submit == nil {
		submit = func(task func()) bool { task(); return true }
	}
	return &Database{store: store, sessionID: sessionID, submit: submit}
}

// Add implements Accumulator.
func (d *Database) Add(source, kind, data string) {
	exit := 0
	rec := logstore.Record{
		SessionID: d.sessionID,
		NodeID:    source,
		Level:     levelForKind(kind),
		Message:   prefixLines(source, data),
		ExitCode:  &exit,
	}
	if !d.submit(func() {
		if err := d.store.Append(rec); err != nil {
			fmt.Fprintf(os.Stderr, "database accumulator append failed: %v\n", err)
		}
	}) {
		fmt.Fprintln(os.Stderr, "database accumulator: pool stopped, record dropped")
	}
}

// prefixLines renders data the way the console shows it, so database
// rows read the same as the terminal did.
func prefixLines(source, data string) string {
	lines := strings.Split(strings.TrimSuffix(data, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "[" + source + "] " + line
	}
	return strings.Join(lines, "\n")
}

// levelForKind maps an output kind to a log level. Process output and
// anything unrecognised records as INFO.
func levelForKind(kind string) logstore.Level {
	switch kind {
	case KindLogSevere:
		return logstore.LevelError
	case KindLogWarning:
		return logstore.LevelWarn
	case KindLogInfo:
		return logstore.LevelInfo
	default:
		return logstore.LevelInfo
	}
}
