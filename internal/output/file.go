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
	"sync"
)

// File appends entries to a text file with the same "[source] " line
// format the console uses. Lines reach the OS as they are written; Close
// is idempotent.
type File struct {
	mu     sync.Mutex
	f      *os.File
	closed bool
}

// NewFile opens (or creates) path for appending.
func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &File{f: f}, nil
}

// Add implements Accumulator. Write failures are reported to stderr so a
// full disk never interrupts the run.
func (a *File) Add(source, kind, data string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for _, line := range strings.Split(strings.TrimSuffix(data, "\n"), "\n") {
		if _, err := fmt.Fprintf(a.f, "[%s] %s\n", source, line); err != nil {
			fmt.Fprintf(os.Stderr, "file accumulator write failed: %v\n", err)
			return
		}
	}
}

// Close closes the underlying file. Safe to call more than once.
func (a *File) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.f.Close()
}

// Path returns the file's name as opened.
func (a *File) Path() string {
	return a.f.Name()
}
