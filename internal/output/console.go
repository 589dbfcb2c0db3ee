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
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	prefixStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Console writes entries to the terminal. Every line is prefixed with
// "[source] "; stderr-kind entries route to the error stream. A quiet
// console still counts entries so callers can report suppressed volume.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	quiet  bool
	color  bool

	entries    int
	suppressed int
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithQuiet suppresses output while continuing to count entries.
func WithQuiet(quiet bool) ConsoleOption {
	return func(c *Console) { c.quiet = quiet }
}

// WithWriters redirects the console streams, mainly for tests.
func WithWriters(out, errOut io.Writer) ConsoleOption {
	return func(c *Console) {
		c.out = out
		c.errOut = errOut
		c.color = false
	}
}

func NewConsole(opts ...ConsoleOption) *Console {
	c := &Console{
		out:    os.Stdout,
		errOut: os.Stderr,
		color:  term.IsTerminal(int(os.Stdout.Fd())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add implements Accumulator.
func (c *Console) Add(source, kind, data string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries++
	if c.quiet {
		c.suppressed++
		return
	}

	w := c.out
	if kind == KindStderr {
		w = c.errOut
	}

	prefix := "[" + source + "] "
	if c.color {
		if kind == KindStderr || kind == KindLogSevere {
			prefix = errorStyle.Render(prefix)
		} else {
			prefix = prefixStyle.Render(prefix)
		}
	}

	for _, line := range strings.Split(strings.TrimSuffix(data, "\n"), "\n") {
		fmt.Fprintf(w, "%s%s\n", prefix, line)
	}
}

// Entries reports how many entries the console has seen, including any
// suppressed by quiet mode.
func (c *Console) Entries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries
}

// Suppressed reports how many entries quiet mode swallowed.
func (c *Console) Suppressed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed
}
