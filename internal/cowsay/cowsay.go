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

// Package cowsay renders run banners. A pure string transform: a speech
// bubble wrapping the message, a cow below it.
package cowsay

import (
	"fmt"
	"os"
	"strings"
)

const defaultCow = `        \   ^__^
         \  (oo)\_______
            (__)\       )\/\
                ||----w |
                ||     ||`

// Say wraps msg in a speech bubble above the default cow.
func Say(msg string) string {
	return sayWith(msg, defaultCow)
}

// SayFile renders with a custom cow body read from cowfile. The file is
// used verbatim below the bubble; read errors fall back to the default
// cow.
func SayFile(msg, cowfile string) string {
	if cowfile == "" {
		return Say(msg)
	}
	body, err := os.ReadFile(cowfile)
	if err != nil {
		return Say(msg)
	}
	return sayWith(msg, strings.TrimRight(string(body), "\n"))
}

func sayWith(msg, cow string) string {
	lines := strings.Split(strings.TrimRight(msg, "\n"), "\n")
	width := 0
	for _, line := range lines {
		if len(line) > width {
			width = len(line)
		}
	}

	var b strings.Builder
	b.WriteString(" " + strings.Repeat("_", width+2) + "\n")
	for i, line := range lines {
		left, right := "|", "|"
		switch {
		case len(lines) == 1:
			left, right = "<", ">"
		case i == 0:
			left, right = "/", "\\"
		case i == len(lines)-1:
			left, right = "\\", "/"
		}
		fmt.Fprintf(&b, "%s %-*s %s\n", left, width, line, right)
	}
	b.WriteString(" " + strings.Repeat("-", width+2) + "\n")
	b.WriteString(cow)
	return b.String()
}
