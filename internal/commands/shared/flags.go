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

import "github.com/spf13/pflag"

// Global flag values, bound by the root command.
var (
	quietFlag bool

	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to flag variables for binding.
func RegisterFlagPointers() *bool {
	return &quietFlag
}

// SetVersion records build-time version information (called from main).
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVersion returns version, commit, and build date.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// GetQuiet returns the quiet flag value.
func GetQuiet() bool {
	return quietFlag
}

// AddDBFlag binds the --db flag every log-database command shares.
func AddDBFlag(fs *pflag.FlagSet, target *string) {
	fs.StringVar(target, "db", "", "Log database path (required)")
}
