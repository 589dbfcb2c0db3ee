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

// Package cli assembles the drover command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/drover/internal/commands/dbclear"
	"github.com/tombee/drover/internal/commands/describe"
	"github.com/tombee/drover/internal/commands/list"
	"github.com/tombee/drover/internal/commands/logmerge"
	"github.com/tombee/drover/internal/commands/logs"
	"github.com/tombee/drover/internal/commands/logserve"
	"github.com/tombee/drover/internal/commands/run"
	"github.com/tombee/drover/internal/commands/shared"
	"github.com/tombee/drover/internal/version"
)

// SetVersion records build-time version information (called from main).
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
	version.Set(v, c, b)
}

// NewRootCommand creates the root Cobra command for drover.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drover",
		Short: "Drover - agentless workflow automation",
		Long: `Drover drives fleets of hosts through declarative state-machine
workflows. A workflow names guarded transitions invoking actions on
named actors; drover fans it out across an inventory over SSH,
multiplexes the output, and records a queryable execution log.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	quiet := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress console output (entries are still counted and logged)")

	cmd.AddCommand(
		run.NewCommand(),
		list.NewCommand(),
		describe.NewCommand(),
		logs.NewCommand(),
		logserve.NewCommand(),
		logmerge.NewCommand(),
		dbclear.NewCommand(),
	)
	return cmd
}

// HandleExitError maps an error to the process exit code.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
