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

// Package describe implements drover describe: print a workflow's
// identity and structure without running it.
package describe

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/drover/internal/commands/shared"
	"github.com/tombee/drover/pkg/workflow"
)

// NewCommand creates the describe command.
func NewCommand() *cobra.Command {
	var (
		dir       string
		wfFile    string
		showSteps bool
	)
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print a workflow's name, path, and description",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" || wfFile == "" {
				return shared.NewMissingArgsError("describe requires --dir and --workflow")
			}
			return execute(cmd, dir, wfFile, showSteps)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Workflow directory (required)")
	cmd.Flags().StringVarP(&wfFile, "workflow", "w", "", "Workflow file (required)")
	cmd.Flags().BoolVar(&showSteps, "steps", false, "Also print each transition with its notes")
	return cmd
}

func execute(cmd *cobra.Command, dir, wfFile string, showSteps bool) error {
	path := wfFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, wfFile)
	}
	wf, err := workflow.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name: %s\n", wf.Name)
	fmt.Fprintf(out, "File: %s\n", wf.Path)
	if wf.Description != "" {
		fmt.Fprintln(out, "Description:")
		for _, line := range strings.Split(strings.TrimRight(wf.Description, "\n"), "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}

	if !showSteps {
		return nil
	}
	fmt.Fprintln(out, "Steps:")
	for i, t := range wf.Transitions {
		line := fmt.Sprintf("  %d. %s -> %s", i+1, t.From(), t.To())
		if t.Label != "" {
			line += fmt.Sprintf("  (%s)", t.Label)
		}
		fmt.Fprintln(out, line)
		if t.Note != "" {
			fmt.Fprintf(out, "     note: %s\n", t.Note)
		}
	}
	return nil
}
