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

// Package list implements drover list: enumerate workflow documents.
package list

import (
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/tombee/drover/internal/commands/shared"
)

// workflowGlob matches every format the loader accepts.
const workflowGlob = "**/*.{yaml,yml,json,xml}"

// NewCommand creates the list command.
func NewCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Enumerate workflow files under a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				return shared.NewMissingArgsError("list requires --dir")
			}
			return execute(cmd, dir)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Workflow directory (required)")
	return cmd
}

func execute(cmd *cobra.Command, dir string) error {
	matches, err := doublestar.Glob(os.DirFS(dir), workflowGlob)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(matches)
	for _, match := range matches {
		fmt.Fprintln(cmd.OutOrStdout(), match)
	}
	return nil
}
