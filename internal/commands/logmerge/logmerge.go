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

// Package logmerge implements drover log-merge: consolidate several log
// databases into one.
package logmerge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/tombee/drover/internal/commands/shared"
	"github.com/tombee/drover/internal/logstore"
)

type options struct {
	target         string
	scan           string
	dryRun         bool
	skipDuplicates bool
}

// NewCommand creates the log-merge command.
func NewCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "log-merge [source.db ...]",
		Short: "Merge log databases into a target database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.target == "" {
				return shared.NewMissingArgsError("log-merge requires --target")
			}
			if opts.scan == "" && len(args) == 0 {
				return shared.NewMissingArgsError("log-merge requires --scan or source database arguments")
			}
			return execute(cmd, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "Target database path (required)")
	cmd.Flags().StringVar(&opts.scan, "scan", "", "Directory to scan recursively for *.db files")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Report what would be merged without writing")
	cmd.Flags().BoolVar(&opts.skipDuplicates, "skip-duplicates", false, "Skip sessions already present in the target")
	return cmd
}

func execute(cmd *cobra.Command, opts *options, args []string) error {
	sources := append([]string(nil), args...)
	if opts.scan != "" {
		found, err := scanForDatabases(opts.scan, opts.target)
		if err != nil {
			return err
		}
		sources = append(sources, found...)
	}
	if len(sources) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no source databases found")
		return nil
	}

	stats, err := logstore.Merge(opts.target, sources, logstore.MergeOptions{
		DryRun:         opts.dryRun,
		SkipDuplicates: opts.skipDuplicates,
	})
	if err != nil {
		return err
	}

	verb := "merged"
	if opts.dryRun {
		verb = "would merge"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d sessions (%d skipped): %d logs, %d node results\n",
		verb, stats.SessionsMerged, stats.SessionsSkipped, stats.LogsCopied, stats.ResultsCopied)
	return nil
}

// scanForDatabases walks dir for *.db files, excluding the target itself.
func scanForDatabases(dir, target string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.db")
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	targetAbs, _ := filepath.Abs(target)
	var sources []string
	for _, match := range matches {
		path := filepath.Join(dir, match)
		abs, _ := filepath.Abs(path)
		if abs == targetAbs {
			continue
		}
		sources = append(sources, path)
	}
	sort.Strings(sources)
	return sources, nil
}
