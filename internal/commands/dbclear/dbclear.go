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

// Package dbclear implements drover db-clear: remove a log database and
// its WAL sidecar files.
package dbclear

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/drover/internal/commands/shared"
	"github.com/tombee/drover/internal/logservice"
)

// NewCommand creates the db-clear command.
func NewCommand() *cobra.Command {
	var (
		db    string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "db-clear",
		Short: "Delete a log database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if db == "" {
				return shared.NewMissingArgsError("db-clear requires --db")
			}
			return execute(cmd, db, force)
		},
	}
	shared.AddDBFlag(cmd.Flags(), &db)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete even if a log service is serving the database")
	return cmd
}

func execute(cmd *cobra.Command, db string, force bool) error {
	if !force {
		info, err := logservice.Discover(cmd.Context(), db)
		if err != nil {
			return err
		}
		if info != nil {
			return &shared.ExitError{
				Code: shared.ExitWorkflowFailed,
				Message: fmt.Sprintf("a log service is serving %s on port %d; stop it or pass --force",
					db, info.Port),
			}
		}
	}

	removed := false
	for _, path := range []string{db, db + "-wal", db + "-shm"} {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed = true
		case os.IsNotExist(err):
		default:
			return err
		}
	}
	if !removed {
		fmt.Fprintf(cmd.OutOrStdout(), "nothing to delete at %s\n", db)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", db)
	return nil
}
