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

// Package logserve implements drover log-serve: run the standalone log
// service that owns a database's single writer.
package logserve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/drover/internal/commands/shared"
	"github.com/tombee/drover/internal/log"
	"github.com/tombee/drover/internal/logservice"
)

const stopTimeout = 10 * time.Second

// NewCommand creates the log-serve command.
func NewCommand() *cobra.Command {
	var (
		db   string
		port int
		find bool
	)
	cmd := &cobra.Command{
		Use:   "log-serve",
		Short: "Serve a log database to other drover processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if db == "" {
				return shared.NewMissingArgsError("log-serve requires --db")
			}
			if find {
				return executeFind(cmd, db)
			}
			return execute(cmd, db, port)
		},
	}
	shared.AddDBFlag(cmd.Flags(), &db)
	cmd.Flags().IntVarP(&port, "port", "p", logservice.PortBase, "TCP port to listen on")
	cmd.Flags().BoolVar(&find, "find", false, "Look for a running service for this database and exit")
	return cmd
}

// executeFind probes the well-known port range without starting anything.
func executeFind(cmd *cobra.Command, db string) error {
	info, err := logservice.Discover(cmd.Context(), db)
	if err != nil {
		return err
	}
	if info == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "no service found for %s\n", db)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s serving %s on port %d (http %d), started %s\n",
		info.Server, info.DBPath, info.Port, info.HTTPPort, info.StartedAt)
	return nil
}

func execute(cmd *cobra.Command, db string, port int) error {
	svc := logservice.New(logservice.Config{
		DBPath: db,
		Port:   port,
		Logger: log.New(log.DefaultConfig()),
	})
	if err := svc.Start(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "serving %s on port %d (http %d)\n", db, svc.Port(), svc.HTTPPort())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return svc.Stop(ctx)
}
