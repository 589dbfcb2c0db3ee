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

// droverd runs the standalone log service: it owns the single writer
// for a log database and serves it to drover runs on other processes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tombee/drover/internal/log"
	"github.com/tombee/drover/internal/logservice"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const stopTimeout = 10 * time.Second

func main() {
	var (
		dbPath      = flag.String("db", "", "Log database path (required)")
		port        = flag.Int("port", 0, "TCP port to listen on (0 scans the well-known range)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("droverd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --db is required")
		os.Exit(2)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	svc := logservice.New(logservice.Config{
		DBPath: *dbPath,
		Port:   *port,
		Logger: logger,
	})
	if err := svc.Start(); err != nil {
		logger.Error("Failed to start log service", log.Error(err))
		os.Exit(1)
	}
	logger.Info("Log service started",
		slog.String("db", *dbPath),
		slog.Int("port", svc.Port()),
		slog.Int("http_port", svc.HTTPPort()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("Shutting down", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		logger.Error("Error during shutdown", log.Error(err))
		os.Exit(1)
	}
}
