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

// Package remote provides uniform command execution against workflow
// targets, whether the target is the local machine or a host reached
// over SSH.
package remote

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Shell runs one command on a target and reports its streams and exit
// status. err is reserved for transport failures; a command that ran and
// exited non-zero returns err == nil with the exit code set.
type Shell interface {
	Run(ctx context.Context, cmd string) (stdout, stderr string, exit int, err error)
	Close() error
}

// Local executes commands on the machine running the tool via sh -c.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) Run(ctx context.Context, cmd string) (string, string, int, error) {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
		}
		return stdout.String(), stderr.String(), -1, err
	}
	return stdout.String(), stderr.String(), 0, nil
}

func (l *Local) Close() error { return nil }
