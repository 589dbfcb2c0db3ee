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

package nodegroup

import (
	"context"
	"strings"

	"github.com/tombee/drover/internal/actor"
	"github.com/tombee/drover/internal/inventory"
	"github.com/tombee/drover/internal/output"
	"github.com/tombee/drover/internal/remote"
	"github.com/tombee/drover/pkg/action"
)

// ActorPrefix prepends every node actor's name.
const ActorPrefix = "node-"

// nodeActions builds the action table for one node actor. The run action
// executes a command on the node's shell; streams go to the multiplexer,
// a non-zero exit fails the action with the conventional exit-status
// message so downstream records can extract the code.
func nodeActions(host inventory.Host, shell remote.Shell, mux *output.Multiplexer) actor.Actions {
	source := ActorPrefix + host.Hostname
	return actor.Actions{
		"run": func(ctx context.Context, args []string) action.Result {
			if len(args) < 1 || args[0] == "" {
				return action.Fail("Error: run requires a command")
			}
			cmd := strings.Join(args, " ")

			stdout, stderr, exit, err := shell.Run(ctx, cmd)
			if stdout != "" {
				mux.Add(source, output.KindStdout, stdout)
			}
			if stderr != "" {
				mux.Add(source, output.KindStderr, stderr)
			}
			if err != nil {
				return action.Failf("Error: %v", err)
			}
			if exit != 0 {
				return action.Failf("command failed: exit status %d", exit)
			}
			return action.Ok(strings.TrimRight(stdout, "\n"))
		},
		"hostname": func(ctx context.Context, args []string) action.Result {
			return action.Ok(host.Hostname)
		},
	}
}

// defaultShellFactory connects to the host: loopback names run locally,
// everything else goes over SSH.
func defaultShellFactory(host inventory.Host, password string) (remote.Shell, error) {
	switch host.Hostname {
	case "localhost", "127.0.0.1", "::1":
		return remote.NewLocal(), nil
	}
	pw := host.Password
	if pw == "" {
		pw = password
	}
	return remote.DialSSH(remote.SSHConfig{
		Host:     host.Hostname,
		Port:     host.Port,
		User:     host.User,
		Password: pw,
	})
}
