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

// Package logservice runs the standalone log process: a TCP endpoint
// that gives other drover processes producer access to one shared log
// database, plus an HTTP side channel for discovery and metrics.
//
// The wire protocol is newline-delimited JSON: one request object per
// line, one response object per line, strictly in order per connection.
package logservice

import (
	"github.com/tombee/drover/internal/logstore"
)

// Port conventions. The TCP endpoint binds inside [PortBase, PortMax];
// the HTTP side channel always sits HTTPOffset below the TCP port.
const (
	PortBase   = 29090
	PortMax    = 29100
	HTTPOffset = 200
)

// Protocol operations.
const (
	opOpenSession   = "open_session"
	opEndSession    = "end_session"
	opAppend        = "append"
	opNodeResult    = "node_result"
	opLatestSession = "latest_session"
)

type request struct {
	Op string `json:"op"`

	Meta      *logstore.SessionMeta `json:"meta,omitempty"`
	SessionID int64                 `json:"session_id,omitempty"`
	Status    string                `json:"status,omitempty"`
	Record    *logstore.Record      `json:"record,omitempty"`
	Result    *logstore.NodeResult  `json:"result,omitempty"`
}

type response struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	SessionID int64  `json:"session_id,omitempty"`
}
