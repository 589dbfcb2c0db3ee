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

package logservice

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/tombee/drover/internal/version"
)

// ServerName identifies this implementation in /info responses.
const ServerName = "drover-logservice"

// Info is the /info response shape.
type Info struct {
	Server            string `json:"server"`
	Version           string `json:"version"`
	Port              int    `json:"port"`
	HTTPPort          int    `json:"http_port"`
	DBPath            string `json:"db_path"`
	DBFile            string `json:"db_file"`
	StartedAt         string `json:"started_at"`
	SessionCount      int64  `json:"session_count"`
	ActiveConnections int64  `json:"active_connections"`
	IdleTimeMS        int64  `json:"idle_time_ms"`
}

func (s *Service) handleInfo(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.CountSessions()
	if err != nil {
		sessions = -1
	}

	idle := int64(0)
	if last := s.lastActivity.Load(); last > 0 {
		idle = time.Since(time.Unix(0, last)).Milliseconds()
	}

	info := Info{
		Server:            ServerName,
		Version:           version.Version,
		Port:              s.port,
		HTTPPort:          s.httpPort,
		DBPath:            canonicalPath(s.cfg.DBPath),
		DBFile:            filepath.Base(s.cfg.DBPath),
		StartedAt:         s.startedAt.UTC().Format(time.RFC3339),
		SessionCount:      sessions,
		ActiveConnections: s.connections.Load(),
		IdleTimeMS:        idle,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}
