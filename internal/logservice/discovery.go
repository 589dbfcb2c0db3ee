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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// discoverTimeout bounds each /info probe; closed ports fail fast and a
// full scan of the range stays under a second in the common case.
const discoverTimeout = 300 * time.Millisecond

// Discover scans the conventional port range for a running log service
// bound to dbPath. Matching compares canonicalised paths; the first
// match wins. Discovery only reads; it never starts a server. A nil
// Info with nil error means no service matched.
func Discover(ctx context.Context, dbPath string) (*Info, error) {
	want := canonicalPath(dbPath)
	client := &http.Client{Timeout: discoverTimeout}

	for port := PortBase; port <= PortMax; port++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := fetchInfo(ctx, client, port-HTTPOffset)
		if err != nil {
			continue
		}
		if canonicalPath(info.DBPath) == want {
			return info, nil
		}
	}
	return nil, nil
}

func fetchInfo(ctx context.Context, client *http.Client, httpPort int) (*Info, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/info", httpPort)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("info: status %d", resp.StatusCode)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	if info.Server != ServerName {
		return nil, fmt.Errorf("info: unexpected server %q", info.Server)
	}
	return &info, nil
}
