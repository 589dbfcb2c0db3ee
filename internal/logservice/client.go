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
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tombee/drover/internal/logstore"
)

// RemoteStore is a producer backed by a running log service. It
// satisfies logstore.Producer, so a run connects to a shared database
// exactly the way it uses an embedded one.
type RemoteStore struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

var _ logstore.Producer = (*RemoteStore)(nil)

// Dial connects to a log service TCP endpoint, e.g. "127.0.0.1:29090".
func Dial(addr string) (*RemoteStore, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial log service %s: %w", addr, err)
	}
	return &RemoteStore{conn: conn, r: bufio.NewReader(conn)}, nil
}

// roundTrip sends one request and reads its response. The protocol is
// strictly in order per connection, so a single lock suffices.
func (c *RemoteStore) roundTrip(req request) (response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return response{}, err
	}
	if _, err := c.conn.Write(append(payload, '\n')); err != nil {
		return response{}, fmt.Errorf("log service write: %w", err)
	}

	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return response{}, fmt.Errorf("log service read: %w", err)
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return response{}, fmt.Errorf("log service response: %w", err)
	}
	if !resp.OK {
		return resp, fmt.Errorf("log service: %s", resp.Error)
	}
	return resp, nil
}

func (c *RemoteStore) OpenSession(meta logstore.SessionMeta) (int64, error) {
	resp, err := c.roundTrip(request{Op: opOpenSession, Meta: &meta})
	if err != nil {
		return 0, err
	}
	return resp.SessionID, nil
}

func (c *RemoteStore) EndSession(id int64, status string) error {
	_, err := c.roundTrip(request{Op: opEndSession, SessionID: id, Status: status})
	return err
}

func (c *RemoteStore) Append(rec logstore.Record) error {
	_, err := c.roundTrip(request{Op: opAppend, Record: &rec})
	return err
}

func (c *RemoteStore) RecordNodeResult(res logstore.NodeResult) error {
	_, err := c.roundTrip(request{Op: opNodeResult, Result: &res})
	return err
}

// LatestSessionID asks the service for the highest session id.
func (c *RemoteStore) LatestSessionID() (int64, error) {
	resp, err := c.roundTrip(request{Op: opLatestSession})
	if err != nil {
		return 0, err
	}
	return resp.SessionID, nil
}

func (c *RemoteStore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
