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

package logstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/tombee/drover/pkg/errors"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertion.
var _ Producer = (*Store)(nil)

const (
	// schemaVersion is bumped whenever the DDL below changes shape.
	schemaVersion = 1

	// batchSize is the maximum records drained per write transaction.
	batchSize = 100

	// pollInterval is how long the writer waits on an empty queue before
	// re-checking for shutdown.
	pollInterval = 100 * time.Millisecond

	// drainWait is the spin-sleep increment used while waiting for the
	// queue to empty in EndSession.
	drainWait = 10 * time.Millisecond

	// closeTimeout caps how long Close waits for the writer to exit.
	closeTimeout = 5 * time.Second
)

// Options configures Open.
type Options struct {
	// QueueSize bounds the multi-producer record queue (default 1024).
	QueueSize int
}

// Store is the embedded execution log. The writer goroutine exclusively
// services the write connection; queries run on a second connection and
// are safe to share across readers.
type Store struct {
	path    string
	writeDB *sql.DB
	readDB  *sql.DB

	queue   chan Record
	pending atomic.Int64
	batches atomic.Int64
	stop    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if necessary) the log database at path and starts
// the writer goroutine.
func Open(path string, opts Options) (*Store, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}

	writeDB, err := openConn(path, true)
	if err != nil {
		return nil, &pkgerrors.StoreError{Op: "open", Cause: err}
	}

	if err := migrate(writeDB); err != nil {
		writeDB.Close()
		return nil, &pkgerrors.StoreError{Op: "migrate", Cause: err}
	}

	readDB, err := openConn(path, false)
	if err != nil {
		writeDB.Close()
		return nil, &pkgerrors.StoreError{Op: "open read connection", Cause: err}
	}

	s := &Store{
		path:    path,
		writeDB: writeDB,
		readDB:  readDB,
		queue:   make(chan Record, opts.QueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// QueueDepth returns the number of records waiting for the writer.
func (s *Store) QueueDepth() int { return len(s.queue) }

// BatchesCommitted returns the number of write transactions attempted.
func (s *Store) BatchesCommitted() int64 { return s.batches.Load() }

// openConn opens one sqlite connection pool. The write pool is limited to
// a single connection; SQLite serializes writers anyway.
func openConn(path string, write bool) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if write {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if write {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return db, nil
}

// migrate creates the schema. Forward-compatible reads treat missing
// columns as null, so additive changes only bump schemaVersion.
func migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS schema_info (
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			workflow_name TEXT NOT NULL,
			overlay_name TEXT,
			inventory_name TEXT,
			node_count INTEGER DEFAULT 0,
			status TEXT NOT NULL,
			cwd TEXT,
			git_commit TEXT,
			git_branch TEXT,
			command_line TEXT,
			tool_version TEXT,
			tool_commit TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			node_id TEXT NOT NULL,
			label TEXT,
			action_name TEXT,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			exit_code INTEGER,
			duration_ms INTEGER,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE TABLE IF NOT EXISTS node_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			UNIQUE(session_id, node_id),
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_session ON logs(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_node ON logs(node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_workflow ON sessions(workflow_name)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_info`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO schema_info (version) VALUES (?)`, schemaVersion); err != nil {
			return err
		}
	}
	return nil
}

// OpenSession inserts a session row with status RUNNING and returns its id.
// Ids are AUTOINCREMENT and therefore strictly increasing.
func (s *Store) OpenSession(meta SessionMeta) (int64, error) {
	res, err := s.writeDB.Exec(`
		INSERT INTO sessions (run_id, started_at, workflow_name, overlay_name, inventory_name,
			node_count, status, cwd, git_commit, git_branch, command_line, tool_version, tool_commit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(meta.RunID),
		time.Now().UTC().Format(time.RFC3339Nano),
		meta.WorkflowName, nullString(meta.OverlayName), nullString(meta.InventoryName),
		meta.NodeCount, SessionRunning,
		nullString(meta.Cwd), nullString(meta.GitCommit), nullString(meta.GitBranch),
		nullString(meta.CommandLine), nullString(meta.ToolVersion), nullString(meta.ToolCommit),
	)
	if err != nil {
		return 0, &pkgerrors.StoreError{Op: "open session", Cause: err}
	}
	return res.LastInsertId()
}

// Append enqueues a record for the writer. The timestamp is stamped at
// enqueue time when unset. Append blocks only when the queue is full.
func (s *Store) Append(rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Level == "" {
		rec.Level = LevelInfo
	}
	s.pending.Add(1)
	select {
	case s.queue <- rec:
		return nil
	case <-s.stop:
		s.pending.Add(-1)
		return &pkgerrors.StoreError{Op: "append", Cause: fmt.Errorf("store closed")}
	}
}

// RecordNodeResult inserts or overwrites the per-node verdict. Control
// rows bypass the record queue; the single-connection write pool still
// serializes them with the writer's batches.
func (s *Store) RecordNodeResult(nr NodeResult) error {
	_, err := s.writeDB.Exec(`
		INSERT INTO node_results (session_id, node_id, status, reason)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, node_id) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason`,
		nr.SessionID, nr.NodeID, nr.Status, nullString(nr.Reason),
	)
	if err != nil {
		return &pkgerrors.StoreError{Op: "record node result", Cause: err}
	}
	return nil
}

// EndSession blocks until every queued record has been committed, then
// stamps the session row. Rewriting the same session is permitted; later
// writes win.
func (s *Store) EndSession(id int64, status string) error {
	for s.pending.Load() > 0 {
		time.Sleep(drainWait)
	}
	_, err := s.writeDB.Exec(
		`UPDATE sessions SET ended_at = ?, status = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), status, id,
	)
	if err != nil {
		return &pkgerrors.StoreError{Op: "end session", Cause: err}
	}
	return nil
}

// Close stops the writer (draining what it can within the close timeout)
// and closes both connections.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		select {
		case <-s.done:
		case <-time.After(closeTimeout):
			fmt.Fprintln(os.Stderr, "logstore: writer did not drain within timeout")
		}
		werr := s.writeDB.Close()
		rerr := s.readDB.Close()
		if werr != nil {
			s.closeErr = werr
		} else {
			s.closeErr = rerr
		}
	})
	return s.closeErr
}

// writer is the single consumer of the record queue. Batches of up to
// batchSize records share one transaction; a SQL failure rolls the batch
// back, reports to stderr, and the writer continues.
func (s *Store) writer() {
	defer close(s.done)

	for {
		select {
		case rec := <-s.queue:
			batch := s.drain(rec)
			s.commit(batch)
		case <-s.stop:
			// Final drain: consume whatever is already queued, then exit.
			for {
				select {
				case rec := <-s.queue:
					s.commit(s.drain(rec))
				default:
					return
				}
			}
		case <-time.After(pollInterval):
		}
	}
}

// drain collects up to batchSize records without blocking.
func (s *Store) drain(first Record) []Record {
	batch := make([]Record, 1, batchSize)
	batch[0] = first
	for len(batch) < batchSize {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
	return batch
}

// commit writes one batch in a single transaction.
func (s *Store) commit(batch []Record) {
	defer s.pending.Add(int64(-len(batch)))
	s.batches.Add(1)

	tx, err := s.writeDB.Begin()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logstore: begin batch: %v\n", err)
		return
	}

	stmt, err := tx.Prepare(`
		INSERT INTO logs (session_id, timestamp, node_id, label, action_name, level, message, exit_code, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		fmt.Fprintf(os.Stderr, "logstore: prepare batch: %v\n", err)
		return
	}

	for _, rec := range batch {
		_, err := stmt.Exec(
			rec.SessionID,
			rec.Timestamp.UTC().Format(time.RFC3339Nano),
			rec.NodeID,
			nullString(rec.Label),
			nullString(rec.ActionName),
			string(rec.Level),
			rec.Message,
			nullInt(rec.ExitCode),
			nullInt64(rec.DurationMS),
		)
		if err != nil {
			stmt.Close()
			tx.Rollback()
			fmt.Fprintf(os.Stderr, "logstore: write record: %v\n", err)
			return
		}
	}

	stmt.Close()
	if err := tx.Commit(); err != nil {
		fmt.Fprintf(os.Stderr, "logstore: commit batch: %v\n", err)
	}
}

// Helper functions

// nullString returns nil if string is empty, otherwise the string.
func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
