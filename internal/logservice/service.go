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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/drover/internal/log"
	"github.com/tombee/drover/internal/logstore"
)

// Config configures a Service.
type Config struct {
	// DBPath is the database this service owns the writer for.
	DBPath string

	// Port pins the TCP endpoint. Zero scans [PortBase, PortMax] for a
	// free port.
	Port int

	Logger *slog.Logger
}

// Service owns one LogStore writer and serves it to other processes.
type Service struct {
	cfg    Config
	logger *slog.Logger

	store *logstore.Store

	ln       net.Listener
	httpSrv  *http.Server
	port     int
	httpPort int

	startedAt    time.Time
	lastActivity atomic.Int64
	connections  atomic.Int64

	metrics *metrics

	wg      sync.WaitGroup
	closing atomic.Bool
}

// New creates a service; Start binds it.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithComponent(log.New(log.FromEnv()), "logservice")
	}
	return &Service{cfg: cfg, logger: logger, metrics: newMetrics()}
}

// Start opens the database and binds the TCP and HTTP endpoints.
func (s *Service) Start() error {
	store, err := logstore.Open(s.cfg.DBPath, logstore.Options{})
	if err != nil {
		return err
	}
	s.store = store
	s.metrics.observeStore(store)
	s.startedAt = time.Now()
	s.touch()

	if err := s.listen(); err != nil {
		store.Close()
		return err
	}

	s.wg.Add(1)
	go s.acceptLoop()

	mux := http.NewServeMux()
	mux.HandleFunc("/info", s.handleInfo)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.httpPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	httpLn, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		s.ln.Close()
		store.Close()
		return fmt.Errorf("bind http port %d: %w", s.httpPort, err)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server stopped", log.Error(err))
		}
	}()

	s.logger.Info("log service started",
		slog.Int("port", s.port),
		slog.Int("http_port", s.httpPort),
		slog.String("db_path", s.cfg.DBPath))
	return nil
}

// listen binds the TCP endpoint, scanning the conventional range when no
// port is pinned.
func (s *Service) listen() error {
	candidates := []int{s.cfg.Port}
	if s.cfg.Port == 0 {
		candidates = candidates[:0]
		for p := PortBase; p <= PortMax; p++ {
			candidates = append(candidates, p)
		}
	}
	var lastErr error
	for _, port := range candidates {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			lastErr = err
			continue
		}
		s.ln = ln
		s.port = port
		s.httpPort = port - HTTPOffset
		return nil
	}
	return fmt.Errorf("no free port in %d-%d: %w", PortBase, PortMax, lastErr)
}

// Port returns the bound TCP port.
func (s *Service) Port() int { return s.port }

// HTTPPort returns the bound HTTP port.
func (s *Service) HTTPPort() int { return s.httpPort }

func (s *Service) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return
			}
			s.logger.Error("accept failed", log.Error(err))
			return
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Service) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	s.connections.Add(1)
	s.metrics.connections.Inc()
	defer func() {
		s.connections.Add(-1)
		s.metrics.connections.Dec()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			s.metrics.requestErrors.Inc()
			enc.Encode(response{OK: false, Error: fmt.Sprintf("bad request: %v", err)})
			continue
		}
		resp := s.apply(req)
		if !resp.OK {
			s.metrics.requestErrors.Inc()
		}
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

// apply executes one request against the store. All writes funnel into
// the store's single writer, so the batching contract is identical to
// embedded use.
func (s *Service) apply(req request) response {
	switch req.Op {
	case opOpenSession:
		if req.Meta == nil {
			return response{Error: "open_session requires meta"}
		}
		id, err := s.store.OpenSession(*req.Meta)
		if err != nil {
			return response{Error: err.Error()}
		}
		s.touch()
		s.metrics.sessionsTotal.Inc()
		return response{OK: true, SessionID: id}

	case opEndSession:
		if err := s.store.EndSession(req.SessionID, req.Status); err != nil {
			return response{Error: err.Error()}
		}
		s.touch()
		return response{OK: true}

	case opAppend:
		if req.Record == nil {
			return response{Error: "append requires record"}
		}
		if err := s.store.Append(*req.Record); err != nil {
			return response{Error: err.Error()}
		}
		s.touch()
		s.metrics.recordsTotal.Inc()
		return response{OK: true}

	case opNodeResult:
		if req.Result == nil {
			return response{Error: "node_result requires result"}
		}
		if err := s.store.RecordNodeResult(*req.Result); err != nil {
			return response{Error: err.Error()}
		}
		s.touch()
		s.metrics.resultsTotal.Inc()
		return response{OK: true}

	case opLatestSession:
		id, err := s.store.LatestSessionID()
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true, SessionID: id}

	default:
		return response{Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func (s *Service) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// Stop shuts down in dependency order: HTTP first so discovery stops
// finding us, then the TCP endpoint, then the writer drains and the
// database closes.
func (s *Service) Stop(ctx context.Context) error {
	s.closing.Store(true)

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown", log.Error(err))
		}
	}
	if s.ln != nil {
		s.ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Error("connections did not drain", log.Error(ctx.Err()))
	}

	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// canonicalPath normalizes a database path for discovery comparison.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
