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

// Package actor implements the process-local actor runtime: a registry
// from name to mailbox, per-actor single-consumer message processing on a
// shared bounded worker pool, and action dispatch by name.
//
// Each actor's handlers observe a single-writer view of its state: the
// mailbox is FIFO and at most one worker drains it at a time. A second,
// width-1 pool is reserved for database writes so store latency cannot
// consume workflow worker slots.
package actor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tombee/drover/pkg/action"
)

// DefaultWorkers is the default width of the shared user pool.
const DefaultWorkers = 4

// defaultMailbox bounds each actor's FIFO mailbox.
const defaultMailbox = 64

// Actions maps a method name to its handler. Handlers receive the decoded
// argument array and must not panic; a panic is recovered at the dispatch
// boundary and converted to a failed result.
type Actions map[string]func(ctx context.Context, args []string) action.Result

// Config configures a System.
type Config struct {
	// Workers is the user pool width (default 4).
	Workers int

	// MailboxSize bounds each actor's mailbox (default 64).
	MailboxSize int

	// Logger receives runtime diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// System is the named-actor registry. It exclusively owns actor instances
// and their mailboxes; callers hold only names.
type System struct {
	mu     sync.Mutex
	actors map[string]*actorRef

	userPool *pool
	dbPool   *pool

	mailboxSize int
	logger      *slog.Logger

	kindsMu sync.Mutex
	kinds   map[string]func(name string) Actions

	stopOnce sync.Once
}

type envelope struct {
	ctx      context.Context
	method   string
	argsJSON string
	reply    chan action.Result
}

type actorRef struct {
	name    string
	mailbox chan envelope
	acts    Actions

	mu        sync.Mutex
	scheduled bool
}

// Compile-time interface assertion.
var _ action.Dispatcher = (*System)(nil)

// New creates an actor system with a user pool of cfg.Workers and a
// width-1 database pool.
func New(cfg Config) *System {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	mailbox := cfg.MailboxSize
	if mailbox <= 0 {
		mailbox = defaultMailbox
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &System{
		actors:      make(map[string]*actorRef),
		userPool:    newPool(workers, 1024),
		dbPool:      newPool(1, 1024),
		mailboxSize: mailbox,
		logger:      logger,
		kinds:       make(map[string]func(string) Actions),
	}
}

// Register binds a name to an action table. A name resolves to at most
// one actor at any moment; re-registering a live name is an error.
func (s *System) Register(name string, acts Actions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.actors[name]; exists {
		return fmt.Errorf("actor already registered: %s", name)
	}
	s.actors[name] = &actorRef{
		name:    name,
		mailbox: make(chan envelope, s.mailboxSize),
		acts:    acts,
	}
	return nil
}

// Deregister removes an actor. Queued messages are dropped.
func (s *System) Deregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actors, name)
}

// Names returns the registered actor names, sorted.
func (s *System) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.actors))
	for name := range s.actors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tell enqueues a message and returns after enqueue. The result is
// discarded.
func (s *System) Tell(name, method, argsJSON string) error {
	ref := s.lookup(name)
	if ref == nil {
		return fmt.Errorf("unknown actor: %s", name)
	}
	return s.enqueue(ref, envelope{ctx: context.Background(), method: method, argsJSON: argsJSON})
}

// Ask enqueues a message and returns a one-shot channel carrying the
// reply. Dropping the channel discards the reply.
func (s *System) Ask(ctx context.Context, name, method, argsJSON string) <-chan action.Result {
	reply := make(chan action.Result, 1)
	ref := s.lookup(name)
	if ref == nil {
		reply <- action.Failf("Unknown actor: %s", name)
		return reply
	}
	env := envelope{ctx: ctx, method: method, argsJSON: argsJSON, reply: reply}
	if err := s.enqueue(ref, env); err != nil {
		reply <- action.Fail(err.Error())
	}
	return reply
}

// Call invokes an action by name and waits for the reply. This is the
// ergonomic form used by workflow guards and actions; internally an Ask.
func (s *System) Call(ctx context.Context, name, method, argsJSON string) action.Result {
	select {
	case res := <-s.Ask(ctx, name, method, argsJSON):
		return res
	case <-ctx.Done():
		return action.Failf("Error: %v", ctx.Err())
	}
}

// SubmitDB runs a task on the reserved database pool. Used by the
// database accumulator so persistence latency never blocks user workers.
func (s *System) SubmitDB(task func()) bool {
	return s.dbPool.submit(task)
}

// Shutdown stops both pools after allowing current tasks to complete.
// Queued messages are dropped.
func (s *System) Shutdown() {
	s.stopOnce.Do(func() {
		s.userPool.stop()
		s.dbPool.stop()
	})
}

func (s *System) lookup(name string) *actorRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actors[name]
}

// enqueue appends to the actor's FIFO mailbox and schedules a drain if
// none is running. At most one drain task per actor exists at a time,
// which is what gives handlers their single-writer view.
func (s *System) enqueue(ref *actorRef, env envelope) error {
	select {
	case ref.mailbox <- env:
	default:
		return fmt.Errorf("mailbox full: %s", ref.name)
	}

	ref.mu.Lock()
	defer ref.mu.Unlock()
	if ref.scheduled {
		return nil
	}
	ref.scheduled = true
	if !s.userPool.submit(func() { s.drain(ref) }) {
		ref.scheduled = false
		return fmt.Errorf("actor system stopped")
	}
	return nil
}

// drain processes the mailbox until it observes empty under the
// scheduling lock, then unschedules itself.
func (s *System) drain(ref *actorRef) {
	for {
		select {
		case env := <-ref.mailbox:
			res := s.dispatch(ref, env)
			if env.reply != nil {
				env.reply <- res
			}
		default:
			ref.mu.Lock()
			if len(ref.mailbox) > 0 {
				// Raced with an enqueue; keep draining.
				ref.mu.Unlock()
				continue
			}
			ref.scheduled = false
			ref.mu.Unlock()
			return
		}
	}
}

// dispatch routes one message to its handler. Unknown actions and panics
// become failed results; actors never crash the system.
func (s *System) dispatch(ref *actorRef, env envelope) (res action.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("actor panic recovered",
				slog.String("actor", ref.name),
				slog.String("method", env.method),
				slog.Any("panic", rec))
			res = action.Failf("Error: %v", rec)
		}
	}()

	handler, ok := ref.acts[env.method]
	if !ok {
		return action.Failf("Unknown action: %s", env.method)
	}

	args, err := action.ParseArgs(env.argsJSON)
	if err != nil {
		return action.Failf("Error: %v", err)
	}

	ctx := env.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return handler(ctx, args)
}
