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

package actor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/drover/pkg/action"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	sys := New(Config{Workers: 4})
	t.Cleanup(sys.Shutdown)
	return sys
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	sys := newTestSystem(t)

	require.NoError(t, sys.Register("counter", Actions{}))
	err := sys.Register("counter", Actions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	// Deregistering frees the name for reuse.
	sys.Deregister("counter")
	require.NoError(t, sys.Register("counter", Actions{}))
}

func TestCallRoutesToHandler(t *testing.T) {
	sys := newTestSystem(t)

	require.NoError(t, sys.Register("echo", Actions{
		"say": func(ctx context.Context, args []string) action.Result {
			return action.Ok(args[0])
		},
	}))

	res := sys.Call(context.Background(), "echo", "say", action.Args("hello"))
	assert.True(t, res.OK)
	assert.Equal(t, "hello", res.Value)
}

func TestCallUnknownActor(t *testing.T) {
	sys := newTestSystem(t)

	res := sys.Call(context.Background(), "ghost", "anything", "[]")
	assert.False(t, res.OK)
	assert.Equal(t, "Unknown actor: ghost", res.Value)
}

func TestCallUnknownAction(t *testing.T) {
	sys := newTestSystem(t)
	require.NoError(t, sys.Register("echo", Actions{}))

	res := sys.Call(context.Background(), "echo", "missing", "[]")
	assert.False(t, res.OK)
	assert.Equal(t, "Unknown action: missing", res.Value)
}

func TestPanicBecomesFailedResult(t *testing.T) {
	sys := newTestSystem(t)
	require.NoError(t, sys.Register("faulty", Actions{
		"boom": func(ctx context.Context, args []string) action.Result {
			panic("kaput")
		},
		"ping": func(ctx context.Context, args []string) action.Result {
			return action.Ok("pong")
		},
	}))

	res := sys.Call(context.Background(), "faulty", "boom", "[]")
	assert.False(t, res.OK)
	assert.Equal(t, "Error: kaput", res.Value)

	// The actor keeps serving after a panic.
	res = sys.Call(context.Background(), "faulty", "ping", "[]")
	assert.True(t, res.OK)
	assert.Equal(t, "pong", res.Value)
}

func TestMessagesProcessedInOrder(t *testing.T) {
	sys := newTestSystem(t)

	var mu sync.Mutex
	var got []string
	require.NoError(t, sys.Register("collector", Actions{
		"add": func(ctx context.Context, args []string) action.Result {
			mu.Lock()
			got = append(got, args[0])
			mu.Unlock()
			return action.Ok("")
		},
	}))

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, sys.Tell("collector", "add", action.Args(fmt.Sprintf("%03d", i))))
	}
	// A final Ask flushes the mailbox: FIFO ordering means everything
	// told before it has been handled once it answers.
	res := sys.Call(context.Background(), "collector", "add", action.Args("end"))
	require.True(t, res.OK)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, n+1)
	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("%03d", i), got[i])
	}
}

func TestSingleConsumerPerActor(t *testing.T) {
	sys := New(Config{Workers: 4})
	t.Cleanup(sys.Shutdown)

	var active, maxActive int
	var mu sync.Mutex
	require.NoError(t, sys.Register("serial", Actions{
		"work": func(ctx context.Context, args []string) action.Result {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return action.Ok("")
		},
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-sys.Ask(context.Background(), "serial", "work", "[]")
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxActive, "one actor must never run two handlers at once")
}

func TestDistinctActorsRunConcurrently(t *testing.T) {
	sys := New(Config{Workers: 4})
	t.Cleanup(sys.Shutdown)

	gate := make(chan struct{})
	for _, name := range []string{"a", "b"} {
		require.NoError(t, sys.Register(name, Actions{
			"wait": func(ctx context.Context, args []string) action.Result {
				gate <- struct{}{}
				return action.Ok("")
			},
		}))
	}

	ra := sys.Ask(context.Background(), "a", "wait", "[]")
	rb := sys.Ask(context.Background(), "b", "wait", "[]")

	// Both handlers must be in flight at the same time for the two gate
	// sends to pair with the two receives below.
	for i := 0; i < 2; i++ {
		select {
		case <-gate:
		case <-time.After(2 * time.Second):
			t.Fatal("actors did not run concurrently")
		}
	}
	assert.True(t, (<-ra).OK)
	assert.True(t, (<-rb).OK)
}

func TestCallHonorsContextCancellation(t *testing.T) {
	sys := New(Config{Workers: 1})
	t.Cleanup(sys.Shutdown)

	release := make(chan struct{})
	require.NoError(t, sys.Register("slow", Actions{
		"block": func(ctx context.Context, args []string) action.Result {
			<-release
			return action.Ok("")
		},
	}))
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := sys.Call(ctx, "slow", "block", "[]")
	assert.False(t, res.OK)
	assert.Contains(t, res.Value, "context deadline exceeded")
}

func TestSpawnByKind(t *testing.T) {
	sys := newTestSystem(t)

	require.NoError(t, sys.RegisterKind("greeter", func(name string) Actions {
		return Actions{
			"greet": func(ctx context.Context, args []string) action.Result {
				return action.Okf("hi from %s", name)
			},
		}
	}))
	require.NoError(t, sys.Register("loader", sys.LoaderActions()))

	res := sys.Call(context.Background(), "loader", "createChild", action.Args("loader", "g1", "greeter"))
	require.True(t, res.OK, res.Value)

	res = sys.Call(context.Background(), "g1", "greet", "[]")
	assert.True(t, res.OK)
	assert.Equal(t, "hi from g1", res.Value)

	res = sys.Call(context.Background(), "loader", "createChild", action.Args("loader", "g2", "nope"))
	assert.False(t, res.OK)
	assert.Contains(t, res.Value, "unknown actor kind")
}

func TestSubmitDBSerializes(t *testing.T) {
	sys := newTestSystem(t)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		require.True(t, sys.SubmitDB(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	wg.Wait()

	// Width-1 pool drains its queue in submission order.
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestShutdownStopsAcceptingWork(t *testing.T) {
	sys := New(Config{Workers: 2})
	require.NoError(t, sys.Register("echo", Actions{}))
	sys.Shutdown()

	assert.False(t, sys.SubmitDB(func() {}))
	res := <-sys.Ask(context.Background(), "echo", "anything", "[]")
	assert.False(t, res.OK)
}
