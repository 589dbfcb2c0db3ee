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

import "sync"

// pool is a fixed-width worker pool. Submitted tasks queue on an
// unbounded-ish buffered channel; width caps how many run at once.
// Stop lets in-flight tasks finish and drops anything still queued.
type pool struct {
	tasks chan func()
	quit  chan struct{}
	wg    sync.WaitGroup

	stopOnce sync.Once
}

func newPool(width, backlog int) *pool {
	if width <= 0 {
		width = 1
	}
	if backlog <= 0 {
		backlog = 256
	}
	p := &pool{
		tasks: make(chan func(), backlog),
		quit:  make(chan struct{}),
	}
	p.wg.Add(width)
	for i := 0; i < width; i++ {
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			task()
		case <-p.quit:
			return
		}
	}
}

// submit queues a task. It returns false once the pool is stopping or
// when the backlog is full.
func (p *pool) submit(task func()) bool {
	select {
	case <-p.quit:
		return false
	default:
	}
	select {
	case p.tasks <- task:
		return true
	case <-p.quit:
		return false
	}
}

// stop signals workers to exit after their current task and waits for
// them. Queued tasks are dropped.
func (p *pool) stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
