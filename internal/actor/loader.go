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

	"github.com/tombee/drover/pkg/action"
)

// LoaderName is the well-known name of the dynamic creation actor.
const LoaderName = "loader"

// RegisterKind binds a kind identifier to a constructor. Actors created
// dynamically at runtime (via the createChild action) name their kind
// rather than carrying an action table.
func (s *System) RegisterKind(kind string, ctor func(name string) Actions) error {
	s.kindsMu.Lock()
	defer s.kindsMu.Unlock()
	if _, exists := s.kinds[kind]; exists {
		return fmt.Errorf("actor kind already registered: %s", kind)
	}
	s.kinds[kind] = ctor
	return nil
}

// Spawn creates and registers an actor of a registered kind.
func (s *System) Spawn(name, kind string) error {
	s.kindsMu.Lock()
	ctor, ok := s.kinds[kind]
	s.kindsMu.Unlock()
	if !ok {
		return fmt.Errorf("unknown actor kind: %s", kind)
	}
	return s.Register(name, ctor(name))
}

// LoaderActions returns the action table for the loader actor, which lets
// running workflows create children by kind:
// createChild(parent, name, kind). The parent is recorded for the result
// only; children are owned by the system, not by each other.
func (s *System) LoaderActions() Actions {
	return Actions{
		"createChild": func(ctx context.Context, args []string) action.Result {
			if len(args) < 3 {
				return action.Fail("Error: createChild requires parent, name, and kind")
			}
			name, kind := args[1], args[2]
			if err := s.Spawn(name, kind); err != nil {
				return action.Failf("Error: %v", err)
			}
			return action.Ok(name)
		},
	}
}
