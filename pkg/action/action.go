// Package action defines the universal call contract between the workflow
// interpreter and actors. Every action takes a single JSON-encoded argument
// array and returns a Result; errors never cross the actor boundary as
// panics or Go errors.
package action

import (
	"context"
	"encoding/json"
	"fmt"
)

// Result is the outcome of a single action invocation.
//
// OK reports whether the action succeeded. Value carries the action's
// result string on success, or a human-readable reason on failure.
type Result struct {
	OK    bool   `json:"ok"`
	Value string `json:"value"`
}

// Ok returns a successful Result carrying value.
func Ok(value string) Result {
	return Result{OK: true, Value: value}
}

// Okf returns a successful Result with a formatted value.
func Okf(format string, args ...any) Result {
	return Result{OK: true, Value: fmt.Sprintf(format, args...)}
}

// Fail returns a failed Result carrying reason.
func Fail(reason string) Result {
	return Result{OK: false, Value: reason}
}

// Failf returns a failed Result with a formatted reason.
func Failf(format string, args ...any) Result {
	return Result{OK: false, Value: fmt.Sprintf(format, args...)}
}

// Dispatcher resolves an actor by name and invokes one of its actions.
// The actor system implements this; the interpreter and the node group
// depend only on the interface.
type Dispatcher interface {
	// Call invokes action on the named actor and waits for its reply.
	// Resolution failures (unknown actor, unknown action) are reported
	// as a failed Result, never as an error.
	Call(ctx context.Context, actor, method, argsJSON string) Result
}

// Args encodes the values as a compact JSON array, the uniform argument
// encoding for every action (e.g. `["deploy.yaml"]`).
func Args(values ...string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		// []string marshaling cannot fail; keep the dispatcher total anyway.
		return "[]"
	}
	return string(b)
}

// ParseArgs decodes a JSON argument array produced by Args. A missing or
// empty payload decodes to no arguments.
func ParseArgs(argsJSON string) ([]string, error) {
	if argsJSON == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(argsJSON), &out); err != nil {
		return nil, fmt.Errorf("invalid argument array %q: %w", argsJSON, err)
	}
	return out, nil
}
