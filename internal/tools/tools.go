// Package tools defines the tools available to the agent and the
// registry that dispatches model-requested tool calls.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TimeoutSentinel is the tool result recorded when execution exceeds
// the registry's time budget. It is persisted as the tool's output so
// the model can react to it; a timeout never aborts the dispatch loop.
const TimeoutSentinel = "Execution timed out"

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 10 * time.Second

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	Handler func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools.
type Registry struct {
	tools   map[string]*Tool
	names   []string
	timeout time.Duration
}

// NewRegistry creates an empty tool registry. timeout bounds each
// invocation; zero uses DefaultTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		tools:   make(map[string]*Tool),
		timeout: timeout,
	}
}

// Register adds a tool to the registry. Re-registering a name replaces
// the previous tool.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.names = append(r.names, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil if not registered.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Schemas returns all tool descriptors in the function-descriptor shape
// advertised to the model, in registration order.
func (r *Registry) Schemas() []map[string]any {
	var result []map[string]any
	for _, name := range r.names {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with the given JSON argument payload.
//
// The invocation is bounded by the registry timeout; exceeding it
// returns TimeoutSentinel with a nil error. Handler and argument
// errors return a non-nil error for the caller to convert into a
// textual tool result. Cancellation of ctx propagates as ctx.Err().
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}

	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)

	// Run the handler in its own goroutine so a handler that ignores
	// its context cannot stall the dispatch loop past the time budget.
	go func() {
		result, err := tool.Handler(tctx, args)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if tctx.Err() == context.DeadlineExceeded {
			return TimeoutSentinel, nil
		}
		return o.result, o.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			// The surrounding request was cancelled, not the budget.
			return "", ctx.Err()
		}
		return TimeoutSentinel, nil
	}
}
