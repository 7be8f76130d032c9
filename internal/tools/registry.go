// ABOUTME: Thread-safe registry of tools the agent session may invoke mid-turn
// ABOUTME: Invoke never raises past this boundary; every failure becomes an error-flagged result

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrToolCollision indicates a tool name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// Definition describes a tool to the agent runtime.
type Definition struct {
	Name            string
	Description     string
	InputSchemaJSON string
}

// Handler executes a tool call. The returned string is the text result shown
// to the agent; an error marks the result as a tool-level failure.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Result is the outcome of one tool invocation. IsError results are still
// delivered to the agent as text so it can incorporate the failure into its
// reasoning; they are never protocol failures.
type Result struct {
	Text    string
	IsError bool
}

// Registry holds the tools exposed to the agent session.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool. Returns ErrToolCollision if the name is taken.
func (r *Registry) Register(tool *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Definition.Name
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolCollision, name)
	}
	r.tools[name] = tool
	return nil
}

// List returns all tool definitions, sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Invoke runs the named tool synchronously. It never returns an error:
// unknown tools, handler failures, and handler panics all come back as
// error-flagged results.
func (r *Registry) Invoke(ctx context.Context, name string, input json.RawMessage) *Result {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return &Result{Text: fmt.Sprintf("unknown tool: %s", name), IsError: true}
	}

	text, err := r.safeInvoke(ctx, tool, input)
	if err != nil {
		r.logger.Warn("tool invocation failed", "tool", name, "error", err)
		return &Result{Text: fmt.Sprintf("Error: %s", err), IsError: true}
	}

	r.logger.Debug("tool invoked", "tool", name, "result_bytes", len(text))
	return &Result{Text: text}
}

func (r *Registry) safeInvoke(ctx context.Context, tool *Tool, input json.RawMessage) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool panicked: %v", rec)
		}
	}()
	return tool.Handler(ctx, input)
}
