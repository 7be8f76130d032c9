// ABOUTME: Claude-backed agent session implementing the bridge Runtime interface
// ABOUTME: Streams text deltas, dispatches tool calls through the registry, and keeps session history

package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/2389/shipmate/internal/bridge"
	"github.com/2389/shipmate/internal/tools"
)

// DefaultSystemPrompt frames the session when the config does not override it.
const DefaultSystemPrompt = `You are a remote server management assistant. The user has added SSH server connections through the web UI.

You have the following tools:
- ssh_list: list the currently connected servers
- ssh_exec: execute a command on a specific server (arguments: host_id, command)

Workflow:
1. Use ssh_list first to see which servers are available
2. Then use ssh_exec to run commands on the chosen server

Help the user manage their remote servers safely and efficiently.`

// Options configures a Runtime.
type Options struct {
	Model        string
	APIKey       string // falls back to ANTHROPIC_API_KEY
	SystemPrompt string
	MaxTokens    int
}

// Runtime drives a multi-turn Claude conversation. It implements
// bridge.Runtime; per that contract all methods run on the bridge's worker
// goroutine, so the conversation history needs no locking.
type Runtime struct {
	opts     Options
	registry *tools.Registry
	logger   *slog.Logger

	client   anthropic.Client
	history  []anthropic.MessageParam
	toolDefs []anthropic.ToolUnionParam
}

// NewRuntime creates a Runtime. The session is initialized by Start.
func NewRuntime(opts Options, registry *tools.Registry, logger *slog.Logger) *Runtime {
	if opts.Model == "" {
		opts.Model = "claude-sonnet-4-5"
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	return &Runtime{
		opts:     opts,
		registry: registry,
		logger:   logger.With("component", "claude"),
	}
}

// Start builds the API client and the tool declarations.
func (r *Runtime) Start(ctx context.Context) error {
	apiKey := r.opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("no API key configured (set agent.api_key or ANTHROPIC_API_KEY)")
	}

	toolDefs, err := buildToolParams(r.registry.List())
	if err != nil {
		return fmt.Errorf("building tool declarations: %w", err)
	}

	r.client = anthropic.NewClient(option.WithAPIKey(apiKey))
	r.toolDefs = toolDefs
	r.history = nil

	r.logger.Info("claude session initialized",
		"model", r.opts.Model,
		"tools", len(toolDefs),
	)
	return nil
}

// RunTurn executes one full turn: it streams the assistant response, invokes
// any requested tools, and loops until the model stops asking for tools.
// Emitted events: content fragments as deltas arrive, one tool_use per tool
// call. History only advances when the whole turn succeeds.
func (r *Runtime) RunTurn(ctx context.Context, text string, emit func(*bridge.Event)) error {
	turn := append(cloneHistory(r.history),
		anthropic.NewUserMessage(anthropic.NewTextBlock(text)))

	for {
		message, err := r.streamResponse(ctx, turn, emit)
		if err != nil {
			return err
		}
		turn = append(turn, message.ToParam())

		results := r.dispatchToolCalls(ctx, message, emit)
		if len(results) == 0 {
			r.history = turn
			return nil
		}
		turn = append(turn, anthropic.NewUserMessage(results...))
	}
}

// streamResponse performs one streaming Messages call, emitting content
// events for each text delta, and returns the accumulated message.
func (r *Runtime) streamResponse(ctx context.Context, msgs []anthropic.MessageParam, emit func(*bridge.Event)) (*anthropic.Message, error) {
	stream := r.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.opts.Model),
		MaxTokens: int64(r.opts.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: r.opts.SystemPrompt},
		},
		Messages: msgs,
		Tools:    r.toolDefs,
	})

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulating response: %w", err)
		}

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				emit(&bridge.Event{Kind: bridge.KindContent, Text: delta.Text})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("streaming response: %w", err)
	}

	return &message, nil
}

// dispatchToolCalls invokes every tool_use block in the message synchronously,
// in order, and returns the tool_result blocks for the follow-up request.
// Tool failures come back error-flagged from the registry; they never abort
// the turn.
func (r *Runtime) dispatchToolCalls(ctx context.Context, message *anthropic.Message, emit func(*bridge.Event)) []anthropic.ContentBlockParamUnion {
	var results []anthropic.ContentBlockParamUnion

	for _, block := range message.Content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}

		inputJSON, err := json.Marshal(toolUse.Input)
		if err != nil {
			inputJSON = []byte("{}")
		}

		emit(&bridge.Event{
			Kind:      bridge.KindToolUse,
			ToolName:  toolUse.Name,
			InputJSON: string(inputJSON),
		})

		result := r.registry.Invoke(ctx, toolUse.Name, json.RawMessage(inputJSON))
		r.logger.Debug("tool call completed",
			"tool", toolUse.Name,
			"is_error", result.IsError,
		)

		results = append(results, anthropic.NewToolResultBlock(toolUse.ID, result.Text, result.IsError))
	}

	return results
}

// Close releases the session. The API client holds no persistent connection;
// dropping the history is all the teardown there is.
func (r *Runtime) Close() error {
	r.history = nil
	r.logger.Info("claude session closed")
	return nil
}

// buildToolParams converts registry definitions into API tool declarations.
func buildToolParams(defs []tools.Definition) ([]anthropic.ToolUnionParam, error) {
	params := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if err := json.Unmarshal([]byte(def.InputSchemaJSON), &schema); err != nil {
			return nil, fmt.Errorf("tool %s: invalid input schema: %w", def.Name, err)
		}

		params = append(params, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		})
	}
	return params, nil
}

func cloneHistory(history []anthropic.MessageParam) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, len(history))
	copy(out, history)
	return out
}
