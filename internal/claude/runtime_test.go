// ABOUTME: Tests for Claude runtime setup: option defaults, start validation, tool declarations
// ABOUTME: Streaming paths are exercised against the bridge with a fake runtime, not a live API

package claude

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/shipmate/internal/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRuntime_Defaults(t *testing.T) {
	r := NewRuntime(Options{}, tools.NewRegistry(testLogger()), testLogger())

	assert.Equal(t, "claude-sonnet-4-5", r.opts.Model)
	assert.Equal(t, 4096, r.opts.MaxTokens)
	assert.Equal(t, DefaultSystemPrompt, r.opts.SystemPrompt)
}

func TestStart_NoAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	r := NewRuntime(Options{}, tools.NewRegistry(testLogger()), testLogger())
	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestStart_BuildsToolDeclarations(t *testing.T) {
	registry := tools.NewRegistry(testLogger())
	require.NoError(t, registry.Register(&tools.Tool{
		Definition: tools.Definition{
			Name:            "ssh_exec",
			Description:     "Execute a shell command on a connected remote server",
			InputSchemaJSON: `{"type":"object","properties":{"host_id":{"type":"string"},"command":{"type":"string"}},"required":["host_id","command"]}`,
		},
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) { return "", nil },
	}))

	r := NewRuntime(Options{APIKey: "sk-test"}, registry, testLogger())
	require.NoError(t, r.Start(context.Background()))

	require.Len(t, r.toolDefs, 1)
	tool := r.toolDefs[0].OfTool
	require.NotNil(t, tool)
	assert.Equal(t, "ssh_exec", tool.Name)
	assert.ElementsMatch(t, []string{"host_id", "command"}, tool.InputSchema.Required)
	assert.Contains(t, tool.InputSchema.Properties, "host_id")
}

func TestBuildToolParams_InvalidSchema(t *testing.T) {
	_, err := buildToolParams([]tools.Definition{
		{Name: "broken", InputSchemaJSON: `{not json`},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestStart_ResetsHistory(t *testing.T) {
	r := NewRuntime(Options{APIKey: "sk-test"}, tools.NewRegistry(testLogger()), testLogger())
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Close())
	assert.Nil(t, r.history)
}
