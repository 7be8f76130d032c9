// ABOUTME: SSH tools exposed to the agent: remote command execution and connection listing
// ABOUTME: Wraps the connection manager; capability failures become error-flagged text results

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/2389/shipmate/internal/sshmgr"
)

// NoConnectionsMessage is the canonical ssh_list text when nothing is connected.
const NoConnectionsMessage = "No active SSH connections. Add and connect a server first."

type sshExecInput struct {
	HostID  string `json:"host_id"`
	Command string `json:"command"`
}

// RegisterSSHTools adds the ssh_exec and ssh_list tools backed by the given
// connection manager.
func RegisterSSHTools(r *Registry, mgr *sshmgr.Manager) error {
	h := &sshHandlers{mgr: mgr}

	sshTools := []*Tool{
		{
			Definition: Definition{
				Name:            "ssh_exec",
				Description:     "Execute a shell command on a connected remote server",
				InputSchemaJSON: `{"type":"object","properties":{"host_id":{"type":"string","description":"Identifier of the connected server"},"command":{"type":"string","description":"Shell command to run"}},"required":["host_id","command"]}`,
			},
			Handler: h.Exec,
		},
		{
			Definition: Definition{
				Name:            "ssh_list",
				Description:     "List all currently connected SSH servers",
				InputSchemaJSON: `{"type":"object","properties":{}}`,
			},
			Handler: h.List,
		},
	}

	for _, t := range sshTools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

type sshHandlers struct {
	mgr *sshmgr.Manager
}

// Exec runs a command on a connected host and formats the exit code and any
// non-empty output into one text block.
func (h *sshHandlers) Exec(ctx context.Context, input json.RawMessage) (string, error) {
	var in sshExecInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if in.HostID == "" || in.Command == "" {
		return "", fmt.Errorf("host_id and command are required")
	}

	result, err := h.mgr.Execute(ctx, in.HostID, in.Command)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Exit Code: %d\n", result.ExitCode)
	if strings.TrimSpace(result.Stdout) != "" {
		b.WriteString("--- STDOUT ---\n")
		b.WriteString(result.Stdout)
	}
	if strings.TrimSpace(result.Stderr) != "" {
		b.WriteString("--- STDERR ---\n")
		b.WriteString(result.Stderr)
	}
	return b.String(), nil
}

// List renders one line per live connection, or the canonical no-connections
// message if there are none.
func (h *sshHandlers) List(ctx context.Context, input json.RawMessage) (string, error) {
	connected := h.mgr.ListConnected()
	if len(connected) == 0 {
		return NoConnectionsMessage, nil
	}

	lines := []string{"Active SSH connections:"}
	for _, host := range connected {
		lines = append(lines, fmt.Sprintf("  - %s: %s@%s:%d", host.ID, host.Username, host.Host, host.Port))
	}
	return strings.Join(lines, "\n"), nil
}
