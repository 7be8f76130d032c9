// ABOUTME: Store interface and data types for chat transcript persistence
// ABOUTME: Defines Turn, ToolCall and the Store interface backed by SQLite

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Turn status constants
const (
	TurnStatusCompleted = "completed"
	TurnStatusError     = "error"
)

// Turn records one completed chat exchange: the user's question and the
// aggregated assistant response (or the failure that ended the turn).
type Turn struct {
	ID        string
	Question  string
	Response  string
	Status    string // "completed" or "error"
	Error     string // failure message when Status == "error"
	CreatedAt time.Time
}

// ToolCall records one tool invocation made during a turn.
type ToolCall struct {
	ID        string
	TurnID    string
	ToolName  string
	InputJSON string
	CreatedAt time.Time
}

// Store persists chat transcripts.
type Store interface {
	// SaveTurn stores a completed turn.
	SaveTurn(ctx context.Context, turn *Turn) error

	// SaveToolCall stores a tool invocation belonging to a turn.
	SaveToolCall(ctx context.Context, call *ToolCall) error

	// ListTurns returns up to limit turns, newest first.
	ListTurns(ctx context.Context, limit int) ([]*Turn, error)

	// ListToolCalls returns the tool calls of one turn in invocation order.
	ListToolCalls(ctx context.Context, turnID string) ([]*ToolCall, error)

	// Close releases the underlying database.
	Close() error
}
