// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides turn/tool-call persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			response TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'completed',
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tool_calls (
			id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL REFERENCES turns(id) ON DELETE CASCADE,
			tool_name TEXT NOT NULL,
			input_json TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_turns_created_at ON turns(created_at);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_turn_id ON tool_calls(turn_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveTurn stores a completed turn.
func (s *SQLiteStore) SaveTurn(ctx context.Context, turn *Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	if turn.Status == "" {
		turn.Status = TurnStatusCompleted
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, question, response, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.Question, turn.Response, turn.Status, turn.Error, turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving turn: %w", err)
	}
	return nil
}

// SaveToolCall stores a tool invocation belonging to a turn.
func (s *SQLiteStore) SaveToolCall(ctx context.Context, call *ToolCall) error {
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (id, turn_id, tool_name, input_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		call.ID, call.TurnID, call.ToolName, call.InputJSON, call.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving tool call: %w", err)
	}
	return nil
}

// ListTurns returns up to limit turns, newest first.
func (s *SQLiteStore) ListTurns(ctx context.Context, limit int) ([]*Turn, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, response, status, error, created_at
		 FROM turns ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		t := &Turn{}
		if err := rows.Scan(&t.ID, &t.Question, &t.Response, &t.Status, &t.Error, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ListToolCalls returns the tool calls of one turn in invocation order.
func (s *SQLiteStore) ListToolCalls(ctx context.Context, turnID string) ([]*ToolCall, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, turn_id, tool_name, input_json, created_at
		 FROM tool_calls WHERE turn_id = ? ORDER BY created_at ASC, id ASC`, turnID)
	if err != nil {
		return nil, fmt.Errorf("listing tool calls: %w", err)
	}
	defer rows.Close()

	var calls []*ToolCall
	for rows.Next() {
		c := &ToolCall{}
		if err := rows.Scan(&c.ID, &c.TurnID, &c.ToolName, &c.InputJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning tool call: %w", err)
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
