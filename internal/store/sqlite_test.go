// ABOUTME: Tests for the SQLite transcript store
// ABOUTME: Covers schema creation, turn/tool-call round trips, and ordering

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "shipmate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveTurn_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	turn := &Turn{
		ID:       uuid.New().String(),
		Question: "list servers",
		Response: "You have one server: db1",
	}
	require.NoError(t, s.SaveTurn(ctx, turn))

	turns, err := s.ListTurns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, turn.ID, turns[0].ID)
	assert.Equal(t, "list servers", turns[0].Question)
	assert.Equal(t, TurnStatusCompleted, turns[0].Status)
	assert.False(t, turns[0].CreatedAt.IsZero())
}

func TestSaveTurn_ErrorStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	turn := &Turn{
		ID:       uuid.New().String(),
		Question: "do something",
		Status:   TurnStatusError,
		Error:    "model unavailable",
	}
	require.NoError(t, s.SaveTurn(ctx, turn))

	turns, err := s.ListTurns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, TurnStatusError, turns[0].Status)
	assert.Equal(t, "model unavailable", turns[0].Error)
}

func TestListTurns_NewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveTurn(ctx, &Turn{
			ID:        uuid.New().String(),
			Question:  "q",
			Response:  "r",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	turns, err := s.ListTurns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.True(t, turns[0].CreatedAt.After(turns[1].CreatedAt))
	assert.True(t, turns[1].CreatedAt.After(turns[2].CreatedAt))
}

func TestSaveToolCall_OrderedByInvocation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	turnID := uuid.New().String()
	require.NoError(t, s.SaveTurn(ctx, &Turn{ID: turnID, Question: "q", Response: "r"}))

	base := time.Now().UTC()
	names := []string{"ssh_list", "ssh_exec"}
	for i, name := range names {
		require.NoError(t, s.SaveToolCall(ctx, &ToolCall{
			ID:        uuid.New().String(),
			TurnID:    turnID,
			ToolName:  name,
			InputJSON: `{}`,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	calls, err := s.ListToolCalls(ctx, turnID)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "ssh_list", calls[0].ToolName)
	assert.Equal(t, "ssh_exec", calls[1].ToolName)
}

func TestListToolCalls_UnknownTurn(t *testing.T) {
	s := newTestStore(t)

	calls, err := s.ListToolCalls(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, calls)
}
