// ABOUTME: Chat endpoints: submit a query to the agent and browse past turns
// ABOUTME: Aggregates bridge events into a response body and persists transcripts

package api

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/2389/shipmate/internal/bridge"
	"github.com/2389/shipmate/internal/store"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// handleChat feeds the message to the session bridge and drains the event
// stream until end-of-stream, accumulating content fragments into one body.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	events, err := s.bridge.Query(r.Context(), req.Message)
	if err != nil {
		s.logger.Error("submitting query", "error", err)
		sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var (
		response  strings.Builder
		toolCalls []*store.ToolCall
		turnErr   string
	)
	turnID := uuid.New().String()
	for ev := range events {
		switch ev.Kind {
		case bridge.KindContent:
			response.WriteString(ev.Text)
		case bridge.KindToolUse:
			s.logger.Info("tool invoked", "tool", ev.ToolName)
			toolCalls = append(toolCalls, &store.ToolCall{
				ID:        uuid.New().String(),
				TurnID:    turnID,
				ToolName:  ev.ToolName,
				InputJSON: ev.InputJSON,
			})
		case bridge.KindError:
			turnErr = ev.Err
		}
	}

	if turnErr != "" {
		s.persistTurn(r.Context(), &store.Turn{
			ID:       turnID,
			Question: req.Message,
			Response: response.String(),
			Status:   store.TurnStatusError,
			Error:    turnErr,
		}, toolCalls)
		sendJSONError(w, http.StatusInternalServerError, "agent error: "+turnErr)
		return
	}

	s.persistTurn(r.Context(), &store.Turn{
		ID:       turnID,
		Question: req.Message,
		Response: response.String(),
	}, toolCalls)
	writeJSON(w, http.StatusOK, chatResponse{Response: response.String()})
}

// persistTurn saves the transcript best-effort; a storage failure is logged
// but never surfaces to the chat caller.
func (s *Server) persistTurn(ctx context.Context, turn *store.Turn, calls []*store.ToolCall) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveTurn(ctx, turn); err != nil {
		s.logger.Warn("saving turn", "turn_id", turn.ID, "error", err)
		return
	}
	for _, call := range calls {
		if err := s.store.SaveToolCall(ctx, call); err != nil {
			s.logger.Warn("saving tool call", "turn_id", turn.ID, "tool", call.ToolName, "error", err)
		}
	}
}

type historyTurn struct {
	ID        string            `json:"id"`
	Question  string            `json:"question"`
	Response  string            `json:"response"`
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	CreatedAt string            `json:"created_at"`
	ToolCalls []historyToolCall `json:"tool_calls,omitempty"`
}

type historyToolCall struct {
	ToolName string `json:"tool_name"`
	Input    string `json:"input"`
}

// handleChatHistory lists recent turns, newest first. With ?format=html the
// assistant responses are rendered from markdown into a standalone page.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		sendJSONError(w, http.StatusNotFound, "transcript storage is disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	turns, err := s.store.ListTurns(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing turns", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	out := make([]historyTurn, 0, len(turns))
	for _, t := range turns {
		ht := historyTurn{
			ID:        t.ID,
			Question:  t.Question,
			Response:  t.Response,
			Status:    t.Status,
			Error:     t.Error,
			CreatedAt: t.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		calls, err := s.store.ListToolCalls(r.Context(), t.ID)
		if err != nil {
			s.logger.Warn("listing tool calls", "turn_id", t.ID, "error", err)
		}
		for _, c := range calls {
			ht.ToolCalls = append(ht.ToolCalls, historyToolCall{ToolName: c.ToolName, Input: c.InputJSON})
		}
		out = append(out, ht)
	}

	if r.URL.Query().Get("format") == "html" {
		s.renderHistoryHTML(w, out)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": out})
}

func (s *Server) renderHistoryHTML(w http.ResponseWriter, turns []historyTurn) {
	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>Chat history</title></head><body>\n")
	page.WriteString("<h1>Chat history</h1>\n")
	for _, t := range turns {
		fmt.Fprintf(&page, "<section><p><strong>%s</strong> &mdash; %s</p>\n",
			html.EscapeString(t.CreatedAt), html.EscapeString(t.Status))
		fmt.Fprintf(&page, "<blockquote>%s</blockquote>\n", html.EscapeString(t.Question))
		if t.Error != "" {
			fmt.Fprintf(&page, "<p><em>%s</em></p>\n", html.EscapeString(t.Error))
		}
		var rendered bytes.Buffer
		if err := goldmark.Convert([]byte(t.Response), &rendered); err != nil {
			s.logger.Warn("rendering response markdown", "turn_id", t.ID, "error", err)
			fmt.Fprintf(&page, "<pre>%s</pre>\n", html.EscapeString(t.Response))
		} else {
			page.Write(rendered.Bytes())
		}
		page.WriteString("</section><hr>\n")
	}
	page.WriteString("</body></html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page.Bytes())
}
