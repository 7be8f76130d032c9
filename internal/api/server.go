// ABOUTME: HTTP server for the chat and SSH management API
// ABOUTME: Routes requests to the agent bridge, SSH manager, and transcript store

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/2389/shipmate/internal/assets"
	"github.com/2389/shipmate/internal/bridge"
	"github.com/2389/shipmate/internal/sshmgr"
	"github.com/2389/shipmate/internal/store"
)

// Server exposes the web API: chat turns through the session bridge,
// SSH host management through the connection manager, and the embedded
// web console.
type Server struct {
	bridge *bridge.Bridge
	ssh    *sshmgr.Manager
	store  store.Store
	logger *slog.Logger
}

// NewServer creates a Server. The store may be nil, in which case chat
// transcripts are not persisted.
func NewServer(b *bridge.Bridge, ssh *sshmgr.Manager, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		bridge: b,
		ssh:    ssh,
		store:  st,
		logger: logger.With("component", "api"),
	}
}

// Routes builds the ServeMux with all API and static routes registered.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/history", s.handleChatHistory)

	mux.HandleFunc("POST /api/ssh/connect", s.handleConnect)
	mux.HandleFunc("POST /api/ssh/connect/{id}", s.handleConnectByID)
	mux.HandleFunc("POST /api/ssh/disconnect/{id}", s.handleDisconnect)
	mux.HandleFunc("DELETE /api/ssh/config/{id}", s.handleDeleteConfig)
	mux.HandleFunc("GET /api/ssh/list", s.handleList)
	mux.HandleFunc("POST /api/ssh/exec", s.handleExec)

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("/static/", http.StripPrefix("/static/", assets.FileServer()))
	mux.HandleFunc("GET /{$}", s.handleIndex)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := assets.Index()
	if err != nil {
		s.logger.Error("loading index page", "error", err)
		http.Error(w, "index page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response", "error", err)
	}
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
