// ABOUTME: SSH management endpoints: connect, disconnect, delete, list, exec
// ABOUTME: Thin pass-throughs to the connection manager with no core logic

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/2389/shipmate/internal/sshmgr"
)

type connectRequest struct {
	HostID   string `json:"host_id"`
	Host     string `json:"host"`
	Username string `json:"username"`
	Password string `json:"password"`
	Port     int    `json:"port"`
}

type execRequest struct {
	HostID  string `json:"host_id"`
	Command string `json:"command"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.HostID == "" || req.Host == "" || req.Username == "" {
		sendJSONError(w, http.StatusBadRequest, "host_id, host, and username are required")
		return
	}

	msg, err := s.ssh.Connect(req.HostID, req.Host, req.Username, req.Password, req.Port)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleConnectByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msg, err := s.ssh.ConnectByID(id)
	if err != nil {
		if errors.Is(err, sshmgr.ErrNotFound) {
			sendJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	msg := s.ssh.Disconnect(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	msg := s.ssh.DeleteConfig(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"servers": s.ssh.ListAll()})
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if err := decodeJSON(r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.HostID == "" || strings.TrimSpace(req.Command) == "" {
		sendJSONError(w, http.StatusBadRequest, "host_id and command are required")
		return
	}

	result, err := s.ssh.Execute(r.Context(), req.HostID, req.Command)
	if err != nil {
		if errors.Is(err, sshmgr.ErrNotConnected) {
			sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": result})
}
