package server

import (
	"encoding/json"
	"net/http"
)

// handleLiveStream handles GET /v1/activity/live. The connection stays open
// until the client disconnects or the gateway shuts it down.
func (s *Server) handleLiveStream(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if err := s.gateway.HandleStream(w, r, userID); err != nil {
		// Only reached before the stream started; after the first write
		// the response is committed and errors are logged by the gateway.
		s.logger.Error("live stream setup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
	}
}

type broadcastInput struct {
	Type        string   `json:"type"`
	Message     string   `json:"message"`
	Data        any      `json:"data,omitempty"`
	TargetUsers []string `json:"targetUsers,omitempty"`
}

// handleBroadcast handles POST /v1/activity/live. An empty targetUsers list
// sends the notification to every open connection.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var in broadcastInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if in.Type == "" {
		in.Type = "notification"
	}

	sent := s.gateway.BroadcastNotification(in.Type, in.Message, in.Data, in.TargetUsers)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"sentTo":           sent,
		"totalConnections": s.gateway.ActiveConnections(),
	})
}

// handleCloseAll handles DELETE /v1/activity/live.
func (s *Server) handleCloseAll(w http.ResponseWriter, r *http.Request) {
	closed := s.gateway.CloseAll()
	s.logger.Info("closed all stream connections", "count", closed)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"closedConnections": closed,
	})
}
