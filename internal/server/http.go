package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/activity/track", s.requireTier(tierStandard, s.handleTrackBatch))
	mux.HandleFunc("GET /v1/activity/track", s.requireTier(tierStandard, s.handleHistory))
	mux.HandleFunc("GET /v1/activity/live", s.requireTier(tierStandard, s.handleLiveStream))
	mux.HandleFunc("POST /v1/activity/live", s.requireTier(tierStandard, s.handleBroadcast))
	mux.HandleFunc("DELETE /v1/activity/live", s.requireTier(tierRoot, s.handleCloseAll))
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return mux
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.gateway.ActiveConnections(),
	})
}

// tier is the privilege level a request authenticated at.
type tier int

const (
	tierNone tier = iota
	tierStandard
	tierRoot
)

// requestTier resolves the Bearer token on a request to a privilege tier.
// With no auth token configured every request is root (development mode).
func (s *Server) requestTier(r *http.Request) tier {
	if s.authToken == "" {
		return tierRoot
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return tierNone
	}
	provided := strings.TrimPrefix(auth, "Bearer ")

	if s.rootToken != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(s.rootToken)) == 1 {
		return tierRoot
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.authToken)) == 1 {
		return tierStandard
	}
	return tierNone
}

// requireTier wraps a handler with a minimum-privilege check: 401 when the
// request carries no valid credentials, 403 when the tier is insufficient.
func (s *Server) requireTier(min tier, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := s.requestTier(r)
		if got == tierNone {
			writeError(w, http.StatusUnauthorized, "missing or invalid credentials")
			return
		}
		if got < min {
			writeError(w, http.StatusForbidden, "insufficient privileges")
			return
		}
		next(w, r)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
