// Package server exposes the activity service over HTTP: batch ingestion,
// history reads, and the admin live stream.
package server

import (
	"log/slog"

	"github.com/carshare/pulse/internal/events"
	"github.com/carshare/pulse/internal/store"
	"github.com/carshare/pulse/internal/stream"
	"github.com/carshare/pulse/internal/tracker"
)

// Server holds the handler dependencies. Auth tokens come in two tiers:
// authToken gates the regular API, rootToken gates destructive admin
// operations. An empty authToken disables auth entirely (development mode).
type Server struct {
	store     store.Store
	tracker   *tracker.Tracker
	emitter   *events.Emitter
	gateway   *stream.Gateway
	logger    *slog.Logger
	authToken string
	rootToken string
}

// New returns a Server wired to the given components.
func New(s store.Store, t *tracker.Tracker, e *events.Emitter, g *stream.Gateway, logger *slog.Logger, authToken, rootToken string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     s,
		tracker:   t,
		emitter:   e,
		gateway:   g,
		logger:    logger,
		authToken: authToken,
		rootToken: rootToken,
	}
}
