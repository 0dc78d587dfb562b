// Package events provides the in-process event bus used by the activity
// tracker: a typed event envelope, a pattern-matched emitter, and an
// optional external mirror publisher (NATS).
package events

import (
	"context"
	"time"

	"github.com/carshare/pulse/internal/model"
)

// Event type constants. Types are dot-namespaced strings; the segment before
// the first dot is the namespace.
const (
	TypeUserActivity   = "user.activity"
	TypeSystemActivity = "system.activity"
	TypeSystemError    = "system.error"
	TypeSystemCleanup  = "system.cleanup"
	TypeSystemMetrics  = "system.metrics"
)

// Event is the ephemeral envelope published after an activity record is
// written. It is never persisted; the activity record is the durable
// counterpart.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Payload       any       `json:"payload,omitempty"`
}

// ActivityPayload is the payload carried by user.activity and
// system.activity events.
type ActivityPayload struct {
	ActivityID  string         `json:"activity_id"`
	ActorID     string         `json:"actor_id,omitempty"`
	Action      model.Action   `json:"action"`
	Resource    string         `json:"resource"`
	ResourceID  string         `json:"resource_id,omitempty"`
	Description string         `json:"description,omitempty"`
	Severity    model.Severity `json:"severity"`
	Tags        []string       `json:"tags,omitempty"`
}

// ErrorPayload is the payload carried by system.error events.
type ErrorPayload struct {
	Message  string `json:"message"`
	Origin   string `json:"origin,omitempty"`
	Resource string `json:"resource,omitempty"`
}

// CleanupPayload is the payload carried by system.cleanup events.
type CleanupPayload struct {
	Policy   string `json:"policy,omitempty"`
	Deleted  int64  `json:"deleted"`
	Archived int64  `json:"archived"`
	DryRun   bool   `json:"dry_run"`
}

// Publisher is the interface for mirroring events to an external bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
