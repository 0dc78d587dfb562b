package model

import (
	"encoding/json"
	"time"
)

// Severity classifies how serious a tracked activity is.
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// IsValid checks whether the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityDebug, SeverityInfo, SeverityWarn, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Action names the operation an activity records.
type Action string

// Well-known actions. The set is closed: unknown actions are rejected at
// validation time so dashboards and metrics can rely on the enum.
const (
	ActionLogin         Action = "LOGIN"
	ActionLogout        Action = "LOGOUT"
	ActionCreate        Action = "CREATE"
	ActionRead          Action = "READ"
	ActionUpdate        Action = "UPDATE"
	ActionDelete        Action = "DELETE"
	ActionBook          Action = "BOOK"
	ActionCancelBooking Action = "CANCEL_BOOKING"
	ActionUserActivate  Action = "USER_ACTIVATE"
	ActionUserSuspend   Action = "USER_SUSPEND"
	ActionExport        Action = "EXPORT"
	ActionCleanup       Action = "CLEANUP"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// IsValid checks whether the action is a known value.
func (a Action) IsValid() bool {
	switch a {
	case ActionLogin, ActionLogout, ActionCreate, ActionRead, ActionUpdate,
		ActionDelete, ActionBook, ActionCancelBooking, ActionUserActivate,
		ActionUserSuspend, ActionExport, ActionCleanup:
		return true
	}
	return false
}

// Source identifies where a tracked activity originated.
type Source string

const (
	SourceWeb    Source = "web"
	SourceAPI    Source = "api"
	SourceSystem Source = "system"
	SourceAdmin  Source = "admin"
)

// IsValid checks whether the source is a known value.
func (s Source) IsValid() bool {
	switch s {
	case SourceWeb, SourceAPI, SourceSystem, SourceAdmin:
		return true
	}
	return false
}

// Activity is one persisted audit entry. Records are immutable once
// written: they are only ever read, or deleted by the retention service.
type Activity struct {
	ID          string   `json:"id"`
	ActorID     string   `json:"actor_id,omitempty"`
	Action      Action   `json:"action"`
	Resource    string   `json:"resource"`
	ResourceID  string   `json:"resource_id,omitempty"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`
	Source      Source   `json:"source"`

	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`

	RequestData  json.RawMessage `json:"request_data,omitempty"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Tags         []string        `json:"tags,omitempty"`

	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	URL       string    `json:"url,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
