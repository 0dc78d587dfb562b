package model

import "time"

// ActivityFilter holds criteria for querying or deleting activity records.
type ActivityFilter struct {
	ActorID          string     `json:"actor_id,omitempty"`
	Actions          []Action   `json:"actions,omitempty"`
	Resources        []string   `json:"resources,omitempty"`
	Severities       []Severity `json:"severities,omitempty"`
	ExcludedActorIDs []string   `json:"excluded_actor_ids,omitempty"`

	// Before/After bound the record timestamp (exclusive/inclusive
	// respectively); zero values are ignored.
	Before time.Time `json:"before,omitempty"`
	After  time.Time `json:"after,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}
