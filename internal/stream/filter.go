package stream

import (
	"net/url"
	"strings"

	"github.com/carshare/pulse/internal/events"
	"github.com/carshare/pulse/internal/model"
)

// Filter restricts which published events a connection receives. Each
// dimension is an allow-list; an empty dimension allows everything.
type Filter struct {
	Severities []model.Severity
	Actions    []model.Action
	Resources  []string
	ActorIDs   []string
}

// ParseFilter reads the filter allow-lists from stream query parameters
// (comma-separated severity/actions/resources/userIds values).
func ParseFilter(q url.Values) Filter {
	var f Filter
	for _, s := range splitParam(q.Get("severity")) {
		f.Severities = append(f.Severities, model.Severity(strings.ToUpper(s)))
	}
	for _, a := range splitParam(q.Get("actions")) {
		f.Actions = append(f.Actions, model.Action(strings.ToUpper(a)))
	}
	f.Resources = splitParam(q.Get("resources"))
	f.ActorIDs = splitParam(q.Get("userIds"))
	return f
}

func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MatchesEvent reports whether an event passes the filter. Activity events
// are matched on all dimensions. Other event types carry no action or
// resource; they are matched on an effective severity (system.error counts
// as ERROR, everything else INFO) and pass the remaining dimensions only
// when those are unrestricted.
func (f Filter) MatchesEvent(evt events.Event) bool {
	if payload, ok := evt.Payload.(events.ActivityPayload); ok {
		return f.matchesActivity(payload)
	}

	severity := model.SeverityInfo
	if evt.Type == events.TypeSystemError {
		severity = model.SeverityError
	}
	if !containsString(severitiesToStrings(f.Severities), severity.String()) {
		return false
	}
	return len(f.Actions) == 0 && len(f.Resources) == 0 && len(f.ActorIDs) == 0
}

func (f Filter) matchesActivity(p events.ActivityPayload) bool {
	if !containsString(severitiesToStrings(f.Severities), p.Severity.String()) {
		return false
	}
	if !containsString(actionsToStrings(f.Actions), p.Action.String()) {
		return false
	}
	if !containsString(f.Resources, p.Resource) {
		return false
	}
	if !containsString(f.ActorIDs, p.ActorID) {
		return false
	}
	return true
}

// containsString implements allow-list semantics: an empty list allows any value.
func containsString(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func severitiesToStrings(in []model.Severity) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = s.String()
	}
	return out
}

func actionsToStrings(in []model.Action) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = a.String()
	}
	return out
}
