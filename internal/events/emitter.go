package events

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Listener is a named handler registered against an event-type pattern.
// Priority is advisory metadata only; dispatch order across listeners is
// not guaranteed.
type Listener struct {
	Name     string
	Priority int
	Handle   func(Event)
	OnError  func(Event, error)
}

type registration struct {
	pattern  string
	listener Listener
}

// Emitter is an in-process publish/subscribe registry mapping event-type
// patterns to listeners. Patterns are matched as follows:
//
//   - "*" matches every event type
//   - a pattern ending in ".*" matches any type sharing its prefix
//     (e.g. "auth.*" matches "auth.login" but not "booking.create")
//   - anything else is an exact match
type Emitter struct {
	mu            sync.RWMutex
	registrations []registration
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// On registers a listener under the given pattern. Registering the same
// (pattern, name) pair twice replaces the earlier registration.
func (e *Emitter) On(pattern string, l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, reg := range e.registrations {
		if reg.pattern == pattern && reg.listener.Name == l.Name {
			e.registrations[i].listener = l
			return
		}
	}
	e.registrations = append(e.registrations, registration{pattern: pattern, listener: l})
}

// Off removes the listener registered under (pattern, name). Removing a
// listener that was never registered is a no-op.
func (e *Emitter) Off(pattern, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, reg := range e.registrations {
		if reg.pattern == pattern && reg.listener.Name == name {
			e.registrations = append(e.registrations[:i], e.registrations[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of registered listeners.
func (e *Emitter) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.registrations)
}

// Emit dispatches the event to every listener whose pattern matches the
// event type. Each listener runs in its own goroutine: a slow or failing
// listener cannot block the caller or starve other listeners. Panics are
// recovered and routed to the listener's OnError callback when present,
// otherwise logged.
func (e *Emitter) Emit(evt Event) {
	e.mu.RLock()
	matched := make([]Listener, 0, len(e.registrations))
	for _, reg := range e.registrations {
		if MatchPattern(reg.pattern, evt.Type) {
			matched = append(matched, reg.listener)
		}
	}
	e.mu.RUnlock()

	for _, l := range matched {
		go dispatch(l, evt)
	}
}

func dispatch(l Listener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("listener panic: %v", r)
			if l.OnError != nil {
				l.OnError(evt, err)
				return
			}
			slog.Error("event listener panicked",
				"listener", l.Name,
				"type", evt.Type,
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()
	l.Handle(evt)
}

// MatchPattern reports whether an event type matches a listener pattern.
func MatchPattern(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(eventType, prefix+".")
	}
	return pattern == eventType
}
