package events

import (
	"testing"
	"time"
)

func TestMatchPattern(t *testing.T) {
	for _, tc := range []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"*", "user.activity", true},
		{"*", "system.error", true},
		{"user.*", "user.activity", true},
		{"user.*", "system.activity", false},
		{"user.*", "user", false},
		{"system.*", "system.cleanup", true},
		{"user.activity", "user.activity", true},
		{"user.activity", "user.activity.extra", false},
		{"user.activity", "system.error", false},
	} {
		if got := MatchPattern(tc.pattern, tc.eventType); got != tc.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", tc.pattern, tc.eventType, got, tc.want)
		}
	}
}

func TestEmitter_EmitDispatchesToMatching(t *testing.T) {
	e := NewEmitter()
	got := make(chan Event, 2)

	e.On("user.*", Listener{
		Name:   "user-listener",
		Handle: func(evt Event) { got <- evt },
	})
	e.On("system.*", Listener{
		Name:   "system-listener",
		Handle: func(evt Event) { t.Error("system listener should not fire") },
	})

	e.Emit(Event{ID: "evt-1", Type: TypeUserActivity})

	select {
	case evt := <-got:
		if evt.ID != "evt-1" {
			t.Fatalf("expected id=evt-1, got %q", evt.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestEmitter_WildcardReceivesEverything(t *testing.T) {
	e := NewEmitter()
	got := make(chan string, 3)

	e.On("*", Listener{
		Name:   "all",
		Handle: func(evt Event) { got <- evt.Type },
	})

	for _, typ := range []string{TypeUserActivity, TypeSystemError, TypeSystemCleanup} {
		e.Emit(Event{Type: typ})
	}

	seen := map[string]bool{}
	for range 3 {
		select {
		case typ := <-got:
			seen[typ] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct types, got %v", seen)
	}
}

func TestEmitter_OnReplacesSamePatternAndName(t *testing.T) {
	e := NewEmitter()
	got := make(chan string, 2)

	e.On("*", Listener{Name: "dup", Handle: func(Event) { got <- "first" }})
	e.On("*", Listener{Name: "dup", Handle: func(Event) { got <- "second" }})

	if n := e.ListenerCount(); n != 1 {
		t.Fatalf("expected 1 registration after replace, got %d", n)
	}

	e.Emit(Event{Type: TypeUserActivity})

	select {
	case v := <-got:
		if v != "second" {
			t.Fatalf("expected replacement handler to fire, got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestEmitter_Off(t *testing.T) {
	e := NewEmitter()
	e.On("user.*", Listener{Name: "a", Handle: func(Event) {}})
	e.On("user.*", Listener{Name: "b", Handle: func(Event) { t.Error("removed listener fired") }})

	e.Off("user.*", "b")
	if n := e.ListenerCount(); n != 1 {
		t.Fatalf("expected 1 registration after Off, got %d", n)
	}

	// Removing an unknown listener is a no-op.
	e.Off("user.*", "missing")
	e.Off("other.*", "a")
	if n := e.ListenerCount(); n != 1 {
		t.Fatalf("expected 1 registration, got %d", n)
	}

	e.Emit(Event{Type: TypeUserActivity})
	time.Sleep(50 * time.Millisecond)
}

func TestEmitter_PanicRoutedToOnError(t *testing.T) {
	e := NewEmitter()
	errCh := make(chan error, 1)

	e.On("*", Listener{
		Name:    "panicky",
		Handle:  func(Event) { panic("boom") },
		OnError: func(_ Event, err error) { errCh <- err },
	})

	e.Emit(Event{Type: TypeSystemError})

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected non-nil error from panic")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnError")
	}
}

func TestEmitter_PanicWithoutOnErrorDoesNotCrash(t *testing.T) {
	e := NewEmitter()
	done := make(chan struct{})

	e.On("*", Listener{Name: "panicky", Handle: func(Event) {
		defer close(done)
		panic("boom")
	}})

	e.Emit(Event{Type: TypeSystemError})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}
