package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carshare/pulse/internal/events"
	"github.com/carshare/pulse/internal/model"
)

func newTestGateway(t *testing.T) (*Gateway, *events.Emitter) {
	t.Helper()
	e := events.NewEmitter()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := NewGateway(e, logger, Options{
		HeartbeatInterval: time.Hour, // keep background ticks out of tests
		SweepInterval:     time.Hour,
		StaleAfter:        time.Minute,
	})
	return g, e
}

func mustReceive(t *testing.T, c *Conn) *frame {
	t.Helper()
	select {
	case f := <-c.ch:
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestGateway_StartRegistersEmitterListener(t *testing.T) {
	g, e := newTestGateway(t)

	g.Start()
	if n := e.ListenerCount(); n != 1 {
		t.Fatalf("expected 1 listener after Start, got %d", n)
	}

	g.Stop()
	if n := e.ListenerCount(); n != 0 {
		t.Fatalf("expected 0 listeners after Stop, got %d", n)
	}
}

func TestGateway_HandleEventFanOut(t *testing.T) {
	g, _ := newTestGateway(t)

	all := g.register("usr-1", Filter{})
	booksOnly := g.register("usr-2", Filter{Actions: []model.Action{model.ActionBook}})

	g.handleEvent(events.Event{
		Type:      events.TypeUserActivity,
		Timestamp: time.Now().UTC(),
		Payload: events.ActivityPayload{
			ActivityID: "act-1",
			Action:     model.ActionDelete,
			Resource:   "booking",
			Severity:   model.SeverityInfo,
		},
	})

	f := mustReceive(t, all)
	if f.Type != MessageActivity {
		t.Fatalf("expected %q frame, got %q", MessageActivity, f.Type)
	}
	var msg Message
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		t.Fatalf("unmarshaling frame: %v", err)
	}
	if msg.EventType != events.TypeUserActivity {
		t.Fatalf("expected event_type=%q, got %q", events.TypeUserActivity, msg.EventType)
	}

	select {
	case f := <-booksOnly.ch:
		t.Fatalf("filtered connection received frame %q", f.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGateway_SystemEventsUseSystemMessageType(t *testing.T) {
	g, _ := newTestGateway(t)
	c := g.register("", Filter{})

	g.handleEvent(events.Event{
		Type:      events.TypeSystemCleanup,
		Timestamp: time.Now().UTC(),
		Payload:   events.CleanupPayload{Deleted: 5},
	})

	if f := mustReceive(t, c); f.Type != MessageSystem {
		t.Fatalf("expected %q frame, got %q", MessageSystem, f.Type)
	}
}

func TestGateway_FramesSinceReplaysFilteredTail(t *testing.T) {
	g, _ := newTestGateway(t)

	emit := func(action model.Action) {
		g.handleEvent(events.Event{
			Type:    events.TypeUserActivity,
			Payload: events.ActivityPayload{Action: action, Resource: "car", Severity: model.SeverityInfo},
		})
	}
	emit(model.ActionRead)
	emit(model.ActionBook)
	emit(model.ActionRead)
	emit(model.ActionBook)

	// Everything after the first frame, bookings only.
	frames := g.framesSince(1, Filter{Actions: []model.Action{model.ActionBook}})
	if len(frames) != 2 {
		t.Fatalf("expected 2 replayed frames, got %d", len(frames))
	}
	if frames[0].ID >= frames[1].ID {
		t.Fatalf("expected ascending frame ids, got %d then %d", frames[0].ID, frames[1].ID)
	}

	if frames := g.framesSince(100, Filter{}); frames != nil {
		t.Fatalf("expected no frames past the newest id, got %d", len(frames))
	}
}

func TestGateway_BroadcastNotificationTargeting(t *testing.T) {
	g, _ := newTestGateway(t)

	alice := g.register("alice", Filter{})
	bob := g.register("bob", Filter{})

	sent := g.BroadcastNotification("maintenance", "going down", nil, []string{"alice"})
	if sent != 1 {
		t.Fatalf("expected sentTo=1, got %d", sent)
	}

	f := mustReceive(t, alice)
	var msg Message
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		t.Fatalf("unmarshaling frame: %v", err)
	}
	if msg.Type != MessageNotification || msg.Message != "going down" {
		t.Fatalf("unexpected notification: %+v", msg)
	}

	select {
	case <-bob.ch:
		t.Fatal("untargeted connection received notification")
	case <-time.After(100 * time.Millisecond):
	}

	// Empty target list goes to everyone.
	if sent := g.BroadcastNotification("ping", "hello", nil, nil); sent != 2 {
		t.Fatalf("expected sentTo=2, got %d", sent)
	}
}

func TestGateway_BroadcastDropsStalledConnection(t *testing.T) {
	g, _ := newTestGateway(t)
	c := g.register("stuck", Filter{})

	// Fill the send channel so the next write fails.
	for range connBuffer {
		c.ch <- &frame{}
	}

	if sent := g.BroadcastNotification("ping", "hello", nil, nil); sent != 0 {
		t.Fatalf("expected sentTo=0, got %d", sent)
	}
	if n := g.ActiveConnections(); n != 0 {
		t.Fatalf("expected stalled connection to be removed, still %d open", n)
	}
	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("stalled connection was not force-closed")
	}
}

func TestGateway_CloseAll(t *testing.T) {
	g, _ := newTestGateway(t)
	a := g.register("a", Filter{})
	b := g.register("b", Filter{})

	if closed := g.CloseAll(); closed != 2 {
		t.Fatalf("expected 2 closed, got %d", closed)
	}
	if n := g.ActiveConnections(); n != 0 {
		t.Fatalf("expected empty registry, got %d", n)
	}
	for _, c := range []*Conn{a, b} {
		select {
		case <-c.done:
		case <-time.After(time.Second):
			t.Fatal("connection not closed")
		}
	}
}

func TestGateway_SweepStale(t *testing.T) {
	g, _ := newTestGateway(t)

	fresh := g.register("fresh", Filter{})
	stale := g.register("stale", Filter{})
	stale.touchHeartbeat(time.Now().UTC().Add(-time.Hour))

	g.sweepStale()

	if n := g.ActiveConnections(); n != 1 {
		t.Fatalf("expected 1 surviving connection, got %d", n)
	}
	select {
	case <-stale.done:
	case <-time.After(time.Second):
		t.Fatal("stale connection not closed")
	}
	select {
	case <-fresh.done:
		t.Fatal("fresh connection was closed")
	default:
	}
}

func TestGateway_HandleStream(t *testing.T) {
	g, e := newTestGateway(t)
	g.Start()
	defer g.Stop()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = g.HandleStream(w, r, "usr-1")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"?actions=BOOK", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readFrame := func() (string, string) {
		t.Helper()
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("reading stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return event, data
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimPrefix(line, "event:")
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimPrefix(line, "data:")
			}
		}
	}

	event, data := readFrame()
	if event != MessageConnection {
		t.Fatalf("expected initial %q frame, got %q", MessageConnection, event)
	}
	var connMsg Message
	if err := json.Unmarshal([]byte(data), &connMsg); err != nil {
		t.Fatalf("unmarshaling connection message: %v", err)
	}
	if connMsg.ConnectionID == "" || connMsg.ActiveConnections != 1 {
		t.Fatalf("unexpected connection message: %+v", connMsg)
	}

	// A filtered-out event must not reach the client; a matching one must.
	e.Emit(events.Event{
		Type:    events.TypeUserActivity,
		Payload: events.ActivityPayload{Action: model.ActionRead, Resource: "car", Severity: model.SeverityInfo},
	})
	e.Emit(events.Event{
		Type:    events.TypeUserActivity,
		Payload: events.ActivityPayload{Action: model.ActionBook, Resource: "car", Severity: model.SeverityInfo},
	})

	event, data = readFrame()
	if event != MessageActivity {
		t.Fatalf("expected %q frame, got %q", MessageActivity, event)
	}
	if !strings.Contains(data, `"BOOK"`) {
		t.Fatalf("expected BOOK activity, got %s", data)
	}
}
