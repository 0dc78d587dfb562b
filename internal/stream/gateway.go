// Package stream implements the real-time gateway that pushes published
// events to admin dashboards over server-sent events. The connection
// registry is owned by the Gateway and scoped to one process; there is no
// cross-instance fan-out.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carshare/pulse/internal/events"
	"github.com/carshare/pulse/internal/idgen"
)

const (
	// ringSize is the number of recent events kept in memory for
	// Last-Event-ID reconnection support.
	ringSize = 1000

	// connBuffer is the per-connection send channel capacity.
	connBuffer = 64

	// listenerName identifies the gateway's emitter registration.
	listenerName = "stream-gateway"
)

// Message types written onto a stream connection.
const (
	MessageConnection   = "connection"
	MessageHeartbeat    = "heartbeat"
	MessageActivity     = "activity"
	MessageNotification = "notification"
	MessageSystem       = "system"
)

// Message is the JSON body of one SSE frame.
type Message struct {
	Type          string    `json:"type"`
	EventType     string    `json:"event_type,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	// connection messages
	ConnectionID      string `json:"connection_id,omitempty"`
	ActiveConnections int    `json:"active_connections,omitempty"`

	// notification messages
	Message string `json:"message,omitempty"`

	Data any `json:"data,omitempty"`
}

// frame is one serialized SSE frame: a monotonically increasing sequence
// number, the message type (SSE event name), and the JSON body.
type frame struct {
	ID   uint64
	Type string
	Data []byte
}

// ringEntry pairs a frame with the event it was built from so replay can
// re-apply per-connection filters.
type ringEntry struct {
	frame frame
	event events.Event
}

// Conn is one live stream connection.
type Conn struct {
	ID     string
	UserID string
	Filter Filter

	ch        chan *frame
	done      chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	lastHeartbeat time.Time
}

// forceClose signals the connection's handler goroutine to exit.
func (c *Conn) forceClose() {
	c.closeOnce.Do(func() { close(c.done) })
}

// trySend enqueues a frame without blocking. It reports false when the
// connection's buffer is full (a stalled client).
func (c *Conn) trySend(f *frame) bool {
	select {
	case c.ch <- f:
		return true
	default:
		return false
	}
}

func (c *Conn) touchHeartbeat(now time.Time) {
	c.mu.Lock()
	c.lastHeartbeat = now
	c.mu.Unlock()
}

func (c *Conn) heartbeatAge(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastHeartbeat)
}

// Options configures gateway timers.
type Options struct {
	HeartbeatInterval time.Duration // default 30s
	SweepInterval     time.Duration // default 5m
	StaleAfter        time.Duration // default 5m
}

// Gateway owns the stream connection registry. It registers a single "*"
// listener on the emitter and re-filters per connection.
type Gateway struct {
	emitter *events.Emitter
	logger  *slog.Logger
	opts    Options

	mu    sync.RWMutex
	conns map[string]*Conn

	nextID atomic.Uint64

	ringMu  sync.RWMutex
	ring    [ringSize]ringEntry
	ringPos int
	ringLen int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGateway returns a gateway wired to the emitter. Call Start before
// serving stream requests and Stop at shutdown.
func NewGateway(e *events.Emitter, logger *slog.Logger, opts Options) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 5 * time.Minute
	}
	return &Gateway{
		emitter: e,
		logger:  logger,
		opts:    opts,
		conns:   make(map[string]*Conn),
	}
}

// Start registers the emitter listener and launches the heartbeat and
// stale-connection sweep loops.
func (g *Gateway) Start() {
	g.emitter.On("*", events.Listener{
		Name:   listenerName,
		Handle: g.handleEvent,
	})

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		g.heartbeatLoop(ctx)
	}()
	go func() {
		defer g.wg.Done()
		g.sweepLoop(ctx)
	}()
}

// Stop deregisters the emitter listener, stops the background loops, and
// closes every open connection.
func (g *Gateway) Stop() {
	g.emitter.Off("*", listenerName)
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
	g.CloseAll()
}

// ActiveConnections returns the number of open connections.
func (g *Gateway) ActiveConnections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// handleEvent serializes a published event, stores it for replay, and fans
// it out to every connection whose filter matches. Slow connections drop
// the frame rather than blocking the emitter dispatch.
func (g *Gateway) handleEvent(evt events.Event) {
	msgType := MessageSystem
	if evt.Type == events.TypeUserActivity {
		msgType = MessageActivity
	}

	data, err := json.Marshal(Message{
		Type:          msgType,
		EventType:     evt.Type,
		Timestamp:     evt.Timestamp,
		CorrelationID: evt.CorrelationID,
		Data:          evt.Payload,
	})
	if err != nil {
		g.logger.Warn("failed to marshal stream event", "type", evt.Type, "error", err)
		return
	}

	f := frame{ID: g.nextID.Add(1), Type: msgType, Data: data}

	g.ringMu.Lock()
	g.ring[g.ringPos] = ringEntry{frame: f, event: evt}
	g.ringPos = (g.ringPos + 1) % ringSize
	if g.ringLen < ringSize {
		g.ringLen++
	}
	g.ringMu.Unlock()

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.conns {
		if !c.Filter.MatchesEvent(evt) {
			continue
		}
		if !c.trySend(&f) {
			g.logger.Debug("dropped stream event for slow connection",
				"connection_id", c.ID, "type", evt.Type)
		}
	}
}

// framesSince returns ring entries with ID > lastID that pass the filter,
// oldest first. Returns nil if nothing newer is buffered.
func (g *Gateway) framesSince(lastID uint64, filter Filter) []*frame {
	g.ringMu.RLock()
	defer g.ringMu.RUnlock()

	if g.ringLen == 0 {
		return nil
	}

	var result []*frame
	start := g.ringPos - g.ringLen
	if start < 0 {
		start += ringSize
	}
	for i := range g.ringLen {
		idx := (start + i) % ringSize
		entry := &g.ring[idx]
		if entry.frame.ID > lastID && filter.MatchesEvent(entry.event) {
			f := entry.frame
			result = append(result, &f)
		}
	}
	return result
}

// register adds a connection to the registry and returns it.
func (g *Gateway) register(userID string, filter Filter) *Conn {
	c := &Conn{
		ID:            idgen.MustGenerate(idgen.PrefixConnection),
		UserID:        userID,
		Filter:        filter,
		ch:            make(chan *frame, connBuffer),
		done:          make(chan struct{}),
		lastHeartbeat: time.Now().UTC(),
	}
	g.mu.Lock()
	g.conns[c.ID] = c
	g.mu.Unlock()
	return c
}

// remove deletes a connection from the registry.
func (g *Gateway) remove(c *Conn) {
	g.mu.Lock()
	delete(g.conns, c.ID)
	g.mu.Unlock()
}

func (g *Gateway) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(g.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sendHeartbeats()
		}
	}
}

func (g *Gateway) sendHeartbeats() {
	now := time.Now().UTC()
	data, err := json.Marshal(Message{Type: MessageHeartbeat, Timestamp: now})
	if err != nil {
		return
	}

	g.mu.RLock()
	conns := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.RUnlock()

	for _, c := range conns {
		f := &frame{ID: g.nextID.Add(1), Type: MessageHeartbeat, Data: data}
		if !c.trySend(f) {
			// A client that cannot even drain heartbeats is stalled;
			// its heartbeat age keeps growing until the sweep closes it.
			g.logger.Debug("heartbeat not delivered", "connection_id", c.ID)
		}
	}
}

func (g *Gateway) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(g.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweepStale()
		}
	}
}

// sweepStale force-closes connections whose last heartbeat write is older
// than the staleness threshold, bounding resource usage from abandoned
// clients.
func (g *Gateway) sweepStale() {
	now := time.Now().UTC()

	g.mu.RLock()
	var stale []*Conn
	for _, c := range g.conns {
		if c.heartbeatAge(now) > g.opts.StaleAfter {
			stale = append(stale, c)
		}
	}
	g.mu.RUnlock()

	for _, c := range stale {
		g.logger.Info("closing stale stream connection",
			"connection_id", c.ID, "user_id", c.UserID)
		c.forceClose()
		g.remove(c)
	}
}

// BroadcastNotification writes a notification message to every open
// connection, or only to connections owned by targetUserIDs when given.
// It returns the number of connections the message was delivered to.
// A connection that cannot accept the write is closed and removed; the
// broadcast continues to the rest.
func (g *Gateway) BroadcastNotification(notifType, message string, data any, targetUserIDs []string) int {
	targets := make(map[string]bool, len(targetUserIDs))
	for _, id := range targetUserIDs {
		targets[id] = true
	}

	body, err := json.Marshal(Message{
		Type:      MessageNotification,
		EventType: notifType,
		Timestamp: time.Now().UTC(),
		Message:   message,
		Data:      data,
	})
	if err != nil {
		g.logger.Warn("failed to marshal notification", "error", err)
		return 0
	}

	g.mu.RLock()
	conns := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		if len(targets) > 0 && !targets[c.UserID] {
			continue
		}
		conns = append(conns, c)
	}
	g.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		f := &frame{ID: g.nextID.Add(1), Type: MessageNotification, Data: body}
		if c.trySend(f) {
			sent++
			continue
		}
		g.logger.Warn("notification write failed, dropping connection",
			"connection_id", c.ID, "user_id", c.UserID)
		c.forceClose()
		g.remove(c)
	}
	return sent
}

// CloseAll force-closes every open connection and returns how many were closed.
func (g *Gateway) CloseAll() int {
	g.mu.Lock()
	conns := g.conns
	g.conns = make(map[string]*Conn)
	g.mu.Unlock()

	for _, c := range conns {
		c.forceClose()
	}
	return len(conns)
}

// HandleStream serves one SSE connection for the given (already
// authorized) user. It blocks until the client disconnects, the
// connection is force-closed, or the write fails.
func (g *Gateway) HandleStream(w http.ResponseWriter, r *http.Request, userID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported by response writer")
	}

	filter := ParseFilter(r.URL.Query())
	c := g.register(userID, filter)
	defer g.remove(c)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)

	// Initial connection message with the assigned id and current count.
	initial, err := json.Marshal(Message{
		Type:              MessageConnection,
		Timestamp:         time.Now().UTC(),
		ConnectionID:      c.ID,
		ActiveConnections: g.ActiveConnections(),
	})
	if err != nil {
		return fmt.Errorf("marshal connection message: %w", err)
	}
	writeFrame(w, &frame{ID: g.nextID.Add(1), Type: MessageConnection, Data: initial})
	flusher.Flush()

	// Replay buffered events if the client reconnected with Last-Event-ID.
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if lastID, err := strconv.ParseUint(lastIDStr, 10, 64); err == nil {
			for _, f := range g.framesSince(lastID, filter) {
				writeFrame(w, f)
			}
			flusher.Flush()
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case f := <-c.ch:
			if _, err := writeFrame(w, f); err != nil {
				g.logger.Debug("stream write failed", "connection_id", c.ID, "error", err)
				return nil
			}
			flusher.Flush()
			if f.Type == MessageHeartbeat {
				c.touchHeartbeat(time.Now().UTC())
			}
		}
	}
}

// writeFrame writes a single SSE frame to the writer.
func writeFrame(w http.ResponseWriter, f *frame) (int, error) {
	return fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", f.ID, f.Type, f.Data)
}
