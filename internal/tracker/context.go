package tracker

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/carshare/pulse/internal/model"
)

// Context is the ephemeral per-call activity context: who acted, from
// where, and when. It is constructed fresh for every tracked call and never
// persisted on its own.
type Context struct {
	ActorID   string
	Source    model.Source
	Timestamp time.Time

	IPAddress string
	UserAgent string
	URL       string
	Referrer  string
}

// Overrides supplies caller-known values that take precedence over whatever
// can be extracted from the request.
type Overrides struct {
	ActorID   string
	Source    model.Source
	Timestamp time.Time
}

// NewContext builds an activity context from an inbound request plus
// overrides. It is a pure function with no failure modes: missing fields
// get defaults (source "web", timestamp now) and a nil request yields a
// context with request metadata left empty.
func NewContext(r *http.Request, o Overrides) Context {
	c := Context{
		ActorID:   o.ActorID,
		Source:    o.Source,
		Timestamp: o.Timestamp,
	}
	if c.Source == "" {
		c.Source = model.SourceWeb
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}

	if r != nil {
		c.IPAddress = clientIP(r)
		c.UserAgent = r.UserAgent()
		if r.URL != nil {
			c.URL = r.URL.String()
		}
		c.Referrer = r.Referer()
	}

	return c
}

// clientIP extracts the originating client address, preferring proxy
// headers over the raw socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop is the original client.
		if i := strings.Index(xff, ","); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
