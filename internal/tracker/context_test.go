package tracker

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/carshare/pulse/internal/model"
)

func TestNewContext_Defaults(t *testing.T) {
	before := time.Now().UTC()
	c := NewContext(nil, Overrides{})

	assert.Equal(t, model.SourceWeb, c.Source)
	assert.False(t, c.Timestamp.Before(before))
	assert.Empty(t, c.ActorID)
	assert.Empty(t, c.IPAddress)
}

func TestNewContext_Overrides(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewContext(nil, Overrides{ActorID: "usr-1", Source: model.SourceAPI, Timestamp: ts})

	assert.Equal(t, "usr-1", c.ActorID)
	assert.Equal(t, model.SourceAPI, c.Source)
	assert.Equal(t, ts, c.Timestamp)
}

func TestNewContext_RequestMetadata(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/activity/track?x=1", nil)
	r.Header.Set("User-Agent", "pulse-test/1.0")
	r.Header.Set("Referer", "https://app.example.com/cars")
	r.RemoteAddr = "10.1.2.3:52110"

	c := NewContext(r, Overrides{})

	assert.Equal(t, "pulse-test/1.0", c.UserAgent)
	assert.Equal(t, "https://app.example.com/cars", c.Referrer)
	assert.Equal(t, "/v1/activity/track?x=1", c.URL)
	assert.Equal(t, "10.1.2.3", c.IPAddress)
}

func TestClientIP(t *testing.T) {
	for _, tc := range []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"x-forwarded-for single", "203.0.113.9", "", "10.0.0.1:1234", "203.0.113.9"},
		{"x-forwarded-for chain takes first hop", "203.0.113.9, 10.0.0.2", "", "10.0.0.1:1234", "203.0.113.9"},
		{"x-real-ip fallback", "", "203.0.113.7", "10.0.0.1:1234", "203.0.113.7"},
		{"remote addr fallback", "", "", "10.0.0.1:1234", "10.0.0.1"},
		{"remote addr without port", "", "", "10.0.0.1", "10.0.0.1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			r.RemoteAddr = tc.remoteAddr

			assert.Equal(t, tc.want, clientIP(r))
		})
	}
}
