package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PULSE_DATABASE_URL", "postgres://localhost/pulse")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/pulse", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.NATSURL)
	assert.Empty(t, cfg.AuthToken)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.StaleAfter)
	assert.Equal(t, "policies.toml", cfg.PolicyFile)
	assert.Equal(t, "us-east-1", cfg.ArchiveS3Region)
	assert.Equal(t, 400*24*time.Hour, cfg.MetricsRetention)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("PULSE_DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PULSE_DATABASE_URL")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PULSE_DATABASE_URL", "postgres://localhost/pulse")
	t.Setenv("PULSE_HTTP_ADDR", ":9191")
	t.Setenv("PULSE_NATS_URL", "nats://localhost:4222")
	t.Setenv("PULSE_AUTH_TOKEN", "tok")
	t.Setenv("PULSE_ROOT_TOKEN", "root")
	t.Setenv("PULSE_HEARTBEAT_INTERVAL", "10s")
	t.Setenv("PULSE_METRICS_RETENTION", "720h")
	t.Setenv("PULSE_ARCHIVE_DIR", "/var/lib/pulse/archive")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9191", cfg.HTTPAddr)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "tok", cfg.AuthToken)
	assert.Equal(t, "root", cfg.RootToken)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 720*time.Hour, cfg.MetricsRetention)
	assert.Equal(t, "/var/lib/pulse/archive", cfg.ArchiveDir)
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("PULSE_DATABASE_URL", "postgres://localhost/pulse")
	t.Setenv("PULSE_SWEEP_INTERVAL", "every-so-often")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PULSE_SWEEP_INTERVAL")
}
