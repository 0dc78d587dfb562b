package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string // PULSE_DATABASE_URL (required)
	HTTPAddr    string // PULSE_HTTP_ADDR (default ":8080")
	NATSURL     string // PULSE_NATS_URL (optional, empty = no external event mirror)
	AuthToken   string // PULSE_AUTH_TOKEN (optional, empty = auth disabled)
	RootToken   string // PULSE_ROOT_TOKEN (optional, empty = root-tier endpoints disabled unless auth is off)

	// Stream gateway settings
	HeartbeatInterval time.Duration // PULSE_HEARTBEAT_INTERVAL (default 30s)
	SweepInterval     time.Duration // PULSE_SWEEP_INTERVAL (default 5m)
	StaleAfter        time.Duration // PULSE_STALE_AFTER (default 5m)

	// Retention settings
	PolicyFile        string // PULSE_POLICY_FILE (default "policies.toml")
	ArchiveDir        string // PULSE_ARCHIVE_DIR (local archive destination when set)
	ArchiveS3Bucket   string // PULSE_ARCHIVE_S3_BUCKET (enables S3 archival when set)
	ArchiveS3Region   string // PULSE_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Prefix   string // PULSE_ARCHIVE_S3_PREFIX (default "pulse/archive")
	ArchiveS3Endpoint string // PULSE_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)

	// MetricsRetention is how long generated metric rows are kept before the
	// cleanup job removes them. PULSE_METRICS_RETENTION (default 9600h ≈ 400d).
	MetricsRetention time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	// Best-effort: absence of a .env file is the normal case.
	_ = godotenv.Load()

	c := &Config{
		DatabaseURL:       os.Getenv("PULSE_DATABASE_URL"),
		HTTPAddr:          envOrDefault("PULSE_HTTP_ADDR", ":8080"),
		NATSURL:           os.Getenv("PULSE_NATS_URL"),
		AuthToken:         os.Getenv("PULSE_AUTH_TOKEN"),
		RootToken:         os.Getenv("PULSE_ROOT_TOKEN"),
		PolicyFile:        envOrDefault("PULSE_POLICY_FILE", "policies.toml"),
		ArchiveDir:        os.Getenv("PULSE_ARCHIVE_DIR"),
		ArchiveS3Bucket:   os.Getenv("PULSE_ARCHIVE_S3_BUCKET"),
		ArchiveS3Region:   envOrDefault("PULSE_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Prefix:   envOrDefault("PULSE_ARCHIVE_S3_PREFIX", "pulse/archive"),
		ArchiveS3Endpoint: os.Getenv("PULSE_ARCHIVE_S3_ENDPOINT"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("PULSE_DATABASE_URL is required")
	}

	var err error
	if c.HeartbeatInterval, err = durationOrDefault("PULSE_HEARTBEAT_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if c.SweepInterval, err = durationOrDefault("PULSE_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if c.StaleAfter, err = durationOrDefault("PULSE_STALE_AFTER", 5*time.Minute); err != nil {
		return nil, err
	}
	if c.MetricsRetention, err = durationOrDefault("PULSE_METRICS_RETENTION", 400*24*time.Hour); err != nil {
		return nil, err
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
