package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config carries the service's runtime settings, loaded from the environment
// (a local .env file is honored when present).
type Config struct {
	Port string

	SupabaseURL        string
	SupabaseServiceKey string

	// PollInterval is how often job state is refreshed from the backend.
	PollInterval time.Duration
	// BatchWaitTimeout bounds how long a batch item waits for its analysis
	// to reach a terminal state.
	BatchWaitTimeout time.Duration
	// StaleJobThreshold is how long a job may sit in a worker-owned state
	// before the janitor fails it.
	StaleJobThreshold time.Duration
	// JanitorSchedule is a cron spec for the stale-job sweep.
	JanitorSchedule string

	LogLevel string
}

// Load reads configuration from the environment. SUPABASE_URL and
// SUPABASE_SERVICE_KEY are required; everything else has a default.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:              envOr("PORT", "8080"),
		SupabaseURL:       os.Getenv("SUPABASE_URL"),
		JanitorSchedule:   envOr("JANITOR_SCHEDULE", "@every 1m"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		PollInterval:      3 * time.Second,
		BatchWaitTimeout:  2 * time.Minute,
		StaleJobThreshold: 10 * time.Minute,
	}
	cfg.SupabaseServiceKey = os.Getenv("SUPABASE_SERVICE_KEY")

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}

	var err error
	if cfg.PollInterval, err = durationOr("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.BatchWaitTimeout, err = durationOr("BATCH_WAIT_TIMEOUT", cfg.BatchWaitTimeout); err != nil {
		return nil, err
	}
	if cfg.StaleJobThreshold, err = durationOr("STALE_JOB_THRESHOLD", cfg.StaleJobThreshold); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
