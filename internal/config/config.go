// Package config loads service configuration from environment variables.
// Malformed values are startup failures, not fallbacks: a node running with a
// half-understood configuration is worse than one that refuses to start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	Env    string // "dev" | "prod"
	DBPath string

	// Upstream registry (sync contract).
	UpstreamURL     string
	UpstreamToken   string
	UpstreamTimeout time.Duration

	// Sync schedules.
	PullInterval  time.Duration
	PushInterval  time.Duration
	PushBatchSize int

	// OfflineGrace is the maximum age of cached credential data still trusted
	// while the upstream registry is unreachable.
	OfflineGrace time.Duration

	// DecisionCeiling bounds the total latency of one validation; past it the
	// request fails closed rather than hanging the hardware caller.
	DecisionCeiling time.Duration

	// GateOfflineAfter is the quiet period after which a gate with no
	// heartbeat or validation traffic is reported offline.
	GateOfflineAfter time.Duration

	// ActuatorOpenFor is how long a granted decision holds the gate open.
	ActuatorOpenFor time.Duration

	// Heartbeat retention.
	HeartbeatRetentionDays int // 0 = keep forever
	PruneIntervalHours     int

	// PolicyFile is the YAML time-of-day policy table. Empty means every
	// category is unrestricted.
	PolicyFile string
}

func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:   getenvDefault("GUARDHOUSE_HTTP_ADDR", ":8080"),
		DBPath:     getenvDefault("GUARDHOUSE_DB_PATH", "./data/guardhouse.db"),
		PolicyFile: os.Getenv("GUARDHOUSE_POLICY_FILE"),

		UpstreamURL:   strings.TrimSpace(os.Getenv("GUARDHOUSE_UPSTREAM_URL")),
		UpstreamToken: os.Getenv("GUARDHOUSE_UPSTREAM_TOKEN"),
	}

	env := strings.ToLower(getenvDefault("GUARDHOUSE_ENV", "dev"))
	if env != "dev" && env != "prod" {
		return Config{}, fmt.Errorf("GUARDHOUSE_ENV must be dev or prod, got %q", env)
	}
	cfg.Env = env

	if cfg.Env == "prod" && cfg.UpstreamURL == "" {
		return Config{}, fmt.Errorf("GUARDHOUSE_UPSTREAM_URL is required in prod")
	}

	var err error
	if cfg.UpstreamTimeout, err = getenvDuration("GUARDHOUSE_UPSTREAM_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PullInterval, err = getenvDuration("GUARDHOUSE_PULL_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.PushInterval, err = getenvDuration("GUARDHOUSE_PUSH_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.OfflineGrace, err = getenvDuration("GUARDHOUSE_OFFLINE_GRACE", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.DecisionCeiling, err = getenvDuration("GUARDHOUSE_DECISION_CEILING", 250*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.GateOfflineAfter, err = getenvDuration("GUARDHOUSE_GATE_OFFLINE_AFTER", 90*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ActuatorOpenFor, err = getenvDuration("GUARDHOUSE_ACTUATOR_OPEN_FOR", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PushBatchSize, err = getenvInt("GUARDHOUSE_PUSH_BATCH_SIZE", 100); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatRetentionDays, err = getenvInt("GUARDHOUSE_HEARTBEAT_RETENTION_DAYS", 30); err != nil {
		return Config{}, err
	}
	if cfg.PruneIntervalHours, err = getenvInt("GUARDHOUSE_PRUNE_INTERVAL_HOURS", 6); err != nil {
		return Config{}, err
	}

	if cfg.PushBatchSize <= 0 {
		return Config{}, fmt.Errorf("GUARDHOUSE_PUSH_BATCH_SIZE must be positive")
	}
	if cfg.DecisionCeiling <= 0 {
		return Config{}, fmt.Errorf("GUARDHOUSE_DECISION_CEILING must be positive")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s has invalid value %q", key, v)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return d, nil
}
