// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

// Package config defines the environment-driven configuration surface and
// loads it through koanf with layered precedence: ENV > YAML file > defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the ingestion engine.
type Config struct {
	YouTube    YouTubeConfig    `koanf:"youtube"`
	Twitch     TwitchConfig     `koanf:"twitch"`
	Database   DatabaseConfig   `koanf:"database"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Governance GovernanceConfig `koanf:"governance"`
	Server     ServerConfig     `koanf:"server"`
	API        APIConfig        `koanf:"api"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// YouTubeConfig configures the quota-metered platform adapter.
// search.list costs 100 units; videos.list costs 1 unit per batch of 50.
type YouTubeConfig struct {
	Enabled bool   `koanf:"enabled"`
	APIKey  string `koanf:"api_key"`

	// QuotaLimit is the daily unit budget. The default matches the free tier.
	QuotaLimit int64 `koanf:"quota_limit"`

	// SearchInterval is the minimum spacing between expensive search calls,
	// enforced per connector in addition to the discovery task cadence.
	SearchInterval time.Duration `koanf:"search_interval"`

	// LivenessBatchSize is the per-call id cap of the cheap batch endpoint.
	LivenessBatchSize int `koanf:"liveness_batch_size"`

	// LivenessMissThreshold is how many consecutive polls may miss a stream
	// before it is declared ENDED.
	LivenessMissThreshold int `koanf:"liveness_miss_threshold"`

	Keywords        []string `koanf:"keywords"`
	ExcludeKeywords []string `koanf:"exclude_keywords"`
}

// TwitchConfig configures the rate-budgeted platform adapter.
type TwitchConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`

	// RateLimitSafetyThreshold pauses the connector when the Ratelimit-
	// Remaining response header drops below this value.
	RateLimitSafetyThreshold int `koanf:"rate_limit_safety_threshold"`

	// RequestsPerMinute paces outgoing calls below the Helix token bucket.
	RequestsPerMinute int `koanf:"requests_per_minute"`

	LivenessBatchSize     int      `koanf:"liveness_batch_size"`
	LivenessMissThreshold int      `koanf:"liveness_miss_threshold"`
	Keywords              []string `koanf:"keywords"`
}

// DatabaseConfig configures the embedded DuckDB catalog.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// SchedulerConfig configures the periodic task runtime.
type SchedulerConfig struct {
	// BrokerURL selects the queue backend. Empty runs the in-process
	// GoChannel pub/sub; a nats:// URL routes tasks through JetStream.
	BrokerURL string `koanf:"broker_url"`

	// WorkerConcurrency is the worker count per labeled queue.
	WorkerConcurrency int `koanf:"worker_concurrency"`

	// TaskTimeLimit is the hard wall-clock ceiling per task run.
	TaskTimeLimit time.Duration `koanf:"task_time_limit"`

	DiscoveryIntervalYouTube time.Duration `koanf:"discovery_interval_youtube"`
	DiscoveryIntervalTwitch  time.Duration `koanf:"discovery_interval_twitch"`
	LivenessIntervalYouTube  time.Duration `koanf:"liveness_interval_youtube"`
	LivenessIntervalTwitch   time.Duration `koanf:"liveness_interval_twitch"`
	RSSInterval              time.Duration `koanf:"rss_interval"`

	// RetryAttempts/RetryDelay drive the per-call exponential backoff loop
	// inside a task (delay doubles per attempt, capped at RetryMaxDelay).
	RetryAttempts int           `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	RetryMaxDelay time.Duration `koanf:"retry_max_delay"`
}

// GovernanceConfig configures the per-connector quota and breaker counters.
type GovernanceConfig struct {
	// StatePath persists governance counters to a Badger store so quota
	// accounting survives restarts. Empty keeps counters in memory only.
	StatePath string `koanf:"state_path"`

	ErrorThreshold int           `koanf:"error_threshold"`
	ErrorCooloff   time.Duration `koanf:"error_cooloff"`
	QuotaCooloff   time.Duration `koanf:"quota_cooloff"`
}

// ServerConfig configures the HTTP projection server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// APIConfig configures read-side behavior.
type APIConfig struct {
	DefaultPageSize     int           `koanf:"default_page_size"`
	MaxPageSize         int           `koanf:"max_page_size"`
	ReportHideThreshold int           `koanf:"report_hide_threshold"`
	RateLimitReqs       int           `koanf:"rate_limit_reqs"`
	RateLimitWindow     time.Duration `koanf:"rate_limit_window"`
	CORSOrigins         []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks cross-field consistency and credential presence for
// enabled platforms.
func (c *Config) Validate() error {
	if c.YouTube.Enabled && c.YouTube.APIKey == "" {
		return fmt.Errorf("youtube enabled but YOUTUBE_API_KEY is empty")
	}
	if c.Twitch.Enabled && (c.Twitch.ClientID == "" || c.Twitch.ClientSecret == "") {
		return fmt.Errorf("twitch enabled but client credentials are incomplete")
	}
	if c.YouTube.QuotaLimit < 0 {
		return fmt.Errorf("youtube quota_limit must be non-negative, got %d", c.YouTube.QuotaLimit)
	}
	if c.YouTube.LivenessBatchSize <= 0 || c.Twitch.LivenessBatchSize <= 0 {
		return fmt.Errorf("liveness batch sizes must be positive")
	}
	if c.YouTube.LivenessMissThreshold < 1 || c.Twitch.LivenessMissThreshold < 1 {
		return fmt.Errorf("liveness miss thresholds must be at least 1")
	}
	if c.Scheduler.WorkerConcurrency <= 0 {
		return fmt.Errorf("scheduler worker_concurrency must be positive, got %d", c.Scheduler.WorkerConcurrency)
	}
	if c.Scheduler.TaskTimeLimit <= 0 {
		return fmt.Errorf("scheduler task_time_limit must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	return nil
}
