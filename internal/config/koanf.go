// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/streamlens/config.yaml",
	"/etc/streamlens/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults load
// first, then the config file, then environment variables.
func defaultConfig() *Config {
	return &Config{
		YouTube: YouTubeConfig{
			Enabled:               false,
			APIKey:                "",
			QuotaLimit:            10000,
			SearchInterval:        30 * time.Minute,
			LivenessBatchSize:     50,
			LivenessMissThreshold: 1,
			Keywords: []string{
				"protest", "rally", "march", "demonstration",
				"activism", "breaking news live",
			},
			ExcludeKeywords: []string{
				"gaming", "gameplay", "let's play", "walkthrough",
				"reaction", "review", "trailer", "music video",
			},
		},
		Twitch: TwitchConfig{
			Enabled:                  false,
			ClientID:                 "",
			ClientSecret:             "",
			RateLimitSafetyThreshold: 50,
			RequestsPerMinute:        600, // below the ~800/min Helix bucket
			LivenessBatchSize:        100,
			LivenessMissThreshold:    1,
			Keywords: []string{
				"protest", "rally", "march", "police",
				"activism", "breaking", "news",
			},
		},
		Database: DatabaseConfig{
			Path:      "/data/streamlens.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Scheduler: SchedulerConfig{
			BrokerURL:                "",
			WorkerConcurrency:        4,
			TaskTimeLimit:            300 * time.Second,
			DiscoveryIntervalYouTube: 30 * time.Minute,
			DiscoveryIntervalTwitch:  5 * time.Minute,
			LivenessIntervalYouTube:  2 * time.Minute,
			LivenessIntervalTwitch:   time.Minute,
			RSSInterval:              10 * time.Minute,
			RetryAttempts:            3,
			RetryDelay:               2 * time.Second,
			RetryMaxDelay:            60 * time.Second,
		},
		Governance: GovernanceConfig{
			StatePath:      "", // in-memory by default
			ErrorThreshold: 5,
			ErrorCooloff:   600 * time.Second,
			QuotaCooloff:   300 * time.Second,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize:     20,
			MaxPageSize:         100,
			ReportHideThreshold: 5,
			RateLimitReqs:       100,
			RateLimitWindow:     time.Minute,
			CORSOrigins:         []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration with layered sources:
//  1. built-in defaults
//  2. optional YAML config file
//  3. environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env var strings.
var sliceConfigPaths = []string{
	"youtube.keywords",
	"youtube.exclude_keywords",
	"twitch.keywords",
	"api.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields; YAML-sourced slices pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so stray environment noise cannot pollute
// the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// YouTube (quota-metered platform)
		"youtube_enabled":                 "youtube.enabled",
		"youtube_api_key":                 "youtube.api_key",
		"youtube_quota_limit":             "youtube.quota_limit",
		"youtube_search_interval":         "youtube.search_interval",
		"youtube_liveness_batch_size":     "youtube.liveness_batch_size",
		"youtube_liveness_miss_threshold": "youtube.liveness_miss_threshold",
		"youtube_keywords":                "youtube.keywords",
		"youtube_exclude_keywords":        "youtube.exclude_keywords",

		// Twitch (rate-budgeted platform)
		"twitch_enabled":                     "twitch.enabled",
		"twitch_client_id":                   "twitch.client_id",
		"twitch_client_secret":               "twitch.client_secret",
		"twitch_rate_limit_safety_threshold": "twitch.rate_limit_safety_threshold",
		"twitch_requests_per_minute":         "twitch.requests_per_minute",
		"twitch_liveness_batch_size":         "twitch.liveness_batch_size",
		"twitch_liveness_miss_threshold":     "twitch.liveness_miss_threshold",
		"twitch_keywords":                    "twitch.keywords",

		// Catalog store
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Task runtime
		"broker_url":                 "scheduler.broker_url",
		"worker_concurrency":         "scheduler.worker_concurrency",
		"task_time_limit":            "scheduler.task_time_limit",
		"discovery_interval_youtube": "scheduler.discovery_interval_youtube",
		"discovery_interval_twitch":  "scheduler.discovery_interval_twitch",
		"liveness_interval_youtube":  "scheduler.liveness_interval_youtube",
		"liveness_interval_twitch":   "scheduler.liveness_interval_twitch",
		"rss_interval":               "scheduler.rss_interval",
		"retry_attempts":             "scheduler.retry_attempts",
		"retry_delay":                "scheduler.retry_delay",

		// Governance
		"governance_state_path": "governance.state_path",
		"error_threshold":       "governance.error_threshold",
		"error_cooloff":         "governance.error_cooloff",
		"quota_cooloff":         "governance.quota_cooloff",

		// HTTP server
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// API
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
		"report_hide_threshold": "api.report_hide_threshold",
		"rate_limit_requests":   "api.rate_limit_reqs",
		"rate_limit_window":     "api.rate_limit_window",
		"cors_origins":          "api.cors_origins",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
