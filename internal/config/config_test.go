// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.YouTube.QuotaLimit != 10000 {
		t.Errorf("expected default quota limit 10000, got %d", cfg.YouTube.QuotaLimit)
	}
	if cfg.YouTube.SearchInterval != 30*time.Minute {
		t.Errorf("expected default search interval 30m, got %v", cfg.YouTube.SearchInterval)
	}
	if cfg.YouTube.LivenessBatchSize != 50 {
		t.Errorf("expected youtube liveness batch 50, got %d", cfg.YouTube.LivenessBatchSize)
	}
	if cfg.Twitch.LivenessBatchSize != 100 {
		t.Errorf("expected twitch liveness batch 100, got %d", cfg.Twitch.LivenessBatchSize)
	}
	if cfg.Twitch.RateLimitSafetyThreshold != 50 {
		t.Errorf("expected rate limit safety threshold 50, got %d", cfg.Twitch.RateLimitSafetyThreshold)
	}
	if cfg.Scheduler.WorkerConcurrency != 4 {
		t.Errorf("expected worker concurrency 4, got %d", cfg.Scheduler.WorkerConcurrency)
	}
	if cfg.Scheduler.TaskTimeLimit != 300*time.Second {
		t.Errorf("expected task time limit 300s, got %v", cfg.Scheduler.TaskTimeLimit)
	}
	if cfg.Governance.ErrorThreshold != 5 {
		t.Errorf("expected error threshold 5, got %d", cfg.Governance.ErrorThreshold)
	}
	if cfg.Governance.ErrorCooloff != 600*time.Second {
		t.Errorf("expected error cooloff 600s, got %v", cfg.Governance.ErrorCooloff)
	}
	if cfg.YouTube.Enabled || cfg.Twitch.Enabled {
		t.Error("platforms must be disabled by default until credentials are supplied")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("YOUTUBE_ENABLED", "true")
	t.Setenv("YOUTUBE_API_KEY", "test-key")
	t.Setenv("YOUTUBE_QUOTA_LIMIT", "5000")
	t.Setenv("YOUTUBE_SEARCH_INTERVAL", "15m")
	t.Setenv("TWITCH_RATE_LIMIT_SAFETY_THRESHOLD", "100")
	t.Setenv("BROKER_URL", "nats://localhost:4222")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("TASK_TIME_LIMIT", "120s")
	t.Setenv("DUCKDB_PATH", "/tmp/test.duckdb")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !cfg.YouTube.Enabled {
		t.Error("expected youtube enabled")
	}
	if cfg.YouTube.APIKey != "test-key" {
		t.Errorf("expected api key from env, got %q", cfg.YouTube.APIKey)
	}
	if cfg.YouTube.QuotaLimit != 5000 {
		t.Errorf("expected quota limit 5000, got %d", cfg.YouTube.QuotaLimit)
	}
	if cfg.YouTube.SearchInterval != 15*time.Minute {
		t.Errorf("expected search interval 15m, got %v", cfg.YouTube.SearchInterval)
	}
	if cfg.Twitch.RateLimitSafetyThreshold != 100 {
		t.Errorf("expected safety threshold 100, got %d", cfg.Twitch.RateLimitSafetyThreshold)
	}
	if cfg.Scheduler.BrokerURL != "nats://localhost:4222" {
		t.Errorf("expected broker url from env, got %q", cfg.Scheduler.BrokerURL)
	}
	if cfg.Scheduler.WorkerConcurrency != 8 {
		t.Errorf("expected worker concurrency 8, got %d", cfg.Scheduler.WorkerConcurrency)
	}
	if cfg.Scheduler.TaskTimeLimit != 120*time.Second {
		t.Errorf("expected task time limit 120s, got %v", cfg.Scheduler.TaskTimeLimit)
	}
	if cfg.Database.Path != "/tmp/test.duckdb" {
		t.Errorf("expected database path from env, got %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Logging.Level)
	}
}

func TestEnvSliceParsing(t *testing.T) {
	t.Setenv("YOUTUBE_KEYWORDS", "protest, rally ,march")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	want := []string{"protest", "rally", "march"}
	if len(cfg.YouTube.Keywords) != len(want) {
		t.Fatalf("expected %d keywords, got %d: %v", len(want), len(cfg.YouTube.Keywords), cfg.YouTube.Keywords)
	}
	for i, kw := range want {
		if cfg.YouTube.Keywords[i] != kw {
			t.Errorf("keyword[%d]: expected %q, got %q", i, kw, cfg.YouTube.Keywords[i])
		}
	}
	if len(cfg.API.CORSOrigins) != 2 {
		t.Errorf("expected 2 cors origins, got %v", cfg.API.CORSOrigins)
	}
}

func TestUnmappedEnvIgnored(t *testing.T) {
	t.Setenv("PATH_LIKE_NOISE", "should-not-leak")

	if got := envTransformFunc("PATH_LIKE_NOISE"); got != "" {
		t.Errorf("unmapped env var must transform to empty, got %q", got)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
youtube:
  quota_limit: 20000
twitch:
  requests_per_minute: 300
scheduler:
  rss_interval: 5m
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.YouTube.QuotaLimit != 20000 {
		t.Errorf("expected quota limit 20000 from file, got %d", cfg.YouTube.QuotaLimit)
	}
	if cfg.Twitch.RequestsPerMinute != 300 {
		t.Errorf("expected requests per minute 300 from file, got %d", cfg.Twitch.RequestsPerMinute)
	}
	if cfg.Scheduler.RSSInterval != 5*time.Minute {
		t.Errorf("expected rss interval 5m from file, got %v", cfg.Scheduler.RSSInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.YouTube.LivenessBatchSize != 50 {
		t.Errorf("expected default liveness batch 50, got %d", cfg.YouTube.LivenessBatchSize)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("youtube:\n  quota_limit: 20000\n"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("YOUTUBE_QUOTA_LIMIT", "7500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.YouTube.QuotaLimit != 7500 {
		t.Errorf("env must override file: expected 7500, got %d", cfg.YouTube.QuotaLimit)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(_ *Config) {}, false},
		{"youtube enabled without key", func(c *Config) { c.YouTube.Enabled = true }, true},
		{"youtube enabled with key", func(c *Config) {
			c.YouTube.Enabled = true
			c.YouTube.APIKey = "k"
		}, false},
		{"twitch enabled missing secret", func(c *Config) {
			c.Twitch.Enabled = true
			c.Twitch.ClientID = "id"
		}, true},
		{"negative quota", func(c *Config) { c.YouTube.QuotaLimit = -1 }, true},
		{"zero batch size", func(c *Config) { c.Twitch.LivenessBatchSize = 0 }, true},
		{"zero miss threshold", func(c *Config) { c.YouTube.LivenessMissThreshold = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Scheduler.WorkerConcurrency = 0 }, true},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, true},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
