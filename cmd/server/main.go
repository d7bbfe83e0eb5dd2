// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

// Package main is the entry point for the Streamlens server.
//
// Streamlens aggregates live streams from YouTube and Twitch into a
// normalized catalog while staying inside each platform's API budget.
// The server initializes components in the following order:
//
//  1. Configuration: koanf v2 with layered sources (ENV > YAML > defaults)
//  2. Catalog: embedded DuckDB with the stream/channel schema
//  3. Governance: per-platform governors, optionally persisted to Badger
//  4. Connectors: one adapter per enabled platform
//  5. Scheduler: labeled task queues (in-process or NATS) plus tick loops
//  6. HTTP API: read-side feed, engagement endpoints, /metrics
//
// Everything runs under a suture supervision tree; SIGINT/SIGTERM
// trigger a graceful shutdown.
//
// Minimal configuration for a YouTube-only deployment:
//
//	export YOUTUBE_ENABLED=true
//	export YOUTUBE_API_KEY=your-api-key
//	export YOUTUBE_KEYWORDS="protest,rally"
//	./streamlens
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamlens/streamlens/internal/api"
	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/connector"
	"github.com/streamlens/streamlens/internal/connector/twitch"
	"github.com/streamlens/streamlens/internal/connector/youtube"
	"github.com/streamlens/streamlens/internal/database"
	"github.com/streamlens/streamlens/internal/logging"
	"github.com/streamlens/streamlens/internal/models"
	"github.com/streamlens/streamlens/internal/scheduler"
	"github.com/streamlens/streamlens/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Bool("youtube", cfg.YouTube.Enabled).
		Bool("twitch", cfg.Twitch.Enabled).
		Str("db_path", cfg.Database.Path).
		Msg("starting streamlens")

	db, err := database.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize catalog")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing catalog")
		}
	}()

	// Governance state is optional; without it quota counters restart
	// at zero on every boot.
	var store *connector.StateStore
	if cfg.Governance.StatePath != "" {
		store, err = connector.OpenStateStore(cfg.Governance.StatePath)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to open governance state store")
		}
		defer func() {
			if err := store.Close(); err != nil {
				logging.Error().Err(err).Msg("error closing governance state store")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectors, feeds := buildConnectors(ctx, cfg, db, store)
	if len(connectors) == 0 {
		logging.Warn().Msg("no platform connectors enabled, serving catalog read-only")
	}

	pubsub, err := scheduler.NewPubSub(cfg.Scheduler)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize task queues")
	}
	defer func() {
		if err := pubsub.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing task queues")
		}
	}()

	sched := scheduler.New(cfg, db, connectors, pubsub)
	if feeds != nil {
		sched.SetFeedDiscoverer(feeds)
	}

	httpServer := api.NewServer(cfg, db, connectors).NewHTTPServer()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddIngestService(sched)
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, cfg.Server.Timeout))

	logging.Info().
		Str("addr", httpServer.Addr).
		Int("connectors", len(connectors)).
		Msg("streamlens ready")

	errCh := tree.ServeBackground(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree exited with error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Fatal().Err(err).Msg("supervisor tree failed")
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop in time")
		}
	}
	logging.Info().Msg("shutdown complete")
}

// buildConnectors wires one adapter per enabled platform. The YouTube
// adapter is also returned as the RSS feed discoverer and seeded with
// the allowlist from the catalog.
func buildConnectors(ctx context.Context, cfg *config.Config, db *database.DB, store *connector.StateStore) (map[models.Platform]connector.Connector, scheduler.FeedDiscoverer) {
	connectors := make(map[models.Platform]connector.Connector)
	var feeds scheduler.FeedDiscoverer

	retry := connector.RetryConfig{
		Attempts: cfg.Scheduler.RetryAttempts,
		Delay:    cfg.Scheduler.RetryDelay,
		MaxDelay: cfg.Scheduler.RetryMaxDelay,
	}

	if cfg.YouTube.Enabled {
		gov := connector.NewGovernor(models.PlatformYouTube, connector.GovernorConfig{
			QuotaLimit:     cfg.YouTube.QuotaLimit,
			ErrorThreshold: cfg.Governance.ErrorThreshold,
			ErrorCooloff:   cfg.Governance.ErrorCooloff,
			QuotaCooloff:   cfg.Governance.QuotaCooloff,
		}, store)
		yt := youtube.New(cfg.YouTube, gov, connector.NewClient("youtube", 30*time.Second, retry))
		if seeds, err := db.GetSeedChannelIDs(ctx, models.PlatformYouTube); err != nil {
			logging.Warn().Err(err).Msg("failed to load youtube allowlist")
		} else {
			yt.SetAllowlist(seeds)
		}
		connectors[models.PlatformYouTube] = yt
		feeds = yt
		logging.Info().Int64("quota_limit", cfg.YouTube.QuotaLimit).Msg("youtube connector enabled")
	}

	if cfg.Twitch.Enabled {
		gov := connector.NewGovernor(models.PlatformTwitch, connector.GovernorConfig{
			ErrorThreshold: cfg.Governance.ErrorThreshold,
			ErrorCooloff:   cfg.Governance.ErrorCooloff,
			QuotaCooloff:   cfg.Governance.QuotaCooloff,
		}, store)
		connectors[models.PlatformTwitch] = twitch.New(cfg.Twitch, gov, connector.NewClient("twitch", 30*time.Second, retry))
		logging.Info().Int("requests_per_minute", cfg.Twitch.RequestsPerMinute).Msg("twitch connector enabled")
	}

	return connectors, feeds
}
