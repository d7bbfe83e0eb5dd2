// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/streamlens/streamlens/internal/metrics"
	"github.com/streamlens/streamlens/internal/models"
)

// Retention windows for the archive task.
const (
	streamRetention   = 7 * 24 * time.Hour
	usageLogRetention = 30 * 24 * time.Hour
)

// runDiscovery executes one discovery pass for a platform and folds the
// results into the catalog. Quota units are accounted from the governor
// delta so the usage log matches what the adapter actually spent.
func (s *Scheduler) runDiscovery(ctx context.Context, platform models.Platform) error {
	conn, ok := s.connectors[platform]
	if !ok {
		return fmt.Errorf("no connector for platform %s", platform)
	}
	gov := conn.Governor()
	if !gov.IsOperational() {
		s.log.Debug().Str("platform", platform.String()).Str("status", string(gov.Status())).
			Msg("discovery skipped, connector not operational")
		return nil
	}

	before := gov.QuotaConsumed()
	var streams []models.Stream
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var derr error
		streams, derr = conn.Discover(ctx, s.keywords(platform))
		return derr
	})
	s.logUsage(ctx, platform, "discover", gov.QuotaConsumed()-before, err)
	if err != nil {
		return fmt.Errorf("discovery failed for %s: %w", platform, err)
	}

	stored := 0
	for i := range streams {
		if _, uerr := s.db.UpsertStream(ctx, &streams[i]); uerr != nil {
			s.log.Error().Err(uerr).
				Str("platform", platform.String()).
				Str("stream", streams[i].PlatformStreamID).
				Msg("failed to store discovered stream")
			continue
		}
		stored++
		metrics.StreamsDiscovered.WithLabelValues(platform.String(), string(streams[i].DiscoveryMethod)).Inc()
	}

	s.log.Info().
		Str("platform", platform.String()).
		Int("found", len(streams)).
		Int("stored", stored).
		Int64("quota_units", gov.QuotaConsumed()-before).
		Msg("discovery pass complete")
	return nil
}

// runLiveness polls every tracked LIVE and UPCOMING stream of a
// platform through the cheap batch endpoint and applies the resulting
// state transitions.
func (s *Scheduler) runLiveness(ctx context.Context, platform models.Platform) error {
	conn, ok := s.connectors[platform]
	if !ok {
		return fmt.Errorf("no connector for platform %s", platform)
	}

	ids, err := s.db.GetLiveStreamIDs(ctx, platform)
	if err != nil {
		return fmt.Errorf("failed to load tracked streams: %w", err)
	}
	metrics.LivenessBatchSize.WithLabelValues(platform.String()).Observe(float64(len(ids)))
	if len(ids) == 0 {
		metrics.LiveStreams.WithLabelValues(platform.String()).Set(0)
		return nil
	}

	gov := conn.Governor()
	if !gov.IsOperational() {
		s.log.Debug().Str("platform", platform.String()).Str("status", string(gov.Status())).
			Msg("liveness skipped, connector not operational")
		return nil
	}

	before := gov.QuotaConsumed()
	var updates []models.StreamUpdate
	err = s.withRetry(ctx, func(ctx context.Context) error {
		var lerr error
		updates, lerr = conn.CheckLiveness(ctx, ids)
		return lerr
	})
	s.logUsage(ctx, platform, "liveness", gov.QuotaConsumed()-before, err)
	if err != nil {
		return fmt.Errorf("liveness poll failed for %s: %w", platform, err)
	}

	threshold := s.missThreshold(platform)
	ended := 0
	for _, update := range updates {
		status, aerr := s.db.ApplyStreamUpdate(ctx, platform, update, threshold)
		if aerr != nil {
			s.log.Error().Err(aerr).
				Str("platform", platform.String()).
				Str("stream", update.PlatformStreamID).
				Msg("failed to apply liveness update")
			continue
		}
		if status == models.StatusEnded || status == models.StatusRemoved {
			ended++
			metrics.StreamsEnded.WithLabelValues(platform.String()).Inc()
		}
	}

	if counts, cerr := s.db.CountLiveByPlatform(ctx); cerr == nil {
		metrics.LiveStreams.WithLabelValues(platform.String()).Set(float64(counts[platform]))
	}

	s.log.Info().
		Str("platform", platform.String()).
		Int("checked", len(ids)).
		Int("updates", len(updates)).
		Int("ended", ended).
		Msg("liveness pass complete")
	return nil
}

// runRSSSeed walks the seeded YouTube channels through their Atom feeds
// and validates fresh entries against the API. Feeds are free, so this
// loop keeps working after the search budget is gone.
func (s *Scheduler) runRSSSeed(ctx context.Context) error {
	if s.feeds == nil {
		return nil
	}
	seeds, err := s.db.GetSeedChannelIDs(ctx, models.PlatformYouTube)
	if err != nil {
		return fmt.Errorf("failed to load seed channels: %w", err)
	}
	if len(seeds) == 0 {
		return nil
	}

	var gov interface{ QuotaConsumed() int64 }
	if conn, ok := s.connectors[models.PlatformYouTube]; ok {
		gov = conn.Governor()
	}
	var before int64
	if gov != nil {
		before = gov.QuotaConsumed()
	}

	streams, err := s.feeds.DiscoverFromFeeds(ctx, seeds, s.cfg.YouTube.Keywords)
	if gov != nil {
		s.logUsage(ctx, models.PlatformYouTube, "rss-seed", gov.QuotaConsumed()-before, err)
	}
	if err != nil {
		return fmt.Errorf("rss seed pass failed: %w", err)
	}

	for i := range streams {
		if _, uerr := s.db.UpsertStream(ctx, &streams[i]); uerr != nil {
			s.log.Error().Err(uerr).Str("stream", streams[i].PlatformStreamID).
				Msg("failed to store rss-discovered stream")
			continue
		}
		metrics.StreamsDiscovered.WithLabelValues(models.PlatformYouTube.String(), string(models.DiscoveryRSS)).Inc()
	}

	s.log.Info().Int("seeds", len(seeds)).Int("found", len(streams)).Msg("rss seed pass complete")
	return nil
}

// runResetQuotas zeroes every governor at the platform's daily boundary
// and lifts quota pauses.
func (s *Scheduler) runResetQuotas(_ context.Context) error {
	for platform, conn := range s.connectors {
		conn.Governor().ResetQuota()
		s.log.Info().Str("platform", platform.String()).Msg("daily quota reset")
	}
	return nil
}

// runRefreshPriorities rebins channel polling priorities from recency.
func (s *Scheduler) runRefreshPriorities(ctx context.Context) error {
	changed, err := s.db.RefreshPollingPriorities(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to refresh polling priorities: %w", err)
	}
	if changed > 0 {
		s.log.Info().Int64("channels", changed).Msg("polling priorities refreshed")
	}
	return nil
}

// runArchive prunes long-ended streams and stale usage records.
func (s *Scheduler) runArchive(ctx context.Context) error {
	removed, err := s.db.ArchiveOldStreams(ctx, streamRetention)
	if err != nil {
		return fmt.Errorf("failed to archive streams: %w", err)
	}
	pruned, err := s.db.PruneUsageLog(ctx, usageLogRetention)
	if err != nil {
		return fmt.Errorf("failed to prune usage log: %w", err)
	}
	s.log.Info().Int64("streams", removed).Int64("usage_rows", pruned).Msg("archive pass complete")
	return nil
}

// withRetry re-runs fn with doubling delays. The adapter's HTTP client
// already retries transport hiccups; this layer covers whole-call
// failures such as an expired token mid-pass.
func (s *Scheduler) withRetry(ctx context.Context, fn func(context.Context) error) error {
	attempts := s.cfg.Scheduler.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := s.cfg.Scheduler.RetryDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("task call failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if max := s.cfg.Scheduler.RetryMaxDelay; max > 0 && delay > max {
			delay = max
		}
	}
	return err
}

// logUsage writes the per-pass quota accounting row. Failures here are
// logged, not propagated, so bookkeeping cannot fail a task.
func (s *Scheduler) logUsage(ctx context.Context, platform models.Platform, endpoint string, units int64, taskErr error) {
	rec := &models.APIUsageRecord{
		Platform:      platform,
		Endpoint:      endpoint,
		UnitsConsumed: int(units),
		Success:       taskErr == nil,
		CreatedAt:     time.Now().UTC(),
	}
	if taskErr != nil {
		msg := taskErr.Error()
		rec.ErrorMessage = &msg
	}
	if err := s.db.LogAPIUsage(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("platform", platform.String()).Msg("failed to log api usage")
	}
}

func (s *Scheduler) keywords(platform models.Platform) []string {
	switch platform {
	case models.PlatformYouTube:
		return s.cfg.YouTube.Keywords
	case models.PlatformTwitch:
		return s.cfg.Twitch.Keywords
	default:
		return nil
	}
}

func (s *Scheduler) missThreshold(platform models.Platform) int {
	switch platform {
	case models.PlatformYouTube:
		return s.cfg.YouTube.LivenessMissThreshold
	case models.PlatformTwitch:
		return s.cfg.Twitch.LivenessMissThreshold
	default:
		return 1
	}
}
