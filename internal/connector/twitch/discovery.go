// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package twitch

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/streamlens/streamlens/internal/logging"
	"github.com/streamlens/streamlens/internal/metrics"
	"github.com/streamlens/streamlens/internal/models"
	"github.com/streamlens/streamlens/internal/scoring"
)

// searchKeywordLimit caps per-keyword channel searches in one discovery run.
const searchKeywordLimit = 5

// Discover combines two strategies and deduplicates the union:
//
//  1. keyword channel search through /search/channels
//  2. a scan of the news categories with a client-side title filter
//
// Errors in one strategy do not abort the other; partial results are
// returned with the first error encountered.
func (c *Connector) Discover(ctx context.Context, keywords []string) ([]models.Stream, error) {
	if !c.governor.IsOperational() {
		return nil, nil
	}
	if len(keywords) == 0 {
		keywords = c.cfg.Keywords
	}
	keywords = models.NormalizeKeywords(keywords)

	var all []models.Stream
	var firstErr error

	searched, err := c.searchChannels(ctx, keywords)
	if err != nil {
		firstErr = err
	}
	all = append(all, searched...)

	if c.governor.IsOperational() {
		scanned, err := c.scanCategories(ctx, keywords)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		all = append(all, scanned...)
	}

	seen := make(map[string]struct{}, len(all))
	unique := all[:0]
	for _, s := range all {
		if _, dup := seen[s.PlatformStreamID]; dup {
			continue
		}
		seen[s.PlatformStreamID] = struct{}{}
		unique = append(unique, s)
	}

	metrics.StreamsDiscovered.WithLabelValues(string(models.PlatformTwitch), string(models.DiscoverySearch)).
		Add(float64(len(unique)))
	logging.Info().Int("streams", len(unique)).Msg("twitch discovery complete")
	return unique, firstErr
}

// searchChannels queries /search/channels per keyword and resolves live
// hits to full stream records.
func (c *Connector) searchChannels(ctx context.Context, keywords []string) ([]models.Stream, error) {
	limit := searchKeywordLimit
	if len(keywords) < limit {
		limit = len(keywords)
	}

	var streams []models.Stream
	for _, keyword := range keywords[:limit] {
		if !c.governor.IsOperational() {
			return streams, nil
		}

		q := url.Values{}
		q.Set("query", keyword)
		q.Set("live_only", "true")
		q.Set("first", "20")

		var resp searchChannelsResponse
		if err := c.helixGet(ctx, "/search/channels", q, &resp); err != nil {
			c.governor.RecordError(err)
			return streams, err
		}
		c.governor.RecordSuccess()

		var liveUserIDs []string
		for _, item := range resp.Data {
			if item.IsLive && item.ID != "" {
				liveUserIDs = append(liveUserIDs, item.ID)
			}
		}
		if len(liveUserIDs) == 0 {
			continue
		}

		// One /streams call resolves all hits for this keyword.
		q = url.Values{}
		for _, id := range liveUserIDs {
			q.Add("user_id", id)
		}
		var live streamsResponse
		if err := c.helixGet(ctx, "/streams", q, &live); err != nil {
			c.governor.RecordError(err)
			return streams, err
		}
		c.governor.RecordSuccess()

		for i := range live.Data {
			if s := c.parseStream(&live.Data[i], []string{keyword}); s != nil {
				streams = append(streams, *s)
			}
		}
	}
	return streams, nil
}

// scanCategories pulls the top live streams of each news category and keeps
// only the ones whose title matches a requested keyword.
func (c *Connector) scanCategories(ctx context.Context, keywords []string) ([]models.Stream, error) {
	var streams []models.Stream

	for gameID, categoryName := range newsCategories {
		if !c.governor.IsOperational() {
			return streams, nil
		}

		q := url.Values{}
		q.Set("game_id", gameID)
		q.Set("first", "100")
		q.Set("type", "live")

		var resp streamsResponse
		if err := c.helixGet(ctx, "/streams", q, &resp); err != nil {
			c.governor.RecordError(err)
			logging.Warn().Err(err).Str("category", categoryName).Msg("twitch category scan failed")
			return streams, err
		}
		c.governor.RecordSuccess()

		for i := range resp.Data {
			matched := models.MatchKeywords(resp.Data[i].Title, keywords)
			if len(matched) == 0 {
				continue
			}
			if s := c.parseStream(&resp.Data[i], matched); s != nil {
				streams = append(streams, *s)
			}
		}
	}
	return streams, nil
}

// parseStream normalizes one Helix stream item. The broadcaster user id is
// the platform stream id: Twitch streams have no stable per-broadcast id
// that the cheap liveness endpoint accepts.
func (c *Connector) parseStream(item *streamItem, matchedKeywords []string) *models.Stream {
	if err := validate.Struct(item); err != nil {
		logging.Debug().Err(err).Msg("discarding malformed twitch stream item")
		return nil
	}

	now := time.Now().UTC()
	channelURL := "https://www.twitch.tv/" + strings.ToLower(item.UserName)

	stream := &models.Stream{
		Platform:         models.PlatformTwitch,
		PlatformStreamID: item.UserID,
		Title:            item.Title,
		Status:           models.StatusLive,
		ViewerCount:      item.ViewerCount,
		PeakViewerCount:  item.ViewerCount,
		StartTime:        parseRFC3339(item.StartedAt),
		DetectedAt:       now,
		LastCheckedAt:    now,
		MatchedKeywords:  models.NormalizeKeywords(matchedKeywords),
		DiscoveryMethod:  models.DiscoverySearch,
		EmbedURL:         &channelURL,
		Channel: &models.Channel{
			Platform:          models.PlatformTwitch,
			PlatformChannelID: item.UserID,
			DisplayName:       item.UserName,
			TrustScore:        scoring.TrustScore(nil, 0, scoring.DefaultHistory, now),
			PollingPriority:   models.PriorityMedium,
		},
	}
	if item.ThumbnailURL != "" {
		thumb := models.NormalizeThumbnailURL(item.ThumbnailURL)
		stream.ThumbnailURL = &thumb
	}
	if item.Language != "" {
		lang := item.Language
		stream.Language = &lang
	}
	return stream
}
