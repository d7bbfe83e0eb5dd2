// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/streamlens/streamlens/internal/logging"
	"github.com/streamlens/streamlens/internal/metrics"
	"github.com/streamlens/streamlens/internal/models"
	"github.com/streamlens/streamlens/internal/scoring"
)

// Discover runs the expensive keyword search. One call costs 100 units plus
// 1 unit per 50 found videos for detail validation; at the default 30-minute
// cadence that is at most 4,848 units of the 10,000 daily budget.
func (c *Connector) Discover(ctx context.Context, keywords []string) ([]models.Stream, error) {
	if !c.governor.IsOperational() {
		return nil, nil
	}
	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}

	// Search calls are additionally spaced by a per-connector minimum
	// interval so a scheduler misconfiguration cannot burn the budget.
	c.mu.Lock()
	sinceLast := time.Since(c.lastSearch)
	if !c.lastSearch.IsZero() && sinceLast < c.cfg.SearchInterval {
		c.mu.Unlock()
		logging.Debug().
			Dur("since_last", sinceLast).
			Dur("min_interval", c.cfg.SearchInterval).
			Msg("skipping youtube search, last call too recent")
		return nil, nil
	}
	c.mu.Unlock()

	if len(keywords) == 0 {
		keywords = c.cfg.Keywords
	}
	if !c.governor.ConsumeQuota(costSearch) {
		return nil, nil
	}

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("type", "video")
	q.Set("eventType", "live")
	q.Set("q", buildQuery(keywords, c.cfg.ExcludeKeywords))
	q.Set("maxResults", "20")
	q.Set("relevanceLanguage", "en")
	q.Set("safeSearch", "none")
	q.Set("key", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	var resp searchResponse
	if _, err := c.client.DoJSON(ctx, req, &resp); err != nil {
		c.governor.RecordError(err)
		return nil, fmt.Errorf("youtube search failed: %w", err)
	}

	c.mu.Lock()
	c.lastSearch = time.Now()
	c.mu.Unlock()

	videoIDs := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID != "" {
			videoIDs = append(videoIDs, item.ID.VideoID)
		}
	}
	if len(videoIDs) == 0 {
		c.governor.RecordSuccess()
		return nil, nil
	}

	streams, err := c.fetchVideoDetails(ctx, videoIDs, keywords, models.DiscoverySearch)
	if err != nil {
		return streams, err
	}

	c.governor.RecordSuccess()
	metrics.StreamsDiscovered.WithLabelValues(string(models.PlatformYouTube), string(models.DiscoverySearch)).
		Add(float64(len(streams)))
	logging.Info().Int("streams", len(streams)).Msg("youtube search discovery complete")
	return streams, nil
}

// fetchVideoDetails validates candidate video ids through the cheap batch
// endpoint and normalizes the live ones. Partial results are returned when
// the budget runs out between batches.
func (c *Connector) fetchVideoDetails(ctx context.Context, videoIDs, keywords []string, method models.DiscoveryMethod) ([]models.Stream, error) {
	batchSize := c.cfg.LivenessBatchSize
	if batchSize <= 0 || batchSize > 50 {
		batchSize = 50
	}

	var streams []models.Stream
	seen := make(map[string]struct{}, len(videoIDs))

	for start := 0; start < len(videoIDs); start += batchSize {
		end := start + batchSize
		if end > len(videoIDs) {
			end = len(videoIDs)
		}
		if !c.governor.ConsumeQuota(costVideoList) {
			return streams, nil
		}

		items, err := c.listVideos(ctx, videoIDs[start:end])
		if err != nil {
			c.governor.RecordError(err)
			return streams, fmt.Errorf("youtube video validation failed: %w", err)
		}

		for i := range items {
			stream := c.parseVideo(&items[i], keywords, method)
			if stream == nil {
				continue
			}
			if _, dup := seen[stream.PlatformStreamID]; dup {
				continue
			}
			seen[stream.PlatformStreamID] = struct{}{}
			streams = append(streams, *stream)
		}
	}
	return streams, nil
}

// listVideos performs one videos.list call.
func (c *Connector) listVideos(ctx context.Context, ids []string) ([]videoItem, error) {
	q := url.Values{}
	q.Set("part", "snippet,liveStreamingDetails")
	q.Set("id", strings.Join(ids, ","))
	q.Set("key", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/videos?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build videos request: %w", err)
	}

	var resp videoListResponse
	if _, err := c.client.DoJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// parseVideo normalizes one API item into a Stream, or nil when the video
// never went live.
func (c *Connector) parseVideo(item *videoItem, keywords []string, method models.DiscoveryMethod) *models.Stream {
	if err := validate.Struct(item); err != nil {
		logging.Debug().Err(err).Str("video_id", item.ID).Msg("discarding malformed youtube video item")
		return nil
	}

	var status models.StreamStatus
	switch {
	case item.LiveStreamingDetails.ActualEndTime != "":
		status = models.StatusEnded
	case item.LiveStreamingDetails.ActualStartTime != "":
		status = models.StatusLive
	case item.LiveStreamingDetails.ScheduledStartTime != "":
		status = models.StatusUpcoming
	default:
		return nil
	}

	viewers := int(parseCount(item.LiveStreamingDetails.ConcurrentViewers))

	now := time.Now().UTC()
	history := scoring.DefaultHistory
	if c.isAllowlisted(item.Snippet.ChannelID) {
		history = scoring.HistoryTrusted
	}

	stream := &models.Stream{
		Platform:         models.PlatformYouTube,
		PlatformStreamID: item.ID,
		Title:            item.Snippet.Title,
		Status:           status,
		ViewerCount:      viewers,
		PeakViewerCount:  viewers,
		StartTime:        parseRFC3339(item.LiveStreamingDetails.ActualStartTime),
		EndTime:          parseRFC3339(item.LiveStreamingDetails.ActualEndTime),
		DetectedAt:       now,
		LastCheckedAt:    now,
		MatchedKeywords:  models.MatchKeywords(item.Snippet.Title+" "+item.Snippet.Description, keywords),
		DiscoveryMethod:  method,
		Channel: &models.Channel{
			Platform:          models.PlatformYouTube,
			PlatformChannelID: item.Snippet.ChannelID,
			DisplayName:       item.Snippet.ChannelTitle,
			TrustScore:        scoring.TrustScore(nil, 0, history, now),
			PollingPriority:   models.PriorityMedium,
		},
	}

	if item.Snippet.Description != "" {
		desc := item.Snippet.Description
		stream.Description = &desc
	}
	if thumb := item.Snippet.Thumbnails.best(); thumb != "" {
		stream.ThumbnailURL = &thumb
	}
	embed := "https://www.youtube.com/watch?v=" + item.ID
	stream.EmbedURL = &embed
	if lang := firstNonEmpty(item.Snippet.DefaultLanguage, item.Snippet.DefaultAudioLanguage); lang != "" {
		stream.Language = &lang
	}
	return stream
}

// buildQuery ORs the inclusion list and negates each exclusion term, the
// syntax the search endpoint expects.
func buildQuery(keywords, exclude []string) string {
	var b strings.Builder
	b.WriteString(strings.Join(models.NormalizeKeywords(keywords), " OR "))
	for _, ex := range models.NormalizeKeywords(exclude) {
		b.WriteString(" -")
		b.WriteString(ex)
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
