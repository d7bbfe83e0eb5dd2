// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/streamlens/streamlens/internal/logging"
	"github.com/streamlens/streamlens/internal/metrics"
	"github.com/streamlens/streamlens/internal/models"
)

// Feed entries older than this are not worth validating; the channel was
// simply uploading a regular video.
const feedFreshness = 2 * time.Hour

// feedEntryLimit bounds how many entries per feed are considered.
const feedEntryLimit = 5

// atomFeed is the subset of the per-channel upload feed the monitor reads.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	VideoID   string `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	Title     string `xml:"title"`
	Published string `xml:"published"`
}

// DiscoverFromFeeds polls the upload feeds of seeded channels. Feeds cost
// nothing; candidate video ids found there are validated through the batch
// endpoint at 1 unit per 50, so a positive hit surfaces minutes before the
// next paid search would find it.
func (c *Connector) DiscoverFromFeeds(ctx context.Context, channelIDs, keywords []string) ([]models.Stream, error) {
	if !c.governor.IsOperational() || len(channelIDs) == 0 {
		return nil, nil
	}

	var candidates []string
	for _, channelID := range channelIDs {
		ids, err := c.fetchFeed(ctx, channelID)
		if err != nil {
			// A single broken feed must not abort the sweep.
			logging.Warn().Err(err).Str("channel_id", channelID).Msg("feed poll failed")
			continue
		}
		candidates = append(candidates, ids...)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	streams, err := c.fetchVideoDetails(ctx, candidates, keywords, models.DiscoveryRSS)
	if err != nil {
		return streams, err
	}

	metrics.StreamsDiscovered.WithLabelValues(string(models.PlatformYouTube), string(models.DiscoveryRSS)).
		Add(float64(len(streams)))
	logging.Info().
		Int("channels", len(channelIDs)).
		Int("candidates", len(candidates)).
		Int("streams", len(streams)).
		Msg("feed discovery complete")
	return streams, nil
}

// fetchFeed returns the recent video ids from one channel's upload feed.
func (c *Connector) fetchFeed(ctx context.Context, channelID string) ([]string, error) {
	feedURL := c.feedBaseURL + "?channel_id=" + url.QueryEscape(channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}

	body, err := c.client.DoRaw(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("feed fetch failed: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	cutoff := time.Now().UTC().Add(-feedFreshness)
	var ids []string

	entries := feed.Entries
	if len(entries) > feedEntryLimit {
		entries = entries[:feedEntryLimit]
	}
	for _, entry := range entries {
		if entry.VideoID == "" {
			continue
		}
		published := parseRFC3339(entry.Published)
		if published == nil || published.Before(cutoff) {
			continue
		}
		ids = append(ids, entry.VideoID)
	}
	return ids, nil
}
