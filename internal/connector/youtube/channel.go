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
	"time"

	"github.com/streamlens/streamlens/internal/models"
	"github.com/streamlens/streamlens/internal/scoring"
)

// GetChannel fetches authoritative channel metadata at 1 unit and fills in
// the trust score. Returns nil without error when the channel no longer
// exists.
func (c *Connector) GetChannel(ctx context.Context, platformChannelID string) (*models.Channel, error) {
	if !c.governor.IsOperational() {
		return nil, nil
	}
	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}
	if !c.governor.ConsumeQuota(costChannels) {
		return nil, nil
	}

	q := url.Values{}
	q.Set("part", "snippet,statistics")
	q.Set("id", platformChannelID)
	q.Set("key", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/channels?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build channels request: %w", err)
	}

	var resp channelListResponse
	if _, err := c.client.DoJSON(ctx, req, &resp); err != nil {
		c.governor.RecordError(err)
		return nil, fmt.Errorf("youtube channel fetch failed: %w", err)
	}
	c.governor.RecordSuccess()

	if len(resp.Items) == 0 {
		return nil, nil
	}
	item := resp.Items[0]
	if err := validate.Struct(&item); err != nil {
		return nil, fmt.Errorf("malformed youtube channel item: %w", err)
	}

	now := time.Now().UTC()
	createdAt := parseRFC3339(item.Snippet.PublishedAt)
	subs := parseCount(item.Statistics.SubscriberCount)

	history := scoring.DefaultHistory
	if c.isAllowlisted(item.ID) {
		history = scoring.HistoryTrusted
	}

	channel := &models.Channel{
		Platform:          models.PlatformYouTube,
		PlatformChannelID: item.ID,
		DisplayName:       item.Snippet.Title,
		SubscriberCount:   subs,
		AccountCreatedAt:  createdAt,
		TrustScore:        scoring.TrustScore(createdAt, subs, history, now),
		LastScrapedAt:     &now,
		PollingPriority:   models.PriorityMedium,
	}
	if avatar := item.Snippet.Thumbnails.best(); avatar != "" {
		channel.AvatarURL = &avatar
	}
	return channel, nil
}
