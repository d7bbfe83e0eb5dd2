// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package twitch

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/streamlens/streamlens/internal/logging"
	"github.com/streamlens/streamlens/internal/models"
	"github.com/streamlens/streamlens/internal/scoring"
)

// GetChannel fetches broadcaster metadata from /users and the follower
// total from /channels/followers, then fills in the trust score. Returns
// nil without error when the user does not exist.
func (c *Connector) GetChannel(ctx context.Context, platformChannelID string) (*models.Channel, error) {
	if !c.governor.IsOperational() {
		return nil, nil
	}

	q := url.Values{}
	q.Set("id", platformChannelID)

	var resp usersResponse
	if err := c.helixGet(ctx, "/users", q, &resp); err != nil {
		c.governor.RecordError(err)
		return nil, fmt.Errorf("twitch user fetch failed: %w", err)
	}
	c.governor.RecordSuccess()

	if len(resp.Data) == 0 {
		return nil, nil
	}
	item := resp.Data[0]
	if err := validate.Struct(&item); err != nil {
		return nil, fmt.Errorf("malformed twitch user item: %w", err)
	}

	// Follower count is best effort; a failure here must not lose the
	// channel metadata already in hand.
	var followers int64
	fq := url.Values{}
	fq.Set("broadcaster_id", platformChannelID)
	var fresp followersResponse
	if err := c.helixGet(ctx, "/channels/followers", fq, &fresp); err != nil {
		logging.Warn().Err(err).Str("user_id", platformChannelID).Msg("twitch follower fetch failed")
	} else {
		followers = fresp.Total
	}

	now := time.Now().UTC()
	createdAt := parseRFC3339(item.CreatedAt)

	channel := &models.Channel{
		Platform:          models.PlatformTwitch,
		PlatformChannelID: item.ID,
		DisplayName:       item.DisplayName,
		SubscriberCount:   followers,
		AccountCreatedAt:  createdAt,
		TrustScore:        scoring.TrustScore(createdAt, followers, scoring.DefaultHistory, now),
		LastScrapedAt:     &now,
		PollingPriority:   models.PriorityMedium,
	}
	if item.ProfileImageURL != "" {
		avatar := item.ProfileImageURL
		channel.AvatarURL = &avatar
	}
	return channel, nil
}
