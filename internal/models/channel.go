// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the broadcaster identity on a platform.
//
// Identity is the natural key (platform, platform_channel_id); an internal
// UUID is minted by the catalog on first sight. Channels are created by the
// first connector that observes them, mutated by any connector of the same
// platform and by the priority-refresh task, and never deleted.
type Channel struct {
	ID                uuid.UUID       `json:"id"`
	Platform          Platform        `json:"platform"`
	PlatformChannelID string          `json:"platform_channel_id"`
	DisplayName       string          `json:"display_name"`
	AvatarURL         *string         `json:"avatar_url,omitempty"`
	TrustScore        float64         `json:"trust_score"`
	SubscriberCount   int64           `json:"subscriber_count"`
	AccountCreatedAt  *time.Time      `json:"account_created_at,omitempty"`
	LastScrapedAt     *time.Time      `json:"last_scraped_at,omitempty"`
	LastLiveAt        *time.Time      `json:"last_live_at,omitempty"`
	PollingPriority   PollingPriority `json:"polling_priority"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ChannelURL returns the public page URL for the channel on its platform.
func (c *Channel) ChannelURL() string {
	switch c.Platform {
	case PlatformYouTube:
		return "https://www.youtube.com/channel/" + c.PlatformChannelID
	case PlatformTwitch:
		return "https://www.twitch.tv/" + c.DisplayName
	default:
		return ""
	}
}

// RSSFeedURL returns the free-tier feed URL for platforms that expose one,
// or empty when the platform has no zero-cost feed.
func (c *Channel) RSSFeedURL() string {
	if c.Platform == PlatformYouTube {
		return "https://www.youtube.com/feeds/videos.xml?channel_id=" + c.PlatformChannelID
	}
	return ""
}

// SeedChannel is a manually curated allowlist entry. Seeded channels are
// monitored via free-tier feeds and score 1.0 on the trust history component.
type SeedChannel struct {
	ChannelID uuid.UUID `json:"channel_id"`
	Category  string    `json:"category"`
	Priority  int       `json:"priority"`
}
