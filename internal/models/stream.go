// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stream is the canonical cross-platform record of a live broadcast.
//
// Identity is (channel_id, platform_stream_id); the catalog mints the
// internal UUID on first sight. Invariants maintained by the write path:
//
//   - PeakViewerCount >= ViewerCount at all observation times
//   - EndTime is nil iff Status is LIVE or UPCOMING
//   - DetectedAt <= LastCheckedAt
//   - MatchedKeywords is a set (no duplicates, order insignificant)
type Stream struct {
	ID               uuid.UUID       `json:"id"`
	ChannelID        uuid.UUID       `json:"channel_id"`
	Platform         Platform        `json:"platform"`
	PlatformStreamID string          `json:"platform_stream_id"`
	Title            string          `json:"title"`
	Description      *string         `json:"description,omitempty"`
	ThumbnailURL     *string         `json:"thumbnail_url,omitempty"`
	EmbedURL         *string         `json:"embed_url,omitempty"`
	Status           StreamStatus    `json:"status"`
	ViewerCount      int             `json:"viewer_count"`
	PeakViewerCount  int             `json:"peak_viewer_count"`
	StartTime        *time.Time      `json:"start_time,omitempty"`
	EndTime          *time.Time      `json:"end_time,omitempty"`
	DetectedAt       time.Time       `json:"detected_at"`
	LastCheckedAt    time.Time       `json:"last_checked_at"`
	MatchedKeywords  []string        `json:"matched_keywords"`
	Language         *string         `json:"language,omitempty"`
	GeoCity          *string         `json:"geo_city,omitempty"`
	GeoRegion        *string         `json:"geo_region,omitempty"`
	GeoCountry       *string         `json:"geo_country,omitempty"`
	DiscoveryMethod  DiscoveryMethod `json:"discovery_method"`
	IsHidden         bool            `json:"is_hidden"`
	ReportCount      int             `json:"report_count"`
	MissCount        int             `json:"miss_count"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Channel carries the broadcaster identity observed alongside the stream.
	// Populated by adapters at discovery time so the catalog can ensure the
	// channel row exists before the stream upsert; read queries join it back.
	Channel *Channel `json:"channel,omitempty"`
}

// StreamUpdate is the ephemeral value produced by one liveness poll. It is
// never persisted; the catalog folds it into the Stream row.
type StreamUpdate struct {
	PlatformStreamID string       `json:"platform_stream_id"`
	ViewerCount      int          `json:"viewer_count"`
	Status           StreamStatus `json:"status"`
	LastCheckedAt    time.Time    `json:"last_checked_at"`
}

// NormalizeKeywords lowercases, trims, and deduplicates a keyword list,
// preserving a stable (sorted) order. Used by adapters before surfacing
// MatchedKeywords so the set invariant holds at the boundary.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

// MatchKeywords returns the distinct keywords that occur as case-insensitive
// substrings of title.
func MatchKeywords(title string, keywords []string) []string {
	lower := strings.ToLower(title)
	var matched []string
	for _, kw := range NormalizeKeywords(keywords) {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// NormalizeThumbnailURL substitutes templated size placeholders with the
// fixed 1280x720 rendition adapters must surface.
func NormalizeThumbnailURL(raw string) string {
	r := strings.NewReplacer("{width}", "1280", "{height}", "720")
	return r.Replace(raw)
}
