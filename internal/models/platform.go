// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package models

import "fmt"

// Platform identifies a supported upstream streaming platform.
// The set is closed: unknown values are rejected at the boundary by
// ParsePlatform rather than propagated as free-form strings.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformTwitch  Platform = "twitch"
)

// Platforms lists every supported platform in a stable order.
func Platforms() []Platform {
	return []Platform{PlatformYouTube, PlatformTwitch}
}

// ParsePlatform validates a raw platform string.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformYouTube:
		return PlatformYouTube, nil
	case PlatformTwitch:
		return PlatformTwitch, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

func (p Platform) String() string {
	return string(p)
}

// StreamStatus is the lifecycle status of a stream.
//
// The lifecycle is a DAG: UPCOMING -> LIVE -> ENDED. REMOVED may be entered
// from any state. ENDED and REMOVED are terminal: a stream with the same
// (platform, platform_stream_id) is never resurrected to LIVE.
type StreamStatus string

const (
	StatusLive     StreamStatus = "LIVE"
	StatusUpcoming StreamStatus = "UPCOMING"
	StatusEnded    StreamStatus = "ENDED"
	StatusRemoved  StreamStatus = "REMOVED"
)

// ParseStreamStatus validates a raw status string.
func ParseStreamStatus(s string) (StreamStatus, error) {
	switch StreamStatus(s) {
	case StatusLive, StatusUpcoming, StatusEnded, StatusRemoved:
		return StreamStatus(s), nil
	default:
		return "", fmt.Errorf("unknown stream status %q", s)
	}
}

// IsTerminal reports whether the status can never transition again.
func (s StreamStatus) IsTerminal() bool {
	return s == StatusEnded || s == StatusRemoved
}

// IsActive reports whether the stream still needs liveness polling.
func (s StreamStatus) IsActive() bool {
	return s == StatusLive || s == StatusUpcoming
}

// DiscoveryMethod tags how a stream entered the catalog.
type DiscoveryMethod string

const (
	DiscoverySearch     DiscoveryMethod = "search"
	DiscoveryRSS        DiscoveryMethod = "rss"
	DiscoverySubmission DiscoveryMethod = "submission"
	DiscoverySignal     DiscoveryMethod = "signal"
)

// PollingPriority bins a channel into a polling tier derived from recent
// live activity. The priority-refresh task recomputes bins in bulk.
type PollingPriority string

const (
	PriorityHigh   PollingPriority = "high"   // live within 24h, poll every 2 min
	PriorityMedium PollingPriority = "medium" // live within 7d or unknown, 30 min
	PriorityLow    PollingPriority = "low"    // live within 30d, 6h
	PriorityDead   PollingPriority = "dead"   // older, 24h
)
