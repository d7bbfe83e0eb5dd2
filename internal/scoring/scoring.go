// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

// Package scoring holds the derived-attribute functions over channels and
// streams: trust scoring, read-side relevance ranking, and polling-priority
// binning. Adapters use TrustScore to tag newly seen channels; the scheduler
// uses PriorityFor to bin channels into polling tiers.
package scoring

import (
	"math"
	"time"

	"github.com/streamlens/streamlens/internal/models"
)

// Trust score weights. History dominates slightly: an account that has
// demonstrably carried relevant broadcasts before outweighs raw age or reach.
const (
	weightAge     = 0.3
	weightReach   = 0.3
	weightHistory = 0.4
)

// DefaultHistory is the history component for channels with no curation
// signal. Seeded allowlist channels score HistoryTrusted instead.
const (
	DefaultHistory = 0.5
	HistoryTrusted = 1.0
)

// TrustScore combines account age, reach, and curation history into [0,1],
// rounded to two decimals.
//
//   - age component: min(1, age_days/365)
//   - reach component: min(1, log10(max(1, subs))/5), i.e. 100k subs = 1.0
//   - history component: DefaultHistory unless overridden by the allowlist
func TrustScore(accountCreatedAt *time.Time, subscriberCount int64, history float64, now time.Time) float64 {
	age := 0.0
	if accountCreatedAt != nil {
		ageDays := now.Sub(*accountCreatedAt).Hours() / 24
		age = math.Min(1.0, ageDays/365.0)
	}

	reach := 0.0
	if subscriberCount > 0 {
		reach = math.Min(1.0, math.Log10(math.Max(1, float64(subscriberCount)))/5.0)
	}

	score := weightAge*age + weightReach*reach + weightHistory*history
	return math.Round(score*100) / 100
}

// RelevanceScore ranks a stream for the read-side feed:
// 0.3*trust + 0.4*viewer_component + 0.3*keyword_component, where the viewer
// component saturates at 10k concurrent viewers and the keyword component at
// three distinct matches.
func RelevanceScore(trust float64, viewerCount int, matchedKeywords int) float64 {
	viewer := math.Min(1.0, math.Log10(math.Max(1, float64(viewerCount)))/4.0)
	keyword := math.Min(1.0, float64(matchedKeywords)/3.0)
	return 0.3*trust + 0.4*viewer + 0.3*keyword
}

// PriorityFor bins a channel by how recently it was last seen live.
// A channel never seen live is MEDIUM: it may simply be newly discovered.
func PriorityFor(lastLiveAt *time.Time, now time.Time) models.PollingPriority {
	if lastLiveAt == nil {
		return models.PriorityMedium
	}
	since := now.Sub(*lastLiveAt)
	switch {
	case since < 24*time.Hour:
		return models.PriorityHigh
	case since < 7*24*time.Hour:
		return models.PriorityMedium
	case since < 30*24*time.Hour:
		return models.PriorityLow
	default:
		return models.PriorityDead
	}
}

// PollInterval maps a priority bin to its per-channel poll period.
func PollInterval(p models.PollingPriority) time.Duration {
	switch p {
	case models.PriorityHigh:
		return 2 * time.Minute
	case models.PriorityMedium:
		return 30 * time.Minute
	case models.PriorityLow:
		return 6 * time.Hour
	default:
		return 24 * time.Hour
	}
}
