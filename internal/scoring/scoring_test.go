// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/streamlens/streamlens/internal/models"
)

func TestTrustScoreKnownInputs(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	// Two-year-old account, 100k subscribers, default history.
	// age=1.0, reach=1.0, history=0.5 -> 0.3 + 0.3 + 0.2 = 0.80
	created := now.AddDate(-2, 0, 0)
	got := TrustScore(&created, 100_000, DefaultHistory, now)
	if got != 0.80 {
		t.Errorf("expected trust 0.80, got %v", got)
	}
}

func TestTrustScoreNewAccountNoSubs(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	created := now

	// age=0, reach=0, history=0.5 -> 0.20
	got := TrustScore(&created, 0, DefaultHistory, now)
	if got != 0.20 {
		t.Errorf("expected trust 0.20, got %v", got)
	}
}

func TestTrustScoreNilCreatedAt(t *testing.T) {
	now := time.Now()
	got := TrustScore(nil, 1000, DefaultHistory, now)

	// age=0, reach=log10(1000)/5=0.6, history=0.5 -> 0.18+0.20 = 0.38
	if got != 0.38 {
		t.Errorf("expected trust 0.38, got %v", got)
	}
}

func TestTrustScoreAllowlisted(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(-5, 0, 0)

	got := TrustScore(&created, 1_000_000, HistoryTrusted, now)
	if got != 1.0 {
		t.Errorf("expected trust 1.0 for old allowlisted channel with reach, got %v", got)
	}
}

func TestTrustScoreBounds(t *testing.T) {
	now := time.Now()
	ancient := now.AddDate(-20, 0, 0)

	for _, subs := range []int64{0, 1, 100, 1_000_000_000} {
		got := TrustScore(&ancient, subs, HistoryTrusted, now)
		if got < 0 || got > 1 {
			t.Errorf("trust score out of [0,1] for subs=%d: %v", subs, got)
		}
	}
}

func TestTrustScoreRounding(t *testing.T) {
	now := time.Now()
	created := now.AddDate(0, 0, -100)

	got := TrustScore(&created, 777, DefaultHistory, now)
	if math.Abs(got*100-math.Round(got*100)) > 1e-9 {
		t.Errorf("trust score not rounded to two decimals: %v", got)
	}
}

func TestRelevanceScore(t *testing.T) {
	// trust=1, 10k viewers (saturated), 3 keywords (saturated) -> 1.0
	got := RelevanceScore(1.0, 10_000, 3)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected relevance 1.0, got %v", got)
	}

	// Zero everything -> 0.
	if got := RelevanceScore(0, 0, 0); got != 0 {
		t.Errorf("expected relevance 0, got %v", got)
	}

	// More viewers never lowers the score.
	low := RelevanceScore(0.5, 100, 1)
	high := RelevanceScore(0.5, 5000, 1)
	if high <= low {
		t.Errorf("relevance must grow with viewers: %v <= %v", high, low)
	}
}

func TestPriorityFor(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		last *time.Time
		want models.PollingPriority
	}{
		{"never live", nil, models.PriorityMedium},
		{"one hour ago", ptr(now.Add(-time.Hour)), models.PriorityHigh},
		{"just under a day", ptr(now.Add(-23 * time.Hour)), models.PriorityHigh},
		{"two days ago", ptr(now.AddDate(0, 0, -2)), models.PriorityMedium},
		{"two weeks ago", ptr(now.AddDate(0, 0, -14)), models.PriorityLow},
		{"two months ago", ptr(now.AddDate(0, -2, 0)), models.PriorityDead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PriorityFor(tt.last, now); got != tt.want {
				t.Errorf("PriorityFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPollIntervalOrdering(t *testing.T) {
	high := PollInterval(models.PriorityHigh)
	medium := PollInterval(models.PriorityMedium)
	low := PollInterval(models.PriorityLow)
	dead := PollInterval(models.PriorityDead)

	if !(high < medium && medium < low && low < dead) {
		t.Errorf("poll intervals must grow with staleness: %v %v %v %v", high, medium, low, dead)
	}
}

func ptr(t time.Time) *time.Time { return &t }
