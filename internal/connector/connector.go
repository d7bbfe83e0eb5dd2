// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

// Package connector defines the contract every platform adapter satisfies
// and the governance layer shared by all of them: quota accounting, sliding
// error tallies, and the pause/resume breaker that keeps the engine inside
// each upstream's budget.
package connector

import (
	"context"
	"time"

	"github.com/streamlens/streamlens/internal/models"
)

// Status is the operational state of a connector.
type Status string

const (
	// StatusActive means upstream calls are allowed.
	StatusActive Status = "active"
	// StatusPaused means a quota or rate-limit cool-off is in effect.
	StatusPaused Status = "paused"
	// StatusError means the error tally tripped the breaker.
	StatusError Status = "error"
	// StatusDisabled is set by configuration and never self-transitions.
	StatusDisabled Status = "disabled"
)

// Connector is the capability set every platform adapter implements.
// Discover is the expensive operation and may issue several upstream calls;
// CheckLiveness is the cheap batched one. Both must consult the Governor
// before touching upstream and return partial results when the budget runs
// out mid-call.
type Connector interface {
	// Authenticate acquires or refreshes whatever credential the upstream
	// requires. Adapters call it lazily before any call that needs it.
	Authenticate(ctx context.Context) error

	// Discover searches upstream for live streams matching the keywords and
	// returns them normalized and deduplicated by platform stream id.
	Discover(ctx context.Context, keywords []string) ([]models.Stream, error)

	// CheckLiveness returns exactly one update per requested id. Ids not
	// observed as live yield status ENDED with viewer count zero.
	CheckLiveness(ctx context.Context, ids []string) ([]models.StreamUpdate, error)

	// GetChannel fetches authoritative channel metadata with the trust
	// score already filled in. Returns nil when the channel does not exist.
	GetChannel(ctx context.Context, platformChannelID string) (*models.Channel, error)

	// Platform identifies the adapter.
	Platform() models.Platform

	// Governor exposes the adapter's governance counters.
	Governor() *Governor
}

// StatusInfo is a point-in-time snapshot of a connector's governance state,
// served by the status endpoint.
type StatusInfo struct {
	Platform      models.Platform `json:"platform"`
	Status        Status          `json:"status"`
	QuotaConsumed int64           `json:"quota_consumed"`
	QuotaLimit    int64           `json:"quota_limit"`
	ErrorTally    int             `json:"error_tally"`
	PausedUntil   *time.Time      `json:"paused_until,omitempty"`
	PauseReason   string          `json:"pause_reason,omitempty"`
}
