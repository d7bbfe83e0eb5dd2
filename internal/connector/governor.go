// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package connector

import (
	"sync"
	"time"

	"github.com/streamlens/streamlens/internal/logging"
	"github.com/streamlens/streamlens/internal/metrics"
	"github.com/streamlens/streamlens/internal/models"
)

// Pause reasons recorded when the breaker trips.
const (
	ReasonQuotaExhausted = "quota exhausted"
	ReasonErrorThreshold = "error threshold"
	ReasonRateLimit      = "rate limit"
)

// GovernorConfig configures a Governor.
type GovernorConfig struct {
	// QuotaLimit is the daily unit budget. Zero or negative means the
	// platform is not quota metered; units are still tallied for reporting.
	QuotaLimit int64

	// ErrorThreshold trips the breaker once the sliding tally reaches it.
	ErrorThreshold int

	// ErrorCooloff is the pause after an error-tally trip.
	ErrorCooloff time.Duration

	// QuotaCooloff is the pause after a quota-exhaustion trip.
	QuotaCooloff time.Duration

	// Disabled marks the connector off by configuration. A disabled
	// governor never becomes operational.
	Disabled bool
}

// Governor holds a connector's governance counters: the quota consumed
// today, the sliding error tally, and the pause deadline. All mutation is
// serialized behind one mutex so a quota check and its debit are atomic.
type Governor struct {
	platform models.Platform
	cfg      GovernorConfig
	store    *StateStore

	mu          sync.Mutex
	consumed    int64
	errorTally  int
	pausedUntil time.Time
	pauseReason string

	// now is swapped in tests to control deadline expiry.
	now func() time.Time
}

// NewGovernor creates a Governor with counters at zero. A non-nil store
// restores persisted counters so quota accounting survives restarts.
func NewGovernor(platform models.Platform, cfg GovernorConfig, store *StateStore) *Governor {
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = 5
	}
	if cfg.ErrorCooloff <= 0 {
		cfg.ErrorCooloff = 600 * time.Second
	}
	if cfg.QuotaCooloff <= 0 {
		cfg.QuotaCooloff = 300 * time.Second
	}

	g := &Governor{
		platform: platform,
		cfg:      cfg,
		store:    store,
		now:      time.Now,
	}

	if store != nil {
		if state, err := store.Load(platform); err != nil {
			logging.Warn().Err(err).Str("platform", string(platform)).Msg("failed to restore governance state")
		} else if state != nil {
			g.consumed = state.QuotaConsumed
			g.errorTally = state.ErrorTally
			g.pausedUntil = state.PausedUntil
			g.pauseReason = state.PauseReason
		}
	}

	metrics.RecordQuota(string(platform), g.consumed, cfg.QuotaLimit)
	return g
}

// ConsumeQuota atomically debits units from the daily budget. If the debit
// would exceed the limit the counter is left untouched, the breaker trips
// with the quota cool-off, and false is returned. Consuming exactly up to
// the limit succeeds.
func (g *Governor) ConsumeQuota(units int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cfg.Disabled {
		return false
	}

	if g.cfg.QuotaLimit > 0 && g.consumed+units > g.cfg.QuotaLimit {
		logging.Warn().
			Str("platform", string(g.platform)).
			Int64("consumed", g.consumed).
			Int64("requested", units).
			Int64("limit", g.cfg.QuotaLimit).
			Msg("quota exhausted, pausing connector")
		metrics.QuotaExhaustions.WithLabelValues(string(g.platform)).Inc()
		g.trip(ReasonQuotaExhausted, g.now().Add(g.cfg.QuotaCooloff))
		return false
	}

	g.consumed += units
	metrics.RecordQuota(string(g.platform), g.consumed, g.cfg.QuotaLimit)
	g.persist()
	return true
}

// ResetQuota zeroes the consumed counter. If the breaker was tripped by
// quota exhaustion it clears too; error and rate-limit pauses stand.
func (g *Governor) ResetQuota() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consumed = 0
	if g.pauseReason == ReasonQuotaExhausted {
		g.pausedUntil = time.Time{}
		g.pauseReason = ""
	}
	metrics.RecordQuota(string(g.platform), 0, g.cfg.QuotaLimit)
	g.persist()

	logging.Info().Str("platform", string(g.platform)).Msg("daily quota reset")
}

// RecordError increments the error tally; reaching the threshold trips the
// breaker for the error cool-off.
func (g *Governor) RecordError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.errorTally++
	logging.Warn().
		Err(err).
		Str("platform", string(g.platform)).
		Int("tally", g.errorTally).
		Msg("connector error recorded")

	if g.errorTally >= g.cfg.ErrorThreshold && g.pausedUntil.IsZero() {
		g.trip(ReasonErrorThreshold, g.now().Add(g.cfg.ErrorCooloff))
	}
	g.persist()
}

// RecordSuccess decrements the error tally, floored at zero.
func (g *Governor) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.errorTally > 0 {
		g.errorTally--
		g.persist()
	}
}

// PauseUntil trips the breaker until an externally declared deadline, used
// when rate-limit headers show the remaining budget under the safety
// threshold.
func (g *Governor) PauseUntil(reason string, deadline time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trip(reason, deadline)
	g.persist()
}

// IsOperational reports whether upstream calls are allowed. An expired
// pause deadline auto-clears on the first check past it.
func (g *Governor) IsOperational() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cfg.Disabled {
		return false
	}
	if g.pausedUntil.IsZero() {
		return true
	}
	if g.now().Before(g.pausedUntil) {
		return false
	}

	logging.Info().
		Str("platform", string(g.platform)).
		Str("reason", g.pauseReason).
		Msg("pause expired, resuming connector")
	g.pausedUntil = time.Time{}
	g.pauseReason = ""
	metrics.RecordConnectorStatus(string(g.platform), string(StatusActive))
	g.persist()
	return true
}

// Status reports the current operational state without mutating it.
func (g *Governor) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.cfg.Disabled:
		return StatusDisabled
	case g.pausedUntil.IsZero() || !g.now().Before(g.pausedUntil):
		return StatusActive
	case g.pauseReason == ReasonErrorThreshold:
		return StatusError
	default:
		return StatusPaused
	}
}

// Snapshot returns a point-in-time view for the status endpoint.
func (g *Governor) Snapshot() StatusInfo {
	status := g.Status()

	g.mu.Lock()
	defer g.mu.Unlock()

	info := StatusInfo{
		Platform:      g.platform,
		Status:        status,
		QuotaConsumed: g.consumed,
		QuotaLimit:    g.cfg.QuotaLimit,
		ErrorTally:    g.errorTally,
	}
	if !g.pausedUntil.IsZero() && g.now().Before(g.pausedUntil) {
		until := g.pausedUntil
		info.PausedUntil = &until
		info.PauseReason = g.pauseReason
	}
	return info
}

// QuotaConsumed returns the units debited since the last reset.
func (g *Governor) QuotaConsumed() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.consumed
}

// trip sets the pause deadline. Caller holds the lock.
func (g *Governor) trip(reason string, deadline time.Time) {
	g.pausedUntil = deadline
	g.pauseReason = reason

	status := StatusPaused
	if reason == ReasonErrorThreshold {
		status = StatusError
	}
	metrics.RecordConnectorStatus(string(g.platform), string(status))
	metrics.ConnectorPauses.WithLabelValues(string(g.platform), pauseLabel(reason)).Inc()

	logging.Warn().
		Str("platform", string(g.platform)).
		Str("reason", reason).
		Time("until", deadline).
		Msg("connector paused")
}

// persist writes counters to the state store. Caller holds the lock.
func (g *Governor) persist() {
	if g.store == nil {
		return
	}
	state := &GovernorState{
		QuotaConsumed: g.consumed,
		ErrorTally:    g.errorTally,
		PausedUntil:   g.pausedUntil,
		PauseReason:   g.pauseReason,
	}
	if err := g.store.Save(g.platform, state); err != nil {
		logging.Warn().Err(err).Str("platform", string(g.platform)).Msg("failed to persist governance state")
	}
}

func pauseLabel(reason string) string {
	switch reason {
	case ReasonQuotaExhausted:
		return "quota_exhausted"
	case ReasonErrorThreshold:
		return "error_threshold"
	default:
		return "rate_limit"
	}
}
