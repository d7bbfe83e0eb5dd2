// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package connector

import (
	"errors"
	"testing"
	"time"

	"github.com/streamlens/streamlens/internal/models"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGovernor(cfg GovernorConfig) (*Governor, *fakeClock) {
	g := NewGovernor(models.PlatformYouTube, cfg, nil)
	clock := &fakeClock{t: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
	g.now = clock.now
	return g, clock
}

func TestQuotaFirewall(t *testing.T) {
	g, _ := newTestGovernor(GovernorConfig{QuotaLimit: 100})

	if !g.ConsumeQuota(100) {
		t.Fatal("consuming exactly the limit must succeed")
	}
	if got := g.Status(); got != StatusActive {
		t.Errorf("expected ACTIVE after consuming to the limit, got %s", got)
	}

	if g.ConsumeQuota(1) {
		t.Fatal("consuming past the limit must fail")
	}
	if got := g.Status(); got != StatusPaused {
		t.Errorf("expected PAUSED after quota exhaustion, got %s", got)
	}
	if got := g.QuotaConsumed(); got != 100 {
		t.Errorf("failed debit must leave the counter untouched: got %d, want 100", got)
	}
}

func TestQuotaBoundary(t *testing.T) {
	g, _ := newTestGovernor(GovernorConfig{QuotaLimit: 10})

	if !g.ConsumeQuota(9) {
		t.Fatal("consume 9 of 10 must succeed")
	}
	if !g.ConsumeQuota(1) {
		t.Fatal("consumed + units == limit must succeed")
	}
	if g.ConsumeQuota(1) {
		t.Fatal("consumed + units == limit + 1 must fail")
	}
	if g.IsOperational() {
		t.Error("breaker must be tripped after the failing debit")
	}
}

func TestBreakerAutoClear(t *testing.T) {
	g, clock := newTestGovernor(GovernorConfig{QuotaCooloff: 60 * time.Second})

	g.PauseUntil(ReasonRateLimit, clock.now().Add(60*time.Second))

	clock.advance(30 * time.Second)
	if g.IsOperational() {
		t.Error("expected not operational at t=30s")
	}

	clock.advance(31 * time.Second)
	if !g.IsOperational() {
		t.Error("expected operational at t=61s")
	}
	if got := g.Status(); got != StatusActive {
		t.Errorf("expected ACTIVE after auto-clear, got %s", got)
	}
}

func TestErrorTallyTripsAtThreshold(t *testing.T) {
	g, _ := newTestGovernor(GovernorConfig{ErrorThreshold: 5, ErrorCooloff: 600 * time.Second})
	upstreamErr := errors.New("upstream unavailable")

	for i := 0; i < 4; i++ {
		g.RecordError(upstreamErr)
		if !g.IsOperational() {
			t.Fatalf("breaker must not trip at tally %d", i+1)
		}
	}

	g.RecordError(upstreamErr)
	if g.IsOperational() {
		t.Error("breaker must trip at the fifth error")
	}
	if got := g.Status(); got != StatusError {
		t.Errorf("expected ERROR status after tally trip, got %s", got)
	}
}

func TestRecordSuccessFloorsAtZero(t *testing.T) {
	g, _ := newTestGovernor(GovernorConfig{ErrorThreshold: 5})

	g.RecordError(errors.New("e1"))
	g.RecordError(errors.New("e2"))
	g.RecordSuccess()
	g.RecordSuccess()
	g.RecordSuccess() // past zero

	// Four more errors must be needed to trip again.
	for i := 0; i < 4; i++ {
		g.RecordError(errors.New("e"))
	}
	if !g.IsOperational() {
		t.Error("tally must have been floored at zero, four errors cannot trip a threshold of five")
	}
	g.RecordError(errors.New("e"))
	if g.IsOperational() {
		t.Error("fifth error after floor must trip")
	}
}

func TestResetQuotaClearsOnlyQuotaTrips(t *testing.T) {
	g, _ := newTestGovernor(GovernorConfig{QuotaLimit: 10, ErrorThreshold: 1, ErrorCooloff: 600 * time.Second})

	// Quota trip clears on reset.
	g.ConsumeQuota(10)
	g.ConsumeQuota(1)
	if g.IsOperational() {
		t.Fatal("expected quota trip")
	}
	g.ResetQuota()
	if !g.IsOperational() {
		t.Error("reset must clear a quota-tripped breaker")
	}
	if got := g.QuotaConsumed(); got != 0 {
		t.Errorf("reset must zero the counter, got %d", got)
	}

	// Error trip survives reset.
	g.RecordError(errors.New("boom"))
	if g.IsOperational() {
		t.Fatal("expected error trip")
	}
	g.ResetQuota()
	if g.IsOperational() {
		t.Error("reset must not clear an error-tripped breaker")
	}
}

func TestDisabledNeverOperational(t *testing.T) {
	g, clock := newTestGovernor(GovernorConfig{Disabled: true})

	if g.IsOperational() {
		t.Error("disabled governor must not be operational")
	}
	if g.ConsumeQuota(1) {
		t.Error("disabled governor must reject quota consumption")
	}
	clock.advance(24 * time.Hour)
	if g.IsOperational() {
		t.Error("disabled never self-transitions")
	}
	if got := g.Status(); got != StatusDisabled {
		t.Errorf("expected DISABLED, got %s", got)
	}
}

func TestUnmeteredPlatformNeverTripsOnQuota(t *testing.T) {
	g, _ := newTestGovernor(GovernorConfig{QuotaLimit: 0})

	for i := 0; i < 1000; i++ {
		if !g.ConsumeQuota(100) {
			t.Fatal("unmetered platform must always accept debits")
		}
	}
	if !g.IsOperational() {
		t.Error("unmetered platform must stay operational")
	}
}

func TestSnapshot(t *testing.T) {
	g, clock := newTestGovernor(GovernorConfig{QuotaLimit: 100})
	g.ConsumeQuota(40)
	g.RecordError(errors.New("transient"))

	info := g.Snapshot()
	if info.Platform != models.PlatformYouTube {
		t.Errorf("unexpected platform %s", info.Platform)
	}
	if info.QuotaConsumed != 40 || info.QuotaLimit != 100 {
		t.Errorf("unexpected quota snapshot: %d/%d", info.QuotaConsumed, info.QuotaLimit)
	}
	if info.ErrorTally != 1 {
		t.Errorf("expected error tally 1, got %d", info.ErrorTally)
	}
	if info.PausedUntil != nil {
		t.Error("active governor must not report a pause deadline")
	}

	deadline := clock.now().Add(time.Minute)
	g.PauseUntil(ReasonRateLimit, deadline)
	info = g.Snapshot()
	if info.PausedUntil == nil || !info.PausedUntil.Equal(deadline) {
		t.Errorf("expected pause deadline %v, got %v", deadline, info.PausedUntil)
	}
	if info.PauseReason != ReasonRateLimit {
		t.Errorf("expected pause reason %q, got %q", ReasonRateLimit, info.PauseReason)
	}
}

func TestStateStoreRoundTrip(t *testing.T) {
	store, err := OpenStateStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open state store: %v", err)
	}
	defer store.Close()

	state := &GovernorState{QuotaConsumed: 4200, ErrorTally: 2, PauseReason: ReasonQuotaExhausted}
	if err := store.Save(models.PlatformYouTube, state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.Load(models.PlatformYouTube)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected persisted state")
	}
	if loaded.QuotaConsumed != 4200 || loaded.ErrorTally != 2 {
		t.Errorf("round trip mismatch: %+v", loaded)
	}

	// Unknown platform yields nil without error.
	missing, err := store.Load(models.PlatformTwitch)
	if err != nil {
		t.Fatalf("load of missing key failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing platform, got %+v", missing)
	}
}
