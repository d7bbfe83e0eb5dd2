// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package models

import (
	"time"

	"github.com/google/uuid"
)

// APIUsageRecord is an immutable audit row appended after every upstream
// operation. Operator-visible quota health is derived from these rows.
type APIUsageRecord struct {
	Platform      Platform  `json:"platform"`
	Endpoint      string    `json:"endpoint"`
	UnitsConsumed int       `json:"quota_units_consumed"`
	Success       bool      `json:"success"`
	ErrorMessage  *string   `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Follow links an anonymous device to a channel. (device_id, channel_id)
// is unique; following twice is a no-op.
type Follow struct {
	UserDeviceID string    `json:"user_device_id"`
	ChannelID    uuid.UUID `json:"channel_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Report is a moderation report against a stream. (stream_id, device_id)
// is unique; duplicate reports from the same device are ignored.
type Report struct {
	StreamID         uuid.UUID `json:"stream_id"`
	ReporterDeviceID string    `json:"reporter_device_id"`
	Reason           string    `json:"reason"`
	Notes            *string   `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
