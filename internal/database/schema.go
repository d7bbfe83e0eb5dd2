// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext bounds schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates the catalog tables and indexes. All columns are
// defined up front; there are no migrations yet.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS channels (
			id UUID PRIMARY KEY,
			platform TEXT NOT NULL,
			platform_channel_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			avatar_url TEXT,
			trust_score DOUBLE NOT NULL DEFAULT 0,
			subscriber_count BIGINT NOT NULL DEFAULT 0,
			account_created_at TIMESTAMP,
			last_scraped_at TIMESTAMP,
			last_live_at TIMESTAMP,
			polling_priority TEXT NOT NULL DEFAULT 'medium',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (platform, platform_channel_id)
		)`,

		`CREATE TABLE IF NOT EXISTS streams (
			id UUID PRIMARY KEY,
			channel_id UUID NOT NULL,
			platform TEXT NOT NULL,
			platform_stream_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			thumbnail_url TEXT,
			embed_url TEXT,
			status TEXT NOT NULL,
			viewer_count INTEGER NOT NULL DEFAULT 0,
			peak_viewer_count INTEGER NOT NULL DEFAULT 0,
			start_time TIMESTAMP,
			end_time TIMESTAMP,
			detected_at TIMESTAMP NOT NULL,
			last_checked_at TIMESTAMP NOT NULL,
			matched_keywords TEXT NOT NULL DEFAULT '[]',
			matched_keyword_count INTEGER NOT NULL DEFAULT 0,
			language TEXT,
			geo_city TEXT,
			geo_region TEXT,
			geo_country TEXT,
			discovery_method TEXT NOT NULL DEFAULT 'search',
			is_hidden BOOLEAN NOT NULL DEFAULT false,
			report_count INTEGER NOT NULL DEFAULT 0,
			miss_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (channel_id, platform_stream_id)
		)`,

		`CREATE TABLE IF NOT EXISTS user_follows (
			user_device_id TEXT NOT NULL,
			channel_id UUID NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (user_device_id, channel_id)
		)`,

		`CREATE TABLE IF NOT EXISTS stream_reports (
			id UUID PRIMARY KEY,
			stream_id UUID NOT NULL,
			reporter_device_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			notes TEXT,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (stream_id, reporter_device_id)
		)`,

		`CREATE TABLE IF NOT EXISTS api_usage_log (
			id UUID PRIMARY KEY,
			platform TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			quota_units_consumed BIGINT NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL DEFAULT true,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS seed_channels (
			platform TEXT NOT NULL,
			platform_channel_id TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			priority INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (platform, platform_channel_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_streams_status ON streams (status)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_platform_status ON streams (platform, status)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_platform_sid ON streams (platform, platform_stream_id)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_last_checked ON streams (last_checked_at)`,
		`CREATE INDEX IF NOT EXISTS idx_channels_priority ON channels (polling_priority)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_platform_time ON api_usage_log (platform, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_stream ON stream_reports (stream_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
