// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamlens/streamlens/internal/models"
)

// LogAPIUsage appends one usage record. Every discovery and liveness run
// writes one regardless of outcome, so the 24-hour sum can be audited
// against the configured quota limit.
func (db *DB) LogAPIUsage(ctx context.Context, rec *models.APIUsageRecord) error {
	done := timed("insert", "api_usage_log")
	var errMsg interface{}
	if rec.ErrorMessage != nil && *rec.ErrorMessage != "" {
		errMsg = *rec.ErrorMessage
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO api_usage_log (id, platform, endpoint, quota_units_consumed, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New(), rec.Platform.String(), rec.Endpoint, rec.UnitsConsumed,
		rec.Success, errMsg, rec.CreatedAt)
	done(err)
	if err != nil {
		return fmt.Errorf("failed to log api usage: %w", err)
	}
	return nil
}

// SumUnitsSince totals the quota units one platform consumed since a
// moment, the audit counterpart of the governor's in-memory counter.
func (db *DB) SumUnitsSince(ctx context.Context, platform models.Platform, since time.Time) (int64, error) {
	done := timed("select", "api_usage_log")
	var total int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quota_units_consumed), 0)
		FROM api_usage_log WHERE platform = ? AND created_at >= ?`,
		platform.String(), since,
	).Scan(&total)
	done(err)
	if err != nil {
		return 0, fmt.Errorf("failed to sum api usage: %w", err)
	}
	return total, nil
}
