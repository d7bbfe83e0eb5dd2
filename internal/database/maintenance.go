// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/streamlens/streamlens/internal/logging"
)

// ArchiveOldStreams removes terminal streams that ended before the
// retention window along with their reports. Returns the number of
// streams removed.
func (db *DB) ArchiveOldStreams(ctx context.Context, retention time.Duration) (int64, error) {
	done := timed("delete", "streams")
	cutoff := time.Now().UTC().Add(-retention)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM stream_reports WHERE stream_id IN (
			SELECT id FROM streams
			WHERE status IN ('ENDED', 'REMOVED') AND end_time IS NOT NULL AND end_time < ?
		)`, cutoff); err != nil {
		done(err)
		return 0, fmt.Errorf("failed to prune reports of archived streams: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM streams
		WHERE status IN ('ENDED', 'REMOVED') AND end_time IS NOT NULL AND end_time < ?`,
		cutoff)
	if err != nil {
		done(err)
		return 0, fmt.Errorf("failed to archive old streams: %w", err)
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return 0, fmt.Errorf("failed to commit archive: %w", err)
	}
	done(nil)

	removed, _ := res.RowsAffected()
	if removed > 0 {
		logging.Info().Int64("streams", removed).Time("cutoff", cutoff).Msg("archived old streams")
	}
	return removed, nil
}

// PruneUsageLog drops usage records older than the retention window.
func (db *DB) PruneUsageLog(ctx context.Context, retention time.Duration) (int64, error) {
	done := timed("delete", "api_usage_log")
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM api_usage_log WHERE created_at < ?`,
		time.Now().UTC().Add(-retention))
	done(err)
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage log: %w", err)
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}
