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

	"github.com/streamlens/streamlens/internal/logging"
	"github.com/streamlens/streamlens/internal/models"
)

// AddFollow records that a device follows a channel. Idempotent.
func (db *DB) AddFollow(ctx context.Context, deviceID string, channelID uuid.UUID) error {
	done := timed("insert", "user_follows")
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO user_follows (user_device_id, channel_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_device_id, channel_id) DO NOTHING`,
		deviceID, channelID, time.Now().UTC())
	done(err)
	if err != nil {
		return fmt.Errorf("failed to add follow: %w", err)
	}
	return nil
}

// RemoveFollow deletes a follow edge. Removing a non-existent follow is
// not an error.
func (db *DB) RemoveFollow(ctx context.Context, deviceID string, channelID uuid.UUID) error {
	done := timed("delete", "user_follows")
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_follows WHERE user_device_id = ? AND channel_id = ?`,
		deviceID, channelID)
	done(err)
	if err != nil {
		return fmt.Errorf("failed to remove follow: %w", err)
	}
	return nil
}

// GetFollowedChannels lists the channels a device follows.
func (db *DB) GetFollowedChannels(ctx context.Context, deviceID string) ([]models.Channel, error) {
	done := timed("select", "user_follows")
	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.id, c.platform, c.platform_channel_id, c.display_name, c.avatar_url,
		       c.trust_score, c.subscriber_count, c.account_created_at,
		       c.last_scraped_at, c.last_live_at, c.polling_priority, c.created_at, c.updated_at
		FROM user_follows f
		JOIN channels c ON c.id = f.channel_id
		WHERE f.user_device_id = ?
		ORDER BY f.created_at DESC`, deviceID)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("failed to list follows: %w", err)
	}
	defer closeQuietly(rows)

	var channels []models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			done(err)
			return nil, err
		}
		channels = append(channels, *ch)
	}
	done(rows.Err())
	return channels, rows.Err()
}

// ReportStream files a moderation report against a stream and bumps its
// report counter. One report per (stream, device) counts; repeats are
// dropped so a single device can never push a stream over the threshold
// alone. Once the counter reaches hideThreshold the stream is hidden
// from the public feed. Returns whether the stream is hidden afterwards.
func (db *DB) ReportStream(ctx context.Context, streamID uuid.UUID, reporterDeviceID, reason, notes string, hideThreshold int) (bool, error) {
	done := timed("insert", "stream_reports")

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var noteArg interface{}
	if notes != "" {
		noteArg = notes
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO stream_reports (id, stream_id, reporter_device_id, reason, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (stream_id, reporter_device_id) DO NOTHING`,
		uuid.New(), streamID, reporterDeviceID, reason, noteArg, time.Now().UTC())
	if err != nil {
		done(err)
		return false, fmt.Errorf("failed to insert report: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		done(err)
		return false, fmt.Errorf("failed to read report insert result: %w", err)
	}

	var hidden bool
	if inserted == 0 {
		// Repeat report from the same device; the counter stands.
		err = tx.QueryRowContext(ctx,
			`SELECT is_hidden FROM streams WHERE id = ?`, streamID).Scan(&hidden)
		if err != nil {
			done(err)
			return false, fmt.Errorf("failed to read hidden state: %w", err)
		}
		if err := tx.Commit(); err != nil {
			done(err)
			return false, fmt.Errorf("failed to commit report: %w", err)
		}
		done(nil)
		return hidden, nil
	}

	var reportCount int
	err = tx.QueryRowContext(ctx, `
		UPDATE streams SET
			report_count = report_count + 1,
			is_hidden = is_hidden OR (report_count + 1 >= ?),
			updated_at = ?
		WHERE id = ?
		RETURNING report_count, is_hidden`,
		hideThreshold, time.Now().UTC(), streamID,
	).Scan(&reportCount, &hidden)
	if err != nil {
		done(err)
		return false, fmt.Errorf("failed to bump report count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return false, fmt.Errorf("failed to commit report: %w", err)
	}
	done(nil)

	if hidden {
		logging.Info().
			Str("stream_id", streamID.String()).
			Int("reports", reportCount).
			Msg("stream hidden after report threshold")
	}
	return hidden, nil
}
