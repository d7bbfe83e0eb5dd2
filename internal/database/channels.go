// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamlens/streamlens/internal/models"
)

// ensureChannel upserts the channel row by its natural key inside the
// caller's transaction and returns the internal id. Metadata on the
// incoming record refreshes the row; absent fields keep their values.
func ensureChannel(ctx context.Context, tx *sql.Tx, ch *models.Channel, now time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx, `
		INSERT INTO channels (
			id, platform, platform_channel_id, display_name, avatar_url,
			trust_score, subscriber_count, account_created_at,
			last_scraped_at, last_live_at, polling_priority, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, platform_channel_id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar_url = COALESCE(excluded.avatar_url, channels.avatar_url),
			trust_score = CASE WHEN excluded.trust_score > 0 THEN excluded.trust_score ELSE channels.trust_score END,
			subscriber_count = CASE WHEN excluded.subscriber_count > 0 THEN excluded.subscriber_count ELSE channels.subscriber_count END,
			account_created_at = COALESCE(excluded.account_created_at, channels.account_created_at),
			last_scraped_at = COALESCE(excluded.last_scraped_at, channels.last_scraped_at),
			updated_at = excluded.updated_at
		RETURNING id`,
		uuid.New(), ch.Platform.String(), ch.PlatformChannelID, ch.DisplayName, ch.AvatarURL,
		ch.TrustScore, ch.SubscriberCount, ch.AccountCreatedAt,
		ch.LastScrapedAt, ch.LastLiveAt, string(priorityOrDefault(ch.PollingPriority)), now, now,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert channel %s/%s: %w", ch.Platform, ch.PlatformChannelID, err)
	}
	return id, nil
}

func priorityOrDefault(p models.PollingPriority) models.PollingPriority {
	if p == "" {
		return models.PriorityMedium
	}
	return p
}

// UpsertChannel refreshes channel metadata outside of a stream write, used
// when the channel-refresh path fetches authoritative details.
func (db *DB) UpsertChannel(ctx context.Context, ch *models.Channel) (uuid.UUID, error) {
	done := timed("upsert", "channels")
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := ensureChannel(ctx, tx, ch, time.Now().UTC())
	if err != nil {
		done(err)
		return uuid.Nil, err
	}
	if err := tx.Commit(); err != nil {
		done(err)
		return uuid.Nil, fmt.Errorf("failed to commit channel upsert: %w", err)
	}
	done(nil)
	return id, nil
}

// GetChannel fetches a channel by internal id.
func (db *DB) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	done := timed("select", "channels")
	ch, err := scanChannel(db.conn.QueryRowContext(ctx, `
		SELECT id, platform, platform_channel_id, display_name, avatar_url,
		       trust_score, subscriber_count, account_created_at,
		       last_scraped_at, last_live_at, polling_priority, created_at, updated_at
		FROM channels WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, nil
	}
	done(err)
	return ch, err
}

// GetChannelByNaturalKey fetches a channel by (platform, platform id).
func (db *DB) GetChannelByNaturalKey(ctx context.Context, platform models.Platform, platformChannelID string) (*models.Channel, error) {
	done := timed("select", "channels")
	ch, err := scanChannel(db.conn.QueryRowContext(ctx, `
		SELECT id, platform, platform_channel_id, display_name, avatar_url,
		       trust_score, subscriber_count, account_created_at,
		       last_scraped_at, last_live_at, polling_priority, created_at, updated_at
		FROM channels WHERE platform = ? AND platform_channel_id = ?`,
		platform.String(), platformChannelID))
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, nil
	}
	done(err)
	return ch, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChannel(row rowScanner) (*models.Channel, error) {
	var ch models.Channel
	var platform, priority string
	err := row.Scan(
		&ch.ID, &platform, &ch.PlatformChannelID, &ch.DisplayName, &ch.AvatarURL,
		&ch.TrustScore, &ch.SubscriberCount, &ch.AccountCreatedAt,
		&ch.LastScrapedAt, &ch.LastLiveAt, &priority, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ch.Platform = models.Platform(platform)
	ch.PollingPriority = models.PollingPriority(priority)
	return &ch, nil
}

// RefreshPollingPriorities recomputes every channel's polling tier from
// last_live_at in one bulk statement. Returns the number of channels whose
// tier changed.
func (db *DB) RefreshPollingPriorities(ctx context.Context, now time.Time) (int64, error) {
	done := timed("update", "channels")
	res, err := db.conn.ExecContext(ctx, `
		UPDATE channels SET
			polling_priority = CASE
				WHEN last_live_at IS NULL THEN 'medium'
				WHEN last_live_at >= ? THEN 'high'
				WHEN last_live_at >= ? THEN 'medium'
				WHEN last_live_at >= ? THEN 'low'
				ELSE 'dead'
			END,
			updated_at = ?
		WHERE polling_priority <> CASE
			WHEN last_live_at IS NULL THEN 'medium'
			WHEN last_live_at >= ? THEN 'high'
			WHEN last_live_at >= ? THEN 'medium'
			WHEN last_live_at >= ? THEN 'low'
			ELSE 'dead'
		END`,
		now.Add(-24*time.Hour), now.Add(-7*24*time.Hour), now.Add(-30*24*time.Hour), now,
		now.Add(-24*time.Hour), now.Add(-7*24*time.Hour), now.Add(-30*24*time.Hour),
	)
	if err != nil {
		done(err)
		return 0, fmt.Errorf("failed to refresh polling priorities: %w", err)
	}
	done(nil)
	changed, _ := res.RowsAffected()
	return changed, nil
}

// AddSeedChannel registers a curated allowlist entry.
func (db *DB) AddSeedChannel(ctx context.Context, platform models.Platform, platformChannelID, category string, priority int) error {
	done := timed("insert", "seed_channels")
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO seed_channels (platform, platform_channel_id, category, priority, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (platform, platform_channel_id) DO UPDATE SET
			category = excluded.category,
			priority = excluded.priority`,
		platform.String(), platformChannelID, category, priority, time.Now().UTC())
	done(err)
	if err != nil {
		return fmt.Errorf("failed to add seed channel: %w", err)
	}
	return nil
}

// GetSeedChannelIDs lists the allowlisted platform channel ids for one
// platform, highest curation priority first.
func (db *DB) GetSeedChannelIDs(ctx context.Context, platform models.Platform) ([]string, error) {
	done := timed("select", "seed_channels")
	rows, err := db.conn.QueryContext(ctx, `
		SELECT platform_channel_id FROM seed_channels
		WHERE platform = ? ORDER BY priority DESC, platform_channel_id`,
		platform.String())
	if err != nil {
		done(err)
		return nil, fmt.Errorf("failed to list seed channels: %w", err)
	}
	defer closeQuietly(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			done(err)
			return nil, err
		}
		ids = append(ids, id)
	}
	done(rows.Err())
	return ids, rows.Err()
}
