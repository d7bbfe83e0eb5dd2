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

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/streamlens/streamlens/internal/logging"
	"github.com/streamlens/streamlens/internal/models"
)

// UpsertStream is the discovery write path. It ensures the channel row
// exists, then upserts the stream keyed by (channel_id, platform_stream_id):
// mutable metadata refreshes, peak viewers only ever grow, detected_at and a
// non-null start_time are preserved, and terminal statuses are sticky. Both
// writes commit in one transaction; the internal stream id is returned.
func (db *DB) UpsertStream(ctx context.Context, stream *models.Stream) (uuid.UUID, error) {
	if stream.Channel == nil {
		return uuid.Nil, fmt.Errorf("stream %s/%s carries no channel identity", stream.Platform, stream.PlatformStreamID)
	}

	done := timed("upsert", "streams")
	now := time.Now().UTC()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	channelID, err := ensureChannel(ctx, tx, stream.Channel, now)
	if err != nil {
		done(err)
		return uuid.Nil, err
	}

	keywords := models.NormalizeKeywords(stream.MatchedKeywords)
	keywordsJSON, err := json.Marshal(keywords)
	if err != nil {
		done(err)
		return uuid.Nil, fmt.Errorf("failed to encode matched keywords: %w", err)
	}

	var streamID uuid.UUID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO streams (
			id, channel_id, platform, platform_stream_id, title, description,
			thumbnail_url, embed_url, status, viewer_count, peak_viewer_count,
			start_time, end_time, detected_at, last_checked_at,
			matched_keywords, matched_keyword_count, language,
			geo_city, geo_region, geo_country, discovery_method,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (channel_id, platform_stream_id) DO UPDATE SET
			title = excluded.title,
			description = COALESCE(excluded.description, streams.description),
			thumbnail_url = COALESCE(excluded.thumbnail_url, streams.thumbnail_url),
			embed_url = COALESCE(excluded.embed_url, streams.embed_url),
			status = CASE
				WHEN streams.status IN ('ENDED', 'REMOVED') THEN streams.status
				ELSE excluded.status
			END,
			viewer_count = excluded.viewer_count,
			peak_viewer_count = GREATEST(streams.peak_viewer_count, excluded.viewer_count),
			start_time = COALESCE(streams.start_time, excluded.start_time),
			last_checked_at = excluded.last_checked_at,
			matched_keywords = excluded.matched_keywords,
			matched_keyword_count = excluded.matched_keyword_count,
			language = COALESCE(excluded.language, streams.language),
			updated_at = excluded.updated_at
		RETURNING id`,
		uuid.New(), channelID, stream.Platform.String(), stream.PlatformStreamID,
		stream.Title, stream.Description, stream.ThumbnailURL, stream.EmbedURL,
		string(stream.Status), stream.ViewerCount, stream.ViewerCount,
		stream.StartTime, stream.EndTime, stream.DetectedAt, stream.LastCheckedAt,
		string(keywordsJSON), len(keywords), stream.Language,
		stream.GeoCity, stream.GeoRegion, stream.GeoCountry, string(stream.DiscoveryMethod),
		now, now,
	).Scan(&streamID)
	if err != nil {
		done(err)
		return uuid.Nil, fmt.Errorf("failed to upsert stream %s/%s: %w", stream.Platform, stream.PlatformStreamID, err)
	}

	// A stream observed live marks its channel as recently live.
	if stream.Status == models.StatusLive {
		if _, err := tx.ExecContext(ctx,
			`UPDATE channels SET last_live_at = ?, updated_at = ? WHERE id = ?`,
			stream.LastCheckedAt, now, channelID); err != nil {
			done(err)
			return uuid.Nil, fmt.Errorf("failed to mark channel live: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return uuid.Nil, fmt.Errorf("failed to commit stream upsert: %w", err)
	}
	done(nil)
	return streamID, nil
}

// ApplyStreamUpdate folds one liveness observation into the stream row:
//
//   - LIVE observation: refresh viewers, grow the peak, reset the miss
//     counter, promote UPCOMING and backfill a null start_time.
//   - non-observation (reported ENDED by the adapter): bump the miss
//     counter; at missThreshold consecutive misses the stream ends with
//     end_time taken from the poll that crossed the threshold.
//   - terminal rows ignore all updates.
//
// Returns the stream's new status, or "" when no row matched.
func (db *DB) ApplyStreamUpdate(ctx context.Context, platform models.Platform, update models.StreamUpdate, missThreshold int) (models.StreamStatus, error) {
	if missThreshold < 1 {
		missThreshold = 1
	}
	done := timed("update", "streams")

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id        uuid.UUID
		channelID uuid.UUID
		status    string
		missCount int
		startTime sql.NullTime
		endTime   sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, channel_id, status, miss_count, start_time, end_time
		FROM streams WHERE platform = ? AND platform_stream_id = ?`,
		platform.String(), update.PlatformStreamID,
	).Scan(&id, &channelID, &status, &missCount, &startTime, &endTime)
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return "", nil
	}
	if err != nil {
		done(err)
		return "", fmt.Errorf("failed to load stream for update: %w", err)
	}

	current := models.StreamStatus(status)
	if current.IsTerminal() {
		done(nil)
		return current, tx.Commit()
	}

	now := time.Now().UTC()
	next := current

	switch update.Status {
	case models.StatusLive:
		next = models.StatusLive
		_, err = tx.ExecContext(ctx, `
			UPDATE streams SET
				status = 'LIVE',
				viewer_count = ?,
				peak_viewer_count = GREATEST(peak_viewer_count, ?),
				start_time = COALESCE(start_time, ?),
				last_checked_at = ?,
				miss_count = 0,
				updated_at = ?
			WHERE id = ?`,
			update.ViewerCount, update.ViewerCount, update.LastCheckedAt,
			update.LastCheckedAt, now, id)
		if err == nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE channels SET last_live_at = ?, updated_at = ? WHERE id = ?`,
				update.LastCheckedAt, now, channelID)
		}

	case models.StatusEnded, models.StatusRemoved:
		missCount++
		if missCount >= missThreshold {
			next = update.Status
			_, err = tx.ExecContext(ctx, `
				UPDATE streams SET
					status = ?,
					viewer_count = ?,
					peak_viewer_count = GREATEST(peak_viewer_count, ?),
					end_time = ?,
					last_checked_at = ?,
					miss_count = ?,
					updated_at = ?
				WHERE id = ?`,
				string(update.Status), update.ViewerCount, update.ViewerCount,
				update.LastCheckedAt, update.LastCheckedAt, missCount, now, id)
		} else {
			// Not enough consecutive misses yet; keep the stream live.
			_, err = tx.ExecContext(ctx, `
				UPDATE streams SET last_checked_at = ?, miss_count = ?, updated_at = ?
				WHERE id = ?`,
				update.LastCheckedAt, missCount, now, id)
		}

	default: // UPCOMING
		_, err = tx.ExecContext(ctx, `
			UPDATE streams SET last_checked_at = ?, miss_count = 0, updated_at = ?
			WHERE id = ?`,
			update.LastCheckedAt, now, id)
	}
	if err != nil {
		done(err)
		return "", fmt.Errorf("failed to apply stream update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return "", fmt.Errorf("failed to commit stream update: %w", err)
	}
	done(nil)

	if next != current {
		logging.Debug().
			Str("platform", platform.String()).
			Str("stream_id", update.PlatformStreamID).
			Str("from", string(current)).
			Str("to", string(next)).
			Msg("stream status transition")
	}
	return next, nil
}

// GetLiveStreamIDs returns the platform stream ids currently tracked as
// LIVE or UPCOMING for one platform, the working set of a liveness poll.
func (db *DB) GetLiveStreamIDs(ctx context.Context, platform models.Platform) ([]string, error) {
	done := timed("select", "streams")
	rows, err := db.conn.QueryContext(ctx, `
		SELECT platform_stream_id FROM streams
		WHERE platform = ? AND status IN ('LIVE', 'UPCOMING')
		ORDER BY last_checked_at ASC`,
		platform.String())
	if err != nil {
		done(err)
		return nil, fmt.Errorf("failed to list live streams: %w", err)
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

// GetStream fetches one stream with its channel joined.
func (db *DB) GetStream(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	done := timed("select", "streams")
	row := db.conn.QueryRowContext(ctx, selectStreamSQL+` WHERE s.id = ?`, id)
	stream, err := scanStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, nil
	}
	done(err)
	return stream, err
}

const selectStreamSQL = `
	SELECT s.id, s.channel_id, s.platform, s.platform_stream_id, s.title,
	       s.description, s.thumbnail_url, s.embed_url, s.status,
	       s.viewer_count, s.peak_viewer_count, s.start_time, s.end_time,
	       s.detected_at, s.last_checked_at, s.matched_keywords, s.language,
	       s.geo_city, s.geo_region, s.geo_country, s.discovery_method,
	       s.is_hidden, s.report_count, s.miss_count, s.created_at, s.updated_at,
	       c.id, c.platform, c.platform_channel_id, c.display_name, c.avatar_url,
	       c.trust_score, c.subscriber_count, c.account_created_at,
	       c.last_scraped_at, c.last_live_at, c.polling_priority, c.created_at, c.updated_at
	FROM streams s
	JOIN channels c ON c.id = s.channel_id`

func scanStream(row rowScanner) (*models.Stream, error) {
	var s models.Stream
	var c models.Channel
	var sPlatform, cPlat, method, priority, keywordsJSON string
	err := row.Scan(
		&s.ID, &s.ChannelID, &sPlatform, &s.PlatformStreamID, &s.Title,
		&s.Description, &s.ThumbnailURL, &s.EmbedURL, &s.Status,
		&s.ViewerCount, &s.PeakViewerCount, &s.StartTime, &s.EndTime,
		&s.DetectedAt, &s.LastCheckedAt, &keywordsJSON, &s.Language,
		&s.GeoCity, &s.GeoRegion, &s.GeoCountry, &method,
		&s.IsHidden, &s.ReportCount, &s.MissCount, &s.CreatedAt, &s.UpdatedAt,
		&c.ID, &cPlat, &c.PlatformChannelID, &c.DisplayName, &c.AvatarURL,
		&c.TrustScore, &c.SubscriberCount, &c.AccountCreatedAt,
		&c.LastScrapedAt, &c.LastLiveAt, &priority, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Platform = models.Platform(sPlatform)
	s.DiscoveryMethod = models.DiscoveryMethod(method)
	if err := json.Unmarshal([]byte(keywordsJSON), &s.MatchedKeywords); err != nil {
		s.MatchedKeywords = nil
	}
	c.Platform = models.Platform(cPlat)
	c.PollingPriority = models.PollingPriority(priority)
	s.Channel = &c
	return &s, nil
}
