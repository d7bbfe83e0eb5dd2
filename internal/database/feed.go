// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package database

import (
	"context"
	"fmt"

	"github.com/streamlens/streamlens/internal/models"
)

// FeedFilter narrows the read-side stream feed.
type FeedFilter struct {
	// Statuses restricts to the given statuses; empty means LIVE only.
	Statuses []models.StreamStatus
	// Platform restricts to one platform; empty means all.
	Platform models.Platform
	// IncludeHidden also returns streams hidden by moderation.
	IncludeHidden bool
	Limit         int
	Offset        int
}

// relevanceSQL ranks feed rows: 0.3 trust + 0.4 viewer reach (saturating at
// 10k concurrent) + 0.3 keyword specificity (saturating at 3 matches).
const relevanceSQL = `
	0.3 * c.trust_score
	+ 0.4 * LEAST(1.0, LOG10(GREATEST(1, s.viewer_count)) / 4.0)
	+ 0.3 * LEAST(1.0, s.matched_keyword_count / 3.0)`

// ListStreams returns the feed page ordered by relevance, then recency,
// along with the total row count for the filter.
func (db *DB) ListStreams(ctx context.Context, filter FeedFilter) ([]models.Stream, int, error) {
	done := timed("select", "streams")

	where := ` WHERE 1=1`
	var args []interface{}

	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = []models.StreamStatus{models.StatusLive}
	}
	where += ` AND s.status IN (`
	for i, st := range statuses {
		if i > 0 {
			where += `, `
		}
		where += `?`
		args = append(args, string(st))
	}
	where += `)`

	if filter.Platform != "" {
		where += ` AND s.platform = ?`
		args = append(args, filter.Platform.String())
	}
	if !filter.IncludeHidden {
		where += ` AND s.is_hidden = false`
	}

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM streams s JOIN channels c ON c.id = s.channel_id`+where,
		args...).Scan(&total); err != nil {
		done(err)
		return nil, 0, fmt.Errorf("failed to count feed rows: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := selectStreamSQL + where +
		` ORDER BY ` + relevanceSQL + ` DESC, s.last_checked_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		done(err)
		return nil, 0, fmt.Errorf("failed to query feed: %w", err)
	}
	defer closeQuietly(rows)

	var streams []models.Stream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			done(err)
			return nil, 0, err
		}
		streams = append(streams, *s)
	}
	done(rows.Err())
	return streams, total, rows.Err()
}

// CountLiveByPlatform reports the LIVE stream count per platform, feeding
// the status endpoint and the live-stream gauges.
func (db *DB) CountLiveByPlatform(ctx context.Context) (map[models.Platform]int, error) {
	done := timed("select", "streams")
	rows, err := db.conn.QueryContext(ctx,
		`SELECT platform, COUNT(*) FROM streams WHERE status = 'LIVE' GROUP BY platform`)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("failed to count live streams: %w", err)
	}
	defer closeQuietly(rows)

	counts := make(map[models.Platform]int)
	for rows.Next() {
		var platform string
		var n int
		if err := rows.Scan(&platform, &n); err != nil {
			done(err)
			return nil, err
		}
		counts[models.Platform(platform)] = n
	}
	done(rows.Err())
	return counts, rows.Err()
}
