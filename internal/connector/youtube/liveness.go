// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package youtube

import (
	"context"
	"fmt"
	"time"

	"github.com/streamlens/streamlens/internal/metrics"
	"github.com/streamlens/streamlens/internal/models"
)

// CheckLiveness validates known stream ids through the batch endpoint at
// 1 unit per batch. Every id actually queried yields exactly one update;
// ids absent from the response are reported ENDED with zero viewers. When
// the quota runs out between batches the updates collected so far are
// returned and the remaining ids are left for the next poll.
func (c *Connector) CheckLiveness(ctx context.Context, ids []string) ([]models.StreamUpdate, error) {
	if !c.governor.IsOperational() || len(ids) == 0 {
		return nil, nil
	}
	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}

	batchSize := c.cfg.LivenessBatchSize
	if batchSize <= 0 || batchSize > 50 {
		batchSize = 50
	}
	metrics.LivenessBatchSize.WithLabelValues(string(models.PlatformYouTube)).Observe(float64(len(ids)))

	var updates []models.StreamUpdate

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		if !c.governor.ConsumeQuota(costVideoList) {
			return updates, nil
		}

		items, err := c.listVideos(ctx, batch)
		if err != nil {
			c.governor.RecordError(err)
			return updates, fmt.Errorf("youtube liveness batch failed: %w", err)
		}
		c.governor.RecordSuccess()

		now := time.Now().UTC()
		observed := make(map[string]struct{}, len(items))

		for _, item := range items {
			observed[item.ID] = struct{}{}

			var status models.StreamStatus
			switch {
			case item.LiveStreamingDetails.ActualEndTime != "":
				status = models.StatusEnded
			case item.LiveStreamingDetails.ActualStartTime != "":
				status = models.StatusLive
			default:
				status = models.StatusUpcoming
			}

			// Ended broadcasts stop reporting concurrentViewers, which
			// parses to zero. statistics.viewCount is cumulative views,
			// not a concurrency figure, and never substitutes for it.
			viewers := int(parseCount(item.LiveStreamingDetails.ConcurrentViewers))

			updates = append(updates, models.StreamUpdate{
				PlatformStreamID: item.ID,
				ViewerCount:      viewers,
				Status:           status,
				LastCheckedAt:    now,
			})
		}

		// Ids the upstream no longer returns are gone: deleted, private,
		// or long ended.
		for _, id := range batch {
			if _, ok := observed[id]; ok {
				continue
			}
			updates = append(updates, models.StreamUpdate{
				PlatformStreamID: id,
				ViewerCount:      0,
				Status:           models.StatusEnded,
				LastCheckedAt:    now,
			})
		}
	}
	return updates, nil
}
