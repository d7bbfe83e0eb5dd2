// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package twitch

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/streamlens/streamlens/internal/metrics"
	"github.com/streamlens/streamlens/internal/models"
)

// CheckLiveness polls /streams for up to 100 broadcaster ids per call.
// The endpoint only returns currently-live broadcasts, so every queried id
// absent from the response is reported ENDED with zero viewers.
func (c *Connector) CheckLiveness(ctx context.Context, ids []string) ([]models.StreamUpdate, error) {
	if !c.governor.IsOperational() || len(ids) == 0 {
		return nil, nil
	}

	batchSize := c.cfg.LivenessBatchSize
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}
	metrics.LivenessBatchSize.WithLabelValues(string(models.PlatformTwitch)).Observe(float64(len(ids)))

	var updates []models.StreamUpdate

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		q := url.Values{}
		for _, id := range batch {
			q.Add("user_id", id)
		}

		var resp streamsResponse
		if err := c.helixGet(ctx, "/streams", q, &resp); err != nil {
			c.governor.RecordError(err)
			return updates, fmt.Errorf("twitch liveness batch failed: %w", err)
		}
		c.governor.RecordSuccess()

		now := time.Now().UTC()
		live := make(map[string]*streamItem, len(resp.Data))
		for i := range resp.Data {
			live[resp.Data[i].UserID] = &resp.Data[i]
		}

		for _, id := range batch {
			if item, ok := live[id]; ok {
				updates = append(updates, models.StreamUpdate{
					PlatformStreamID: id,
					ViewerCount:      item.ViewerCount,
					Status:           models.StatusLive,
					LastCheckedAt:    now,
				})
			} else {
				updates = append(updates, models.StreamUpdate{
					PlatformStreamID: id,
					ViewerCount:      0,
					Status:           models.StatusEnded,
					LastCheckedAt:    now,
				})
			}
		}
	}
	return updates, nil
}
