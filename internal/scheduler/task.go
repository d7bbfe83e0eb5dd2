// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package scheduler

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/streamlens/streamlens/internal/models"
)

// Task names. The (name, platform) pair identifies one schedulable unit
// of work; the overlap guard and metrics key on the combination.
const (
	TaskDiscovery       = "discovery"
	TaskLiveness        = "liveness"
	TaskRSSSeed         = "rss-seed"
	TaskResetQuotas     = "reset-daily-quotas"
	TaskRefreshPriority = "refresh-priorities"
	TaskArchive         = "archive-old-streams"
)

// Task is the queue message envelope. Maintenance tasks carry no
// platform.
type Task struct {
	Name       string          `json:"name"`
	Platform   models.Platform `json:"platform,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Key identifies the task for the overlap guard and metric labels.
func (t Task) Key() string {
	if t.Platform == "" {
		return t.Name
	}
	return t.Name + ":" + t.Platform.String()
}

func encodeTask(t Task) ([]byte, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task %s: %w", t.Key(), err)
	}
	return payload, nil
}

func decodeTask(payload []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(payload, &t); err != nil {
		return Task{}, fmt.Errorf("failed to decode task payload: %w", err)
	}
	if t.Name == "" {
		return Task{}, fmt.Errorf("task payload has no name")
	}
	return t, nil
}
