// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package youtube

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// searchResponse is the shape of a search.list response. Only the video id
// is consumed; full details come from the follow-up videos.list call.
type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
}

// videoListResponse is the shape of a videos.list response.
type videoListResponse struct {
	Items []videoItem `json:"items"`
}

type videoItem struct {
	ID      string `json:"id" validate:"required"`
	Snippet struct {
		Title                string     `json:"title"`
		Description          string     `json:"description"`
		ChannelID            string     `json:"channelId" validate:"required"`
		ChannelTitle         string     `json:"channelTitle"`
		PublishedAt          string     `json:"publishedAt"`
		DefaultLanguage      string     `json:"defaultLanguage"`
		DefaultAudioLanguage string     `json:"defaultAudioLanguage"`
		Thumbnails           thumbnails `json:"thumbnails"`
	} `json:"snippet"`
	LiveStreamingDetails struct {
		ActualStartTime    string `json:"actualStartTime"`
		ActualEndTime      string `json:"actualEndTime"`
		ConcurrentViewers  string `json:"concurrentViewers"`
		ScheduledStartTime string `json:"scheduledStartTime"`
	} `json:"liveStreamingDetails"`
}

type thumbnails struct {
	Default  *thumbnail `json:"default"`
	Medium   *thumbnail `json:"medium"`
	High     *thumbnail `json:"high"`
	Standard *thumbnail `json:"standard"`
	Maxres   *thumbnail `json:"maxres"`
}

type thumbnail struct {
	URL string `json:"url"`
}

// best returns the largest available rendition URL.
func (t thumbnails) best() string {
	for _, th := range []*thumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if th != nil && th.URL != "" {
			return th.URL
		}
	}
	return ""
}

// channelListResponse is the shape of a channels.list response.
type channelListResponse struct {
	Items []channelItem `json:"items"`
}

type channelItem struct {
	ID      string `json:"id" validate:"required"`
	Snippet struct {
		Title       string     `json:"title"`
		PublishedAt string     `json:"publishedAt"`
		Thumbnails  thumbnails `json:"thumbnails"`
	} `json:"snippet"`
	Statistics struct {
		SubscriberCount string `json:"subscriberCount"`
	} `json:"statistics"`
}

// parseRFC3339 returns nil for absent or malformed timestamps rather than
// failing the whole item.
func parseRFC3339(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
