// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package twitch

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// streamsResponse is the shape of a GET /streams response.
type streamsResponse struct {
	Data []streamItem `json:"data"`
}

type streamItem struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id" validate:"required"`
	UserName     string `json:"user_name"`
	GameID       string `json:"game_id"`
	Title        string `json:"title"`
	ViewerCount  int    `json:"viewer_count"`
	StartedAt    string `json:"started_at"`
	ThumbnailURL string `json:"thumbnail_url"`
	Language     string `json:"language"`
}

// searchChannelsResponse is the shape of a GET /search/channels response.
type searchChannelsResponse struct {
	Data []searchChannelItem `json:"data"`
}

type searchChannelItem struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	IsLive      bool   `json:"is_live"`
	Title       string `json:"title"`
}

// usersResponse is the shape of a GET /users response.
type usersResponse struct {
	Data []userItem `json:"data"`
}

type userItem struct {
	ID              string `json:"id" validate:"required"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
	CreatedAt       string `json:"created_at"`
}

// followersResponse is the shape of a GET /channels/followers response.
// Only the total is consumed.
type followersResponse struct {
	Total int64 `json:"total"`
}

// parseRFC3339 returns nil for absent or malformed timestamps.
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
