// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var validate = validator.New()

// maxBodyBytes caps request bodies. Every write endpoint takes a small
// JSON document.
const maxBodyBytes = 64 * 1024

type followRequest struct {
	DeviceID  string    `json:"device_id" validate:"required,max=128"`
	ChannelID uuid.UUID `json:"channel_id" validate:"required"`
}

type reportRequest struct {
	DeviceID string `json:"device_id" validate:"required,max=128"`
	Reason   string `json:"reason" validate:"required,max=256"`
	Notes    string `json:"notes" validate:"max=2048"`
}

type submissionRequest struct {
	Platform  string `json:"platform" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required,max=256"`
	Category  string `json:"category" validate:"max=128"`
}

// decodeBody unmarshals and validates a JSON request body. On failure
// it writes the error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return false
	}
	return true
}
