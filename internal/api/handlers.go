// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/streamlens/streamlens/internal/database"
	"github.com/streamlens/streamlens/internal/models"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, map[string]string{"status": "ok"})
}

// handleReadyz reports ready once the catalog answers queries.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.db.Conn().PingContext(ctx); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "NOT_READY", "catalog is not reachable")
		return
	}
	writeSuccess(w, r, map[string]string{"status": "ready"})
}

// statusResponse is the engine-wide health snapshot.
type statusResponse struct {
	Connectors  []connectorStatus       `json:"connectors"`
	LiveStreams map[models.Platform]int `json:"live_streams"`
}

type connectorStatus struct {
	Platform      models.Platform `json:"platform"`
	Status        string          `json:"status"`
	QuotaConsumed int64           `json:"quota_consumed"`
	QuotaLimit    int64           `json:"quota_limit"`
	UnitsLast24h  int64           `json:"units_last_24h"`
	PausedUntil   *time.Time      `json:"paused_until,omitempty"`
	PauseReason   string          `json:"pause_reason,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	since := time.Now().UTC().Add(-24 * time.Hour)

	statuses := make([]connectorStatus, 0, len(s.connectors))
	for platform, conn := range s.connectors {
		snap := conn.Governor().Snapshot()
		units, err := s.db.SumUnitsSince(ctx, platform, since)
		if err != nil {
			writeDatabaseError(w, r, err)
			return
		}
		statuses = append(statuses, connectorStatus{
			Platform:      snap.Platform,
			Status:        string(snap.Status),
			QuotaConsumed: snap.QuotaConsumed,
			QuotaLimit:    snap.QuotaLimit,
			UnitsLast24h:  units,
			PausedUntil:   snap.PausedUntil,
			PauseReason:   snap.PauseReason,
		})
	}

	counts, err := s.db.CountLiveByPlatform(ctx)
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	writeSuccess(w, r, statusResponse{Connectors: statuses, LiveStreams: counts})
}

// handleListStreams serves the ranked feed. Filters: status (comma
// separated), platform, limit, offset.
func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := database.FeedFilter{
		Limit:  s.pageSize(q.Get("limit")),
		Offset: parseNonNegative(q.Get("offset")),
	}

	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := models.ParseStreamStatus(strings.ToUpper(strings.TrimSpace(part)))
			if err != nil {
				writeBadRequest(w, r, "unknown status: "+part)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := q.Get("platform"); raw != "" {
		platform, err := models.ParsePlatform(strings.ToLower(raw))
		if err != nil {
			writeBadRequest(w, r, "unknown platform: "+raw)
			return
		}
		filter.Platform = platform
	}

	streams, total, err := s.db.ListStreams(r.Context(), filter)
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	writeSuccessMeta(w, r, http.StatusOK, streams, &PaginationMeta{
		Total:   total,
		Count:   len(streams),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: filter.Offset+len(streams) < total,
	})
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, r, "invalid stream id")
		return
	}
	stream, err := s.db.GetStream(r.Context(), id)
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	if stream == nil {
		writeNotFound(w, r, "stream not found")
		return
	}
	writeSuccess(w, r, stream)
}

func (s *Server) handleReportStream(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, r, "invalid stream id")
		return
	}
	var req reportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	stream, err := s.db.GetStream(r.Context(), id)
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	if stream == nil {
		writeNotFound(w, r, "stream not found")
		return
	}

	hidden, err := s.db.ReportStream(r.Context(), id, req.DeviceID, req.Reason, req.Notes, s.cfg.API.ReportHideThreshold)
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	writeSuccess(w, r, map[string]bool{"hidden": hidden})
}

func (s *Server) handleListFollows(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeBadRequest(w, r, "device_id is required")
		return
	}
	channels, err := s.db.GetFollowedChannels(r.Context(), deviceID)
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	writeSuccess(w, r, channels)
}

func (s *Server) handleAddFollow(w http.ResponseWriter, r *http.Request) {
	var req followRequest
	if !decodeBody(w, r, &req) {
		return
	}
	channel, err := s.db.GetChannel(r.Context(), req.ChannelID)
	if err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	if channel == nil {
		writeNotFound(w, r, "channel not found")
		return
	}
	if err := s.db.AddFollow(r.Context(), req.DeviceID, req.ChannelID); err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	writeSuccessMeta(w, r, http.StatusCreated, channel, nil)
}

func (s *Server) handleRemoveFollow(w http.ResponseWriter, r *http.Request) {
	var req followRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.db.RemoveFollow(r.Context(), req.DeviceID, req.ChannelID); err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmitChannel validates a user-submitted channel against the
// platform API and seeds it for future discovery passes.
func (s *Server) handleSubmitChannel(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	platform, err := models.ParsePlatform(strings.ToLower(req.Platform))
	if err != nil {
		writeBadRequest(w, r, "unknown platform: "+req.Platform)
		return
	}
	conn, ok := s.connectors[platform]
	if !ok {
		writeBadRequest(w, r, "platform is not enabled: "+req.Platform)
		return
	}

	channel, err := conn.GetChannel(r.Context(), req.ChannelID)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "EXTERNAL_SERVICE_FAILED", "channel lookup failed")
		return
	}
	if channel == nil {
		writeNotFound(w, r, "channel not found on platform")
		return
	}

	if _, err := s.db.UpsertChannel(r.Context(), channel); err != nil {
		writeDatabaseError(w, r, err)
		return
	}
	if err := s.db.AddSeedChannel(r.Context(), platform, req.ChannelID, req.Category, 0); err != nil {
		writeDatabaseError(w, r, err)
		return
	}

	s.log.Info().
		Str("platform", platform.String()).
		Str("channel", req.ChannelID).
		Msg("channel submitted and seeded")
	writeSuccessMeta(w, r, http.StatusCreated, channel, nil)
}

func (s *Server) pageSize(raw string) int {
	size := s.cfg.API.DefaultPageSize
	if size <= 0 {
		size = 20
	}
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			size = n
		}
	}
	if max := s.cfg.API.MaxPageSize; max > 0 && size > max {
		size = max
	}
	return size
}

func parseNonNegative(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
