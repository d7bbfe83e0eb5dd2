// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/connector"
	"github.com/streamlens/streamlens/internal/database"
	"github.com/streamlens/streamlens/internal/models"
)

// stubConnector serves status snapshots and channel lookups.
type stubConnector struct {
	platform models.Platform
	governor *connector.Governor
	channel  *models.Channel
}

func (c *stubConnector) Authenticate(context.Context) error { return nil }
func (c *stubConnector) Platform() models.Platform          { return c.platform }
func (c *stubConnector) Governor() *connector.Governor      { return c.governor }

func (c *stubConnector) Discover(context.Context, []string) ([]models.Stream, error) {
	return nil, nil
}

func (c *stubConnector) CheckLiveness(context.Context, []string) ([]models.StreamUpdate, error) {
	return nil, nil
}

func (c *stubConnector) GetChannel(_ context.Context, id string) (*models.Channel, error) {
	if c.channel != nil && c.channel.PlatformChannelID == id {
		return c.channel, nil
	}
	return nil, nil
}

func testServer(t *testing.T) (*Server, *database.DB, *stubConnector) {
	t.Helper()
	db, err := database.New(config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 2})
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	stub := &stubConnector{
		platform: models.PlatformYouTube,
		governor: connector.NewGovernor(models.PlatformYouTube, connector.GovernorConfig{QuotaLimit: 10000}, nil),
	}

	cfg := &config.Config{}
	cfg.API.DefaultPageSize = 20
	cfg.API.MaxPageSize = 100
	cfg.API.ReportHideThreshold = 2
	cfg.API.RateLimitReqs = 10000
	cfg.API.RateLimitWindow = time.Minute
	cfg.Server.Port = 8080

	srv := NewServer(cfg, db, map[models.Platform]connector.Connector{models.PlatformYouTube: stub})
	return srv, db, stub
}

func seedStream(t *testing.T, db *database.DB, id string, viewers int) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	streamID, err := db.UpsertStream(context.Background(), &models.Stream{
		Platform:         models.PlatformYouTube,
		PlatformStreamID: id,
		Title:            "March downtown " + id,
		Status:           models.StatusLive,
		ViewerCount:      viewers,
		PeakViewerCount:  viewers,
		DetectedAt:       now,
		LastCheckedAt:    now,
		MatchedKeywords:  []string{"march"},
		DiscoveryMethod:  models.DiscoverySearch,
		Channel: &models.Channel{
			Platform:          models.PlatformYouTube,
			PlatformChannelID: "chan-" + id,
			DisplayName:       "Channel " + id,
			TrustScore:        0.6,
			PollingPriority:   models.PriorityMedium,
		},
	})
	if err != nil {
		t.Fatalf("seed upsert failed: %v", err)
	}
	return streamID
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp APIResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, resp
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := testServer(t)
	handler := srv.Handler()

	rec, _ := doRequest(t, handler, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", rec.Code)
	}
	rec, _ = doRequest(t, handler, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz: expected 200, got %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, stub := testServer(t)
	stub.governor.ConsumeQuota(150)

	rec, resp := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	raw, _ := json.Marshal(resp.Data)
	var status statusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("failed to decode status payload: %v", err)
	}
	if len(status.Connectors) != 1 {
		t.Fatalf("expected one connector, got %d", len(status.Connectors))
	}
	cs := status.Connectors[0]
	if cs.Platform != models.PlatformYouTube || cs.QuotaConsumed != 150 || cs.QuotaLimit != 10000 {
		t.Errorf("unexpected connector status: %+v", cs)
	}
	if cs.Status != string(connector.StatusActive) {
		t.Errorf("expected active, got %s", cs.Status)
	}
}

func TestListStreamsPagination(t *testing.T) {
	srv, db, _ := testServer(t)
	for i := 0; i < 3; i++ {
		seedStream(t, db, fmt.Sprintf("vid-%d", i), (i+1)*100)
	}

	rec, resp := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/streams/?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp.Meta == nil || resp.Meta.Pagination == nil {
		t.Fatal("expected pagination metadata")
	}
	p := resp.Meta.Pagination
	if p.Total != 3 || p.Count != 2 || !p.HasMore {
		t.Errorf("unexpected pagination: %+v", p)
	}
}

func TestListStreamsRejectsUnknownStatus(t *testing.T) {
	srv, _, _ := testServer(t)
	rec, resp := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/streams/?status=BOGUS", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeBadRequest {
		t.Errorf("expected BAD_REQUEST error, got %+v", resp.Error)
	}
}

func TestGetStream(t *testing.T) {
	srv, db, _ := testServer(t)
	id := seedStream(t, db, "vid-1", 100)
	handler := srv.Handler()

	rec, _ := doRequest(t, handler, http.MethodGet, "/api/v1/streams/"+id.String(), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec, _ = doRequest(t, handler, http.MethodGet, "/api/v1/streams/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing stream: expected 404, got %d", rec.Code)
	}

	rec, _ = doRequest(t, handler, http.MethodGet, "/api/v1/streams/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}
}

func TestReportStreamHidesAtThreshold(t *testing.T) {
	srv, db, _ := testServer(t)
	id := seedStream(t, db, "vid-1", 100)
	handler := srv.Handler()
	path := "/api/v1/streams/" + id.String() + "/report"

	rec, resp := doRequest(t, handler, http.MethodPost, path,
		reportRequest{DeviceID: "device-a", Reason: "spam"})
	if rec.Code != http.StatusOK {
		t.Fatalf("first report: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if hidden := resp.Data.(map[string]interface{})["hidden"]; hidden != false {
		t.Error("first report must not hide")
	}

	rec, resp = doRequest(t, handler, http.MethodPost, path,
		reportRequest{DeviceID: "device-b", Reason: "spam"})
	if rec.Code != http.StatusOK {
		t.Fatalf("second report: expected 200, got %d", rec.Code)
	}
	if hidden := resp.Data.(map[string]interface{})["hidden"]; hidden != true {
		t.Error("second report must hide")
	}
}

func TestReportValidation(t *testing.T) {
	srv, db, _ := testServer(t)
	id := seedStream(t, db, "vid-1", 100)

	rec, resp := doRequest(t, srv.Handler(), http.MethodPost,
		"/api/v1/streams/"+id.String()+"/report", reportRequest{DeviceID: "device-a"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing reason, got %d", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed {
		t.Errorf("expected VALIDATION_FAILED, got %+v", resp.Error)
	}
}

func TestFollowLifecycle(t *testing.T) {
	srv, db, _ := testServer(t)
	seedStream(t, db, "vid-1", 100)
	ch, err := db.GetChannelByNaturalKey(context.Background(), models.PlatformYouTube, "chan-vid-1")
	if err != nil || ch == nil {
		t.Fatalf("seed channel missing: %v", err)
	}
	handler := srv.Handler()

	rec, _ := doRequest(t, handler, http.MethodPost, "/api/v1/follows/",
		followRequest{DeviceID: "device-a", ChannelID: ch.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("follow: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, resp := doRequest(t, handler, http.MethodGet, "/api/v1/follows/?device_id=device-a", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list follows: expected 200, got %d", rec.Code)
	}
	if channels, ok := resp.Data.([]interface{}); !ok || len(channels) != 1 {
		t.Errorf("expected one followed channel, got %v", resp.Data)
	}

	rec, _ = doRequest(t, handler, http.MethodDelete, "/api/v1/follows/",
		followRequest{DeviceID: "device-a", ChannelID: ch.ID})
	if rec.Code != http.StatusNoContent {
		t.Errorf("unfollow: expected 204, got %d", rec.Code)
	}
}

func TestFollowUnknownChannel(t *testing.T) {
	srv, _, _ := testServer(t)
	rec, _ := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/follows/",
		followRequest{DeviceID: "device-a", ChannelID: uuid.New()})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestSubmitChannel(t *testing.T) {
	srv, db, stub := testServer(t)
	stub.channel = &models.Channel{
		Platform:          models.PlatformYouTube,
		PlatformChannelID: "UCnews",
		DisplayName:       "Newsroom",
		TrustScore:        0.7,
		PollingPriority:   models.PriorityMedium,
	}
	handler := srv.Handler()

	rec, _ := doRequest(t, handler, http.MethodPost, "/api/v1/submissions",
		submissionRequest{Platform: "youtube", ChannelID: "UCnews", Category: "news"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	seeds, err := db.GetSeedChannelIDs(context.Background(), models.PlatformYouTube)
	if err != nil {
		t.Fatalf("GetSeedChannelIDs failed: %v", err)
	}
	if len(seeds) != 1 || seeds[0] != "UCnews" {
		t.Errorf("submission must seed the channel, got %v", seeds)
	}

	// A channel the platform does not know is rejected.
	rec, _ = doRequest(t, handler, http.MethodPost, "/api/v1/submissions",
		submissionRequest{Platform: "youtube", ChannelID: "UCghost"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown channel: expected 404, got %d", rec.Code)
	}

	// A disabled platform is rejected.
	rec, _ = doRequest(t, handler, http.MethodPost, "/api/v1/submissions",
		submissionRequest{Platform: "twitch", ChannelID: "someone"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("disabled platform: expected 400, got %d", rec.Code)
	}
}
