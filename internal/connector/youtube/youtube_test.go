// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/connector"
	"github.com/streamlens/streamlens/internal/models"
)

func testConnector(t *testing.T, apiURL string, quotaLimit int64) *Connector {
	t.Helper()
	cfg := config.YouTubeConfig{
		Enabled:               true,
		APIKey:                "test-key",
		QuotaLimit:            quotaLimit,
		SearchInterval:        30 * time.Minute,
		LivenessBatchSize:     50,
		LivenessMissThreshold: 1,
		Keywords:              []string{"protest", "rally"},
		ExcludeKeywords:       []string{"gaming"},
	}
	gov := connector.NewGovernor(models.PlatformYouTube, connector.GovernorConfig{QuotaLimit: quotaLimit}, nil)
	client := connector.NewClient("youtube-test", 5*time.Second, connector.RetryConfig{Attempts: 1})
	c := New(cfg, gov, client)
	c.apiBaseURL = apiURL
	return c
}

func searchJSON(videoIDs ...string) string {
	out := `{"items":[`
	for i, id := range videoIDs {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"id":{"videoId":%q}}`, id)
	}
	return out + `]}`
}

func liveVideoJSON(id, channelID, title string, viewers int) string {
	return fmt.Sprintf(`{
		"id": %q,
		"snippet": {
			"title": %q,
			"description": "city center coverage",
			"channelId": %q,
			"channelTitle": "Test Channel",
			"thumbnails": {"high": {"url": "https://i.ytimg.com/%s/hq.jpg"}}
		},
		"liveStreamingDetails": {
			"actualStartTime": "2026-08-25T10:00:00Z",
			"concurrentViewers": "%d"
		},
		"statistics": {"viewCount": "99999"}
	}`, id, title, channelID, id, viewers)
}

func TestDiscoverNormalizesStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			if r.URL.Query().Get("eventType") != "live" {
				t.Errorf("search must request live events, got %q", r.URL.Query().Get("eventType"))
			}
			fmt.Fprint(w, searchJSON("vid-1", "vid-2", "vid-1"))
		case "/videos":
			fmt.Fprintf(w, `{"items":[%s,%s]}`,
				liveVideoJSON("vid-1", "chan-1", "Protest rally downtown", 1500),
				liveVideoJSON("vid-2", "chan-2", "Unrelated cooking show", 20))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := testConnector(t, server.URL, 10000)
	streams, err := c.Discover(context.Background(), []string{"protest", "rally"})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if len(streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(streams))
	}
	s := streams[0]
	if s.PlatformStreamID != "vid-1" || s.Platform != models.PlatformYouTube {
		t.Errorf("unexpected identity: %s/%s", s.Platform, s.PlatformStreamID)
	}
	if s.Status != models.StatusLive {
		t.Errorf("expected LIVE, got %s", s.Status)
	}
	if s.ViewerCount != 1500 || s.PeakViewerCount != 1500 {
		t.Errorf("unexpected viewers: %d peak %d", s.ViewerCount, s.PeakViewerCount)
	}
	if len(s.MatchedKeywords) != 2 {
		t.Errorf("expected both keywords matched, got %v", s.MatchedKeywords)
	}
	if s.Channel == nil || s.Channel.PlatformChannelID != "chan-1" {
		t.Error("discovery must carry the broadcaster identity")
	}
	if s.DiscoveryMethod != models.DiscoverySearch {
		t.Errorf("expected search discovery method, got %s", s.DiscoveryMethod)
	}

	// 100 for search.list plus 1 for the validation batch.
	if got := c.governor.QuotaConsumed(); got != 101 {
		t.Errorf("expected 101 units consumed, got %d", got)
	}
}

func TestDiscoverRespectsSearchInterval(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search" {
			calls++
		}
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer server.Close()

	c := testConnector(t, server.URL, 10000)

	if _, err := c.Discover(context.Background(), nil); err != nil {
		t.Fatalf("first discover failed: %v", err)
	}
	if _, err := c.Discover(context.Background(), nil); err != nil {
		t.Fatalf("second discover failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("second search within the minimum interval must be skipped, got %d calls", calls)
	}
}

func TestDiscoverBlockedByQuota(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no upstream call must happen when the budget cannot cover a search")
	}))
	defer server.Close()

	c := testConnector(t, server.URL, 99)
	streams, err := c.Discover(context.Background(), nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(streams) != 0 {
		t.Errorf("expected no streams, got %d", len(streams))
	}
	if c.governor.IsOperational() {
		t.Error("quota trip must pause the connector")
	}
}

func TestCheckLivenessAbsentIDsReportEnded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"items":[%s]}`, liveVideoJSON("vid-live", "chan-1", "Still going", 300))
	}))
	defer server.Close()

	c := testConnector(t, server.URL, 10000)
	updates, err := c.CheckLiveness(context.Background(), []string{"vid-live", "vid-gone"})
	if err != nil {
		t.Fatalf("CheckLiveness failed: %v", err)
	}

	if len(updates) != 2 {
		t.Fatalf("expected exactly one update per requested id, got %d", len(updates))
	}
	byID := make(map[string]models.StreamUpdate, len(updates))
	for _, u := range updates {
		byID[u.PlatformStreamID] = u
	}

	if u := byID["vid-live"]; u.Status != models.StatusLive || u.ViewerCount != 300 {
		t.Errorf("live id: got %s/%d", u.Status, u.ViewerCount)
	}
	if u := byID["vid-gone"]; u.Status != models.StatusEnded || u.ViewerCount != 0 {
		t.Errorf("absent id must be ENDED with zero viewers, got %s/%d", u.Status, u.ViewerCount)
	}
	if got := c.governor.QuotaConsumed(); got != 1 {
		t.Errorf("one batch must cost one unit, got %d", got)
	}
}

func TestCheckLivenessEndedBroadcastNeverReportsCumulativeViews(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// An ended broadcast: no concurrentViewers, a huge cumulative
		// view count that must not leak into the update.
		fmt.Fprint(w, `{"items":[{
			"id": "vid-over",
			"snippet": {"title": "Rally wrap-up", "channelId": "chan-1", "channelTitle": "Test Channel"},
			"liveStreamingDetails": {
				"actualStartTime": "2026-08-25T10:00:00Z",
				"actualEndTime": "2026-08-25T12:00:00Z"
			},
			"statistics": {"viewCount": "1000000"}
		}]}`)
	}))
	defer server.Close()

	c := testConnector(t, server.URL, 10000)
	updates, err := c.CheckLiveness(context.Background(), []string{"vid-over"})
	if err != nil {
		t.Fatalf("CheckLiveness failed: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected one update, got %d", len(updates))
	}
	if u := updates[0]; u.Status != models.StatusEnded || u.ViewerCount != 0 {
		t.Errorf("ended broadcast must report zero concurrent viewers, got %s/%d", u.Status, u.ViewerCount)
	}
}

func TestCheckLivenessPartialOnQuotaExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer server.Close()

	c := testConnector(t, server.URL, 1)

	// 60 ids at batch size 50 need two units; the budget covers one.
	ids := make([]string, 60)
	for i := range ids {
		ids[i] = fmt.Sprintf("vid-%d", i)
	}
	updates, err := c.CheckLiveness(context.Background(), ids)
	if err != nil {
		t.Fatalf("CheckLiveness failed: %v", err)
	}
	if len(updates) != 50 {
		t.Errorf("expected updates only for the funded batch, got %d", len(updates))
	}
}

func TestGetChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{
			"id": "chan-1",
			"snippet": {
				"title": "Street Reports",
				"publishedAt": "2020-01-01T00:00:00Z",
				"thumbnails": {"default": {"url": "https://yt3.ggpht.com/a.jpg"}}
			},
			"statistics": {"subscriberCount": "100000"}
		}]}`)
	}))
	defer server.Close()

	c := testConnector(t, server.URL, 10000)
	channel, err := c.GetChannel(context.Background(), "chan-1")
	if err != nil {
		t.Fatalf("GetChannel failed: %v", err)
	}
	if channel == nil {
		t.Fatal("expected a channel")
	}
	if channel.DisplayName != "Street Reports" || channel.SubscriberCount != 100000 {
		t.Errorf("unexpected channel: %+v", channel)
	}
	// Account older than a year and 100k subs saturate age and reach:
	// 0.3 + 0.3 + 0.4*0.5 = 0.80.
	if channel.TrustScore != 0.80 {
		t.Errorf("expected trust 0.80, got %v", channel.TrustScore)
	}
}

func TestGetChannelMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer server.Close()

	c := testConnector(t, server.URL, 10000)
	channel, err := c.GetChannel(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetChannel failed: %v", err)
	}
	if channel != nil {
		t.Errorf("expected nil for a missing channel, got %+v", channel)
	}
}

func TestDiscoverFromFeeds(t *testing.T) {
	recent := time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339)
	stale := time.Now().UTC().Add(-3 * time.Hour).Format(time.RFC3339)

	mux := http.NewServeMux()
	mux.HandleFunc("/feeds/videos.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <yt:videoId>vid-fresh</yt:videoId>
    <title>LIVE: protest march</title>
    <published>%s</published>
  </entry>
  <entry>
    <yt:videoId>vid-stale</yt:videoId>
    <title>old upload</title>
    <published>%s</published>
  </entry>
</feed>`, recent, stale)
	})
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "vid-fresh" {
			t.Errorf("only fresh candidates must be validated, got ids %q", got)
		}
		fmt.Fprintf(w, `{"items":[%s]}`, liveVideoJSON("vid-fresh", "chan-seed", "LIVE: protest march", 42))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := testConnector(t, server.URL, 10000)
	c.feedBaseURL = server.URL + "/feeds/videos.xml"

	streams, err := c.DiscoverFromFeeds(context.Background(), []string{"chan-seed"}, []string{"protest"})
	if err != nil {
		t.Fatalf("DiscoverFromFeeds failed: %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(streams))
	}
	if streams[0].DiscoveryMethod != models.DiscoveryRSS {
		t.Errorf("expected rss discovery method, got %s", streams[0].DiscoveryMethod)
	}
	// Feeds are free; only the validation batch costs a unit.
	if got := c.governor.QuotaConsumed(); got != 1 {
		t.Errorf("expected 1 unit consumed, got %d", got)
	}
}

func TestAuthenticateRequiresKey(t *testing.T) {
	gov := connector.NewGovernor(models.PlatformYouTube, connector.GovernorConfig{}, nil)
	client := connector.NewClient("youtube-auth-test", time.Second, connector.RetryConfig{Attempts: 1})
	c := New(config.YouTubeConfig{}, gov, client)

	if err := c.Authenticate(context.Background()); err == nil {
		t.Error("expected an error without an api key")
	}
}
