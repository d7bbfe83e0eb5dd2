// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

// Package twitch implements the Twitch Helix API adapter.
//
// Twitch has no daily unit budget; instead Helix serves a token bucket of
// roughly 800 points per minute and reports the remaining balance in the
// Ratelimit-Remaining response header. The adapter paces itself below the
// bucket with a client-side limiter and pauses via the governor when the
// reported balance drops under the safety threshold.
package twitch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/connector"
	"github.com/streamlens/streamlens/internal/logging"
	"github.com/streamlens/streamlens/internal/metrics"
	"github.com/streamlens/streamlens/internal/models"
)

const (
	defaultAPIBaseURL = "https://api.twitch.tv/helix"
	defaultTokenURL   = "https://id.twitch.tv/oauth2/token"
)

// newsCategories are the category ids scanned for non-gaming live content.
var newsCategories = map[string]string{
	"509672": "News & Politics",
	"509658": "Just Chatting",
	"509673": "Talk Shows & Podcasts",
}

// tokenRefreshSlack refreshes the app token this long before its expiry.
const tokenRefreshSlack = time.Minute

// Connector is the Twitch platform adapter.
type Connector struct {
	cfg      config.TwitchConfig
	governor *connector.Governor
	client   *connector.Client
	limiter  *rate.Limiter

	apiBaseURL string
	tokenURL   string

	mu             sync.Mutex
	accessToken    string
	tokenExpiresAt time.Time
}

// New builds the adapter. The client-side limiter is derived from the
// configured requests-per-minute pace.
func New(cfg config.TwitchConfig, gov *connector.Governor, client *connector.Client) *Connector {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 600
	}
	return &Connector{
		cfg:        cfg,
		governor:   gov,
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 10),
		apiBaseURL: defaultAPIBaseURL,
		tokenURL:   defaultTokenURL,
	}
}

// Platform identifies the adapter.
func (c *Connector) Platform() models.Platform {
	return models.PlatformTwitch
}

// Governor exposes the governance counters.
func (c *Connector) Governor() *connector.Governor {
	return c.governor
}

// Authenticate obtains an app access token through the client credentials
// flow and remembers its expiry.
func (c *Connector) Authenticate(ctx context.Context) error {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		err := fmt.Errorf("twitch client credentials are not configured")
		c.governor.RecordError(err)
		return err
	}

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp tokenResponse
	if _, err := c.client.DoJSON(ctx, req, &resp); err != nil {
		c.governor.RecordError(err)
		return fmt.Errorf("twitch authentication failed: %w", err)
	}
	if resp.AccessToken == "" {
		err := fmt.Errorf("twitch token response carried no access token")
		c.governor.RecordError(err)
		return err
	}

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.tokenExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	c.mu.Unlock()

	logging.Info().Msg("twitch authentication successful")
	return nil
}

// ensureToken refreshes the app token on demand before it expires.
func (c *Connector) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	valid := c.accessToken != "" && time.Until(c.tokenExpiresAt) > tokenRefreshSlack
	c.mu.Unlock()
	if valid {
		return nil
	}
	return c.Authenticate(ctx)
}

// helixGet performs one paced, authenticated Helix call and folds the rate
// limit headers back into the governor.
func (c *Connector) helixGet(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.ensureToken(ctx); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build helix request: %w", err)
	}
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	req.Header.Set("Client-ID", c.cfg.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)

	header, err := c.client.DoJSON(ctx, req, out)
	if header != nil {
		c.checkRateLimit(header)
	}
	if err != nil {
		return err
	}

	// Unmetered platform; the unit tally still feeds usage reporting.
	c.governor.ConsumeQuota(1)
	return nil
}

// checkRateLimit reads the token bucket balance from the response headers
// and pauses the connector until the declared reset when the balance drops
// under the safety threshold.
func (c *Connector) checkRateLimit(header http.Header) {
	remaining, err := strconv.Atoi(header.Get("Ratelimit-Remaining"))
	if err != nil {
		return
	}
	metrics.RateLimitRemaining.WithLabelValues(string(models.PlatformTwitch)).Set(float64(remaining))

	if remaining >= c.cfg.RateLimitSafetyThreshold {
		return
	}

	reset := time.Now().Add(time.Minute)
	if ts, err := strconv.ParseInt(header.Get("Ratelimit-Reset"), 10, 64); err == nil {
		reset = time.Unix(ts, 0)
	}
	logging.Warn().
		Int("remaining", remaining).
		Time("reset", reset).
		Msg("twitch rate limit approaching, pausing")
	c.governor.PauseUntil(connector.ReasonRateLimit, reset)
}
