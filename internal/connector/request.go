// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/streamlens/streamlens/internal/metrics"
)

// RetryConfig drives the per-call retry loop inside a task. The delay
// doubles per attempt and is capped at MaxDelay.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetry matches the scheduler defaults.
var DefaultRetry = RetryConfig{
	Attempts: 3,
	Delay:    2 * time.Second,
	MaxDelay: 60 * time.Second,
}

// HTTPError carries the status code of a non-2xx upstream response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned %s: %s", e.Status, e.Body)
}

// Retryable reports whether the failure is worth another attempt: server
// errors and throttling are transient, other client errors are not.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client is the shared HTTP layer under every platform adapter: a circuit
// breaker around the transport, a bounded retry loop with exponential
// backoff, and JSON decoding of the response body.
type Client struct {
	name  string
	http  *http.Client
	cb    *gobreaker.CircuitBreaker[*http.Response]
	retry RetryConfig
}

// NewClient builds a Client named after the platform it serves.
func NewClient(name string, timeout time.Duration, retry RetryConfig) *Client {
	if retry.Attempts <= 0 {
		retry = DefaultRetry
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		name:  name,
		http:  &http.Client{Timeout: timeout},
		cb:    newTransportBreaker(name),
		retry: retry,
	}
}

// DoJSON executes the request with retries, decodes the body into out when
// out is non-nil, and returns the response headers. On failure the headers
// of the last upstream response, if any, accompany the error so callers can
// still read throttling hints off a rejected reply. Requests that may be
// retried must carry a rewindable body (GetBody set, which http.NewRequest
// does for common body types).
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out interface{}) (http.Header, error) {
	var lastErr error
	var lastHeader http.Header
	delay := c.retry.Delay

	for attempt := 0; attempt < c.retry.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return lastHeader, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.retry.MaxDelay {
				delay = c.retry.MaxDelay
			}
		}

		attemptReq, err := rewind(req)
		if err != nil {
			return lastHeader, err
		}

		header, retryable, err := c.doOnce(ctx, attemptReq, out)
		if err == nil {
			return header, nil
		}
		if header != nil {
			lastHeader = header
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return lastHeader, lastErr
}

// DoRaw executes the request with retries and returns the raw body, for
// non-JSON payloads such as atom feeds.
func (c *Client) DoRaw(ctx context.Context, req *http.Request) ([]byte, error) {
	var body []byte
	out := &rawSink{dst: &body}
	if _, err := c.DoJSON(ctx, req, out); err != nil {
		return nil, err
	}
	return body, nil
}

// rawSink diverts the response body away from the JSON decoder.
type rawSink struct {
	dst *[]byte
}

// doOnce executes one attempt through the transport breaker.
func (c *Client) doOnce(ctx context.Context, req *http.Request, out interface{}) (http.Header, bool, error) {
	start := time.Now()

	resp, err := c.cb.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			// Count server errors against the breaker.
			body := readSnippet(resp.Body)
			resp.Body.Close()
			return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
		}
		return resp, nil
	})

	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(c.name, "rejected").Inc()
			return nil, false, fmt.Errorf("transport breaker open for %s: %w", c.name, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()

		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return nil, httpErr.Retryable(), httpErr
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("request to %s failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	metrics.CircuitBreakerRequests.WithLabelValues(c.name, "success").Inc()
	metrics.PlatformRequestDuration.WithLabelValues(c.name, req.Method).Observe(duration.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       readSnippet(resp.Body),
		}
		return resp.Header, httpErr.Retryable(), httpErr
	}

	switch sink := out.(type) {
	case nil:
	case *rawSink:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.Header, true, fmt.Errorf("failed to read %s response: %w", c.name, err)
		}
		*sink.dst = data
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, false, fmt.Errorf("failed to decode %s response: %w", c.name, err)
		}
	}
	return resp.Header, false, nil
}

// rewind clones the request with a fresh body for a retry attempt.
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.GetBody == nil {
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

// readSnippet reads a bounded prefix of an error body for diagnostics.
func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(data)
}
