// Package stats fetches the aggregate usage statistics and derives the
// display model the dashboard renders.
package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"markin/internal/core"
)

// DefaultEndpoint is the production statistics API.
const DefaultEndpoint = "https://ngo-attendance-backend.el.r.appspot.com/api/v1/stats"

// maxBodyBytes bounds how much of the response body is read.
const maxBodyBytes = 1 << 20

// Fetcher is the contract consumed by the dashboard view state.
type Fetcher interface {
	FetchStats(ctx context.Context) (core.StatsSnapshot, error)
}

// Client issues the single GET against the statistics endpoint. It holds
// no per-call state and is safe for concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

var _ Fetcher = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the overall request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient returns a client bound to endpoint. An empty endpoint falls
// back to DefaultEndpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: newHTTPClientWithPooling(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL the client fetches.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// FetchStats performs exactly one request and never retries.
func (c *Client) FetchStats(ctx context.Context) (core.StatsSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return core.StatsSnapshot{}, transportError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "Stats request failed", "endpoint", c.endpoint, "error", err)
		return core.StatsSnapshot{}, transportError(fmt.Errorf("get %s: %w", c.endpoint, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return core.StatsSnapshot{}, transportError(fmt.Errorf("read body: %w", err))
	}
	if len(body) > maxBodyBytes {
		return core.StatsSnapshot{}, transportError(fmt.Errorf("response body exceeds %d bytes", maxBodyBytes))
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		slog.WarnContext(ctx, "Stats response is not a JSON envelope",
			"endpoint", c.endpoint,
			"status", resp.StatusCode,
			"content_type", resp.Header.Get("Content-Type"),
			"error", err)
		return core.StatsSnapshot{}, transportError(err)
	}

	if !env.Success {
		slog.InfoContext(ctx, "Stats service reported failure", "endpoint", c.endpoint, "status", resp.StatusCode)
		return core.StatsSnapshot{}, serverReported(errors.New("envelope success is false"))
	}
	if env.Data == nil {
		slog.InfoContext(ctx, "Stats envelope has no data", "endpoint", c.endpoint, "status", resp.StatusCode)
		return core.StatsSnapshot{}, serverReported(errors.New("envelope data is missing"))
	}

	slog.DebugContext(ctx, "Stats fetched",
		"endpoint", c.endpoint,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())
	return *env.Data, nil
}

// decodeEnvelope requires a JSON object; scalars, arrays and null are
// rejected the same way as malformed JSON.
func decodeEnvelope(body []byte) (core.StatsEnvelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return core.StatsEnvelope{}, errors.New("empty response body")
	}
	if trimmed[0] != '{' {
		return core.StatsEnvelope{}, errors.New("response body is not a JSON object")
	}
	var env core.StatsEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return core.StatsEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   10 * time.Second,
	}
}
