// Package transport issues request/response calls against the scoring backend
// and opens its push notification channel. Each call is a single attempt;
// retries belong to the fetch package.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/internal/fetch"
	"github.com/okian/credash/pkg/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 8 << 20
)

// Client performs backend GET calls and decodes their JSON bodies.
type Client struct {
	http    *http.Client
	baseURL string
	apiBase string
	logger  logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client. baseURL serves /health; apiBase serves the score endpoints.
func NewClient(baseURL, apiBase string, opts ...Option) *Client {
	c := &Client{
		// attempt deadlines come from the caller's context
		http:    &http.Client{Transport: http.DefaultTransport},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiBase: strings.TrimRight(apiBase, "/"),
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (model.Health, error) {
	return getJSON[model.Health](ctx, c, c.baseURL+"/health")
}

// Scores calls GET {api}/scores.
func (c *Client) Scores(ctx context.Context) ([]model.ScoreRecord, error) {
	return getJSON[[]model.ScoreRecord](ctx, c, c.apiBase+"/scores")
}

// History calls GET {api}/scores/{issuer_id}/history.
func (c *Client) History(ctx context.Context, issuerID model.ID) ([]model.HistoryEntry, error) {
	return getJSON[[]model.HistoryEntry](ctx, c, fmt.Sprintf("%s/scores/%d/history", c.apiBase, issuerID))
}

// Explain calls GET {api}/explain/{score_id}.
func (c *Client) Explain(ctx context.Context, scoreID model.ID) ([]model.DriverExplanation, error) {
	return getJSON[[]model.DriverExplanation](ctx, c, fmt.Sprintf("%s/explain/%d", c.apiBase, scoreID))
}

// getJSON issues one GET. Transport and read failures are returned as-is,
// non-2xx statuses as *fetch.StatusError, bad bodies as *fetch.DecodeError.
func getJSON[T any](ctx context.Context, c *Client, url string) (T, error) {
	var out T
	reqID := uuid.NewString()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return out, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug(ctx, "request failed", logger.String("url", url), logger.String("requestID", reqID), logger.Error(err))
		return out, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug(ctx, "failed to close response body", logger.Error(err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return out, fmt.Errorf("%s: read body: %w", url, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Debug(ctx, "unexpected status",
			logger.String("url", url),
			logger.String("requestID", reqID),
			logger.Int("status", resp.StatusCode))
		return out, &fetch.StatusError{Code: resp.StatusCode, URL: url}
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return out, &fetch.DecodeError{URL: url, Err: err}
	}

	c.logger.Debug(ctx, "request done",
		logger.String("url", url),
		logger.String("requestID", reqID),
		logger.Duration("took", time.Since(start)))
	return out, nil
}
