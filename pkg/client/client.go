// Package client is a typed client for the tester API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/psantana5/e2e-tester/pkg/models"
	"github.com/psantana5/e2e-tester/pkg/retry"
	"github.com/psantana5/e2e-tester/pkg/tracing"
)

// DefaultTimeout leaves room for a full browser run plus cleanup
const DefaultTimeout = 45 * time.Second

// APIError is a non-2xx answer from the service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running tester service
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      retry.Config
}

// Option customizes a Client
type Option func(*Client)

// WithAPIKey sends key as a bearer token
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry replaces the retry policy
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// New creates a client for baseURL, e.g. http://localhost:3001
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retry:      retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunTest asks the service to run a browser test against url
func (c *Client) RunTest(ctx context.Context, url string) (*models.TestResult, error) {
	var res models.TestResult
	if err := c.do(ctx, http.MethodPost, "/run-test", models.RunTestRequest{URL: url}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RunDefaultTest triggers the service's fixed target with its expected title
func (c *Client) RunDefaultTest(ctx context.Context) (*models.TestResult, error) {
	var res models.TestResult
	if err := c.do(ctx, http.MethodGet, "/run-test", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CheckURL asks the service whether url is reachable
func (c *Client) CheckURL(ctx context.Context, url string) (*models.CheckResult, error) {
	var res models.CheckResult
	if err := c.do(ctx, http.MethodPost, "/api/check-url", models.CheckURLRequest{URL: url}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health fetches the service health
func (c *Client) Health(ctx context.Context) (*models.HealthStatus, error) {
	var res models.HealthStatus
	if err := c.do(ctx, http.MethodGet, "/health", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// do retries network errors, timeouts and 5xx; 4xx answers are final
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = data
	}

	return retry.Do(ctx, c.retry, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		tracing.InjectHTTPHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
			if resp.StatusCode < 500 {
				return retry.Permanent(apiErr)
			}
			return apiErr
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	})
}

func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body models.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(raw))
}
