// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Configuration constants.
const (
	// DefaultBaseURL is used when neither Config nor the credential store
	// provide one.
	DefaultBaseURL = "http://127.0.0.1:8080"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxAttempts is the total attempt count for retryable requests.
	DefaultMaxAttempts = 3

	// DefaultUserAgent identifies the client.
	DefaultUserAgent = "samchat/1.0"

	// DefaultMaxLineSize is the largest stream line accepted.
	DefaultMaxLineSize = 1 << 20

	// MaxResponseSize caps non-streaming response bodies.
	MaxResponseSize = 10 * 1024 * 1024

	// maxErrorBodySize caps how much of an error body is read for a message.
	maxErrorBodySize = 64 * 1024

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second
)

// API paths.
const (
	ChatCompletionsPath = "/v1/chat/completions"
)

// CredentialStore supplies the base URL override and bearer token, and is
// told to forget the token when the server answers 401.
type CredentialStore interface {
	BaseURL(fallback string) string
	Token() string
	Invalidate() error
}

// Config holds client configuration. The zero value of any field means its
// default.
type Config struct {
	// BaseURL is used when Credentials is nil or returns no override.
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	UserAgent   string
	MaxLineSize int

	// HTTPClient is shared by all requests. It must not set a Timeout,
	// streams are bounded only by their context.
	HTTPClient *http.Client

	Credentials CredentialStore

	// OnAuthRequired is called after credentials were invalidated by a 401.
	OnAuthRequired func()

	Logger *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Timeout:     DefaultTimeout,
		MaxAttempts: DefaultMaxAttempts,
		UserAgent:   DefaultUserAgent,
		MaxLineSize: DefaultMaxLineSize,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat backend. It holds no per-request state and is
// safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	log     *slog.Logger
	backoff func(attempt int) time.Duration
}

// New creates a client, filling zero config values with defaults.
func New(cfg Config) *Client {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = defaults.MaxLineSize
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{cfg: cfg, http: httpClient, log: logger, backoff: calculateBackoff}
}

// BaseURL returns the effective base URL without a trailing slash.
func (c *Client) BaseURL() string {
	if c.cfg.Credentials != nil {
		if u := c.cfg.Credentials.BaseURL(c.cfg.BaseURL); u != "" {
			return strings.TrimRight(u, "/")
		}
	}
	return strings.TrimRight(c.cfg.BaseURL, "/")
}

func (c *Client) token() string {
	if c.cfg.Credentials == nil {
		return ""
	}
	return c.cfg.Credentials.Token()
}

// newRequest builds a request against the backend with the shared headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, body)
	if err != nil {
		return nil, requestError("failed to create request", err)
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// logResponse logs method, path, status and duration. Headers and bodies
// are never logged: they carry the token and conversation content.
func (c *Client) logResponse(req *http.Request, status int, start time.Time) {
	c.log.Debug("api response",
		"method", req.Method,
		"path", req.URL.Path,
		"status", status,
		"request_id", req.Header.Get("X-Request-ID"),
		"duration", time.Since(start).Round(time.Millisecond))
}

// =============================================================================
// ERROR RESPONSES
// =============================================================================

// handleErrorResponse converts a non-2xx response into an HTTPStatusError,
// or an AuthError for 401 after invalidating credentials.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	msg := extractErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized()
		return &ClientError{Type: ErrTypeAuth, Status: resp.StatusCode, Message: msg}
	}
	return &ClientError{Type: ErrTypeHTTPStatus, Status: resp.StatusCode, Message: msg}
}

func (c *Client) handleUnauthorized() {
	if c.cfg.Credentials != nil {
		if err := c.cfg.Credentials.Invalidate(); err != nil {
			c.log.Warn("failed to invalidate credentials", "error", err)
		}
	}
	if c.cfg.OnAuthRequired != nil {
		c.cfg.OnAuthRequired()
	}
}

// extractErrorMessage pulls a message out of the common error body shapes:
// {"error":{"message":..}}, {"error":".."}, {"message":".."}, {"detail":".."}.
// Non-JSON bodies are returned trimmed and shortened.
func extractErrorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var shaped struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &shaped); err != nil {
		if strings.HasPrefix(trimmed, "<") {
			return ""
		}
		return shorten(trimmed, 200)
	}

	if len(shaped.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(shaped.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var s string
		if json.Unmarshal(shaped.Error, &s) == nil && s != "" {
			return s
		}
	}
	if shaped.Message != "" {
		return shaped.Message
	}
	if len(shaped.Detail) > 0 {
		var s string
		if json.Unmarshal(shaped.Detail, &s) == nil {
			return s
		}
		return shorten(string(shaped.Detail), 200)
	}
	return ""
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
