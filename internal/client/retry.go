// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// retryableMethods are the idempotent methods RequestOnce retries.
var retryableMethods = map[string]bool{
	http.MethodGet:  true,
	http.MethodHead: true,
}

// =============================================================================
// REQUEST ONCE
// =============================================================================

// RequestOnce performs a single JSON request against path and decodes the
// response into out (which may be nil). body, when non-nil, is marshalled
// as JSON.
//
// GET and HEAD requests that fail with a TransportError are retried up to
// MaxAttempts total attempts with capped exponential backoff. AuthErrors
// and HTTPStatusErrors are never retried. A 401 invalidates the stored
// credentials and returns an error matching ErrReauthRequired.
func (c *Client) RequestOnce(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return requestError("failed to marshal request", err)
		}
	}

	attempts := 1
	if retryableMethods[method] {
		attempts = c.cfg.MaxAttempts
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			c.log.Debug("retrying request", "method", method, "path", path,
				"attempt", attempt+1, "delay", delay, "error", err)
			if werr := sleepContext(ctx, delay); werr != nil {
				return werr
			}
		}

		err = c.doOnce(ctx, method, path, payload, out)
		if err == nil || !IsTransport(err) {
			return err
		}
	}
	return err
}

// Chat sends a non-streaming chat request ("stream" forced false). It is a
// POST and is never retried.
func (c *Client) Chat(ctx context.Context, req any) (*ChatResponse, error) {
	payload, err := encodeChatRequest(req, false)
	if err != nil {
		return nil, err
	}

	var resp ChatResponse
	if err := c.doOnce(ctx, http.MethodPost, ChatCompletionsPath, payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// doOnce performs exactly one HTTP exchange, bounded by the configured
// timeout.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := c.newRequest(reqCtx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyDoErr(ctx, "cannot connect to the server", err)
	}
	defer resp.Body.Close()
	c.logResponse(req, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return classifyDoErr(ctx, "failed to read response", err)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return decodeError("failed to decode response", err)
	}
	return nil
}

// calculateBackoff returns the delay before retry number attempt+1:
// 500ms, 1s, 2s, ... capped at 10s.
func calculateBackoff(attempt int) time.Duration {
	if attempt > 16 {
		return retryMaxDelay
	}
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
