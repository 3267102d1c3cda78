// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dropConn closes the connection without writing a response, which the
// client sees as a transport failure.
func dropConn(w http.ResponseWriter) {
	conn, _, err := w.(http.Hijacker).Hijack()
	if err == nil {
		conn.Close()
	}
}

func TestRequestOnce_RetriesGETOnTransportError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			dropConn(w)
			return
		}
		io.WriteString(w, `{"id":"f1","name":"Work"}`)
	}))
	defer srv.Close()

	var out Folder
	err := newTestClient(srv.URL, nil).RequestOnce(context.Background(), http.MethodGet, "/v1/folders/f1", nil, &out)

	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, "Work", out.Name)
}

func TestRequestOnce_GivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		dropConn(w)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL, nil).RequestOnce(context.Background(), http.MethodGet, "/v1/folders", nil, nil)

	assert.True(t, IsTransport(err))
	assert.Equal(t, int32(DefaultMaxAttempts), hits.Load())
}

func TestRequestOnce_DoesNotRetryPOST(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		dropConn(w)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL, nil).RequestOnce(context.Background(), http.MethodPost, "/v1/folders", Folder{Name: "x"}, nil)

	assert.True(t, IsTransport(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestRequestOnce_DoesNotRetryHTTPStatus(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError} {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(status)
			io.WriteString(w, `{"detail":"nope"}`)
		}))

		err := newTestClient(srv.URL, nil).RequestOnce(context.Background(), http.MethodGet, "/v1/prompts", nil, nil)
		srv.Close()

		assert.True(t, IsHTTPStatus(err), "status %d", status)
		assert.Equal(t, status, StatusCode(err))
		assert.Contains(t, err.Error(), "nope")
		assert.Equal(t, int32(1), hits.Load(), "status %d must not be retried", status)
	}
}

func TestRequestOnce_UnauthorizedInvalidatesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"token expired"}`)
	}))
	defer srv.Close()

	creds := &fakeCreds{token: "old"}
	var hooked atomic.Int32
	c := New(Config{
		BaseURL:        srv.URL,
		Credentials:    creds,
		OnAuthRequired: func() { hooked.Add(1) },
	})

	err := c.RequestOnce(context.Background(), http.MethodGet, "/v1/conversations", nil, nil)

	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.True(t, errors.Is(err, ErrReauthRequired))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.Contains(t, err.Error(), "token expired")
	assert.Equal(t, int32(1), hits.Load(), "401 must not be retried")
	assert.Equal(t, 1, creds.invalidations())
	assert.Equal(t, int32(1), hooked.Load())
	assert.Empty(t, creds.Token())
}

func TestRequestOnce_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>oops</html>`)
	}))
	defer srv.Close()

	var out Folder
	err := newTestClient(srv.URL, nil).RequestOnce(context.Background(), http.MethodGet, "/v1/folders/1", nil, &out)
	assert.True(t, IsDecode(err))
}

func TestRequestOnce_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dropConn(w)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	c.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.RequestOnce(ctx, http.MethodGet, "/v1/folders", nil, nil)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestChat_ForcesStreamFalse(t *testing.T) {
	var body map[string]any
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, `{"id":"r1","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	req := testRequest()
	req.Stream = true
	resp, err := newTestClient(srv.URL, nil).Chat(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, false, body["stream"])
	assert.Equal(t, "hello", resp.Content())
	assert.Equal(t, int32(1), hits.Load())
}

func TestChat_NotRetriedOnTransportError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		dropConn(w)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, nil).Chat(context.Background(), testRequest())
	assert.True(t, IsTransport(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
