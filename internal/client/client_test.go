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
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fakeCreds struct {
	mu          sync.Mutex
	baseURL     string
	token       string
	invalidated int
}

func (f *fakeCreds) BaseURL(fallback string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.baseURL != "" {
		return f.baseURL
	}
	return fallback
}

func (f *fakeCreds) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeCreds) Invalidate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.invalidated++
	return nil
}

func (f *fakeCreds) invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

// recorder captures stream callbacks in order.
type recorder struct {
	mu     sync.Mutex
	calls  []string
	chunks []string
	err    error
}

func (r *recorder) handler() StreamHandler {
	return StreamHandler{
		OnChunk: func(d Delta) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.calls = append(r.calls, "chunk")
			r.chunks = append(r.chunks, d.Text)
		},
		OnComplete: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.calls = append(r.calls, "complete")
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.calls = append(r.calls, "error")
			r.err = err
		},
	}
}

func (r *recorder) snapshot() ([]string, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...), append([]string(nil), r.chunks...), r.err
}

// sseServer writes each piece as its own flushed transport chunk.
func sseServer(t *testing.T, pieces ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, p := range pieces {
			io.WriteString(w, p)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(url string, creds CredentialStore) *Client {
	c := New(Config{BaseURL: url, Credentials: creds, Timeout: 5 * time.Second})
	c.backoff = func(int) time.Duration { return time.Millisecond }
	return c
}

func testRequest() ChatRequest {
	return ChatRequest{Model: "m", Messages: []Message{NewUserMessage("hi")}}
}

// =============================================================================
// STREAM TESTS
// =============================================================================

func TestChatStream_ThreeChunks(t *testing.T) {
	srv := sseServer(t,
		"data: {\"text\":\"Hel\"}\n",
		"data: {\"text\":\"lo\"}\n",
		"data: [DONE]\n")

	rec := &recorder{}
	err := newTestClient(srv.URL, nil).ChatStream(context.Background(), testRequest(), rec.handler())
	require.NoError(t, err)

	calls, chunks, _ := rec.snapshot()
	assert.Equal(t, []string{"chunk", "chunk", "complete"}, calls)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
}

func TestChatStream_SplitMidLine(t *testing.T) {
	srv := sseServer(t,
		"data: {\"te",
		"xt\":\"Hel\"}\ndata: {\"text\":\"lo\"}\nda",
		"ta: [DONE]\n")

	rec := &recorder{}
	require.NoError(t, newTestClient(srv.URL, nil).ChatStream(context.Background(), testRequest(), rec.handler()))

	calls, chunks, _ := rec.snapshot()
	assert.Equal(t, []string{"chunk", "chunk", "complete"}, calls)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
}

func TestChatStream_MalformedLineTolerated(t *testing.T) {
	srv := sseServer(t,
		"data: {\"text\":\"a\"}\n",
		"data: {not json\n",
		"data: {\"text\":\"b\"}\n",
		"data: [DONE]\n")

	rec := &recorder{}
	require.NoError(t, newTestClient(srv.URL, nil).ChatStream(context.Background(), testRequest(), rec.handler()))

	calls, chunks, err := rec.snapshot()
	assert.Equal(t, []string{"chunk", "chunk", "complete"}, calls)
	assert.Equal(t, []string{"a", "b"}, chunks)
	assert.NoError(t, err)
}

func TestChatStream_CompletesOnEOFWithoutDone(t *testing.T) {
	srv := sseServer(t, "data: {\"text\":\"only\"}\n")

	rec := &recorder{}
	require.NoError(t, newTestClient(srv.URL, nil).ChatStream(context.Background(), testRequest(), rec.handler()))

	calls, _, _ := rec.snapshot()
	assert.Equal(t, []string{"chunk", "complete"}, calls)
}

func TestChatStream_RequestShape(t *testing.T) {
	var (
		gotBody   map[string]any
		gotHeader http.Header
		gotPath   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	creds := &fakeCreds{token: "secret"}
	req := map[string]any{"model": "m", "messages": []any{}, "stream": false, "conversation_id": "c1"}
	require.NoError(t, newTestClient(srv.URL, creds).ChatStream(context.Background(), req, StreamHandler{}))

	assert.Equal(t, ChatCompletionsPath, gotPath)
	assert.Equal(t, true, gotBody["stream"])
	assert.Equal(t, "c1", gotBody["conversation_id"])
	assert.Equal(t, "Bearer secret", gotHeader.Get("Authorization"))
	assert.Equal(t, "text/event-stream", gotHeader.Get("Accept"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, DefaultUserAgent, gotHeader.Get("User-Agent"))
	assert.Len(t, gotHeader.Get("X-Request-ID"), 36)
}

func TestChatStream_NoTokenNoAuthorization(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Values("Authorization")
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL, &fakeCreds{}).ChatStream(context.Background(), testRequest(), StreamHandler{}))
	assert.Empty(t, auth)
}

func TestChatStream_BaseURLOverrideFromCredentials(t *testing.T) {
	srv := sseServer(t, "data: [DONE]\n")

	creds := &fakeCreds{baseURL: srv.URL + "/"}
	c := newTestClient("http://127.0.0.1:1", creds)
	assert.Equal(t, srv.URL, c.BaseURL())
	require.NoError(t, c.ChatStream(context.Background(), testRequest(), StreamHandler{}))
}

func TestChatStream_RejectsNonObjectRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	rec := &recorder{}
	err := newTestClient(srv.URL, nil).ChatStream(context.Background(), []string{"not", "an", "object"}, rec.handler())

	require.Error(t, err)
	assert.Equal(t, ErrTypeRequest, err.(*ClientError).Type)
	assert.Zero(t, hits.Load(), "no request may reach the server")
	calls, _, _ := rec.snapshot()
	assert.Equal(t, []string{"error"}, calls)
}

func TestChatStream_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":{"message":"model is loading"}}`)
	}))
	defer srv.Close()

	rec := &recorder{}
	err := newTestClient(srv.URL, nil).ChatStream(context.Background(), testRequest(), rec.handler())

	require.Error(t, err)
	assert.True(t, IsHTTPStatus(err))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	assert.Contains(t, err.Error(), "model is loading")

	calls, _, cbErr := rec.snapshot()
	assert.Equal(t, []string{"error"}, calls)
	assert.Same(t, err, cbErr)
}

func TestChatStream_UnauthorizedInvalidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	creds := &fakeCreds{token: "stale"}
	rec := &recorder{}
	err := newTestClient(srv.URL, creds).ChatStream(context.Background(), testRequest(), rec.handler())

	assert.True(t, errors.Is(err, ErrReauthRequired))
	assert.False(t, IsHTTPStatus(err))
	assert.Equal(t, 1, creds.invalidations())
	calls, _, _ := rec.snapshot()
	assert.Equal(t, []string{"error"}, calls)
}

func TestChatStream_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	rec := &recorder{}
	err := newTestClient(url, nil).ChatStream(context.Background(), testRequest(), rec.handler())

	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, "Cannot connect to the server", UserMessage(err))
	calls, _, _ := rec.snapshot()
	assert.Equal(t, []string{"error"}, calls)
}

func TestChatStream_AbruptCloseIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"text\":\"partial\"}\n")
		w.(http.Flusher).Flush()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	rec := &recorder{}
	err := newTestClient(srv.URL, nil).ChatStream(context.Background(), testRequest(), rec.handler())

	require.Error(t, err)
	assert.True(t, IsTransport(err))
	calls, chunks, _ := rec.snapshot()
	assert.Equal(t, []string{"chunk", "error"}, calls)
	assert.Equal(t, []string{"partial"}, chunks)
}

func TestChatStream_ContextCancelIsSilent(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"text\":\"first\"}\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	h := rec.handler()
	onChunk := h.OnChunk
	h.OnChunk = func(d Delta) {
		onChunk(d)
		cancel()
	}

	err := newTestClient(srv.URL, nil).ChatStream(ctx, testRequest(), h)

	assert.True(t, errors.Is(err, context.Canceled))
	calls, _, _ := rec.snapshot()
	assert.Equal(t, []string{"chunk"}, calls)
}

func TestSend_CompletesAsync(t *testing.T) {
	srv := sseServer(t, "data: {\"text\":\"a\"}\n", "data: [DONE]\n")

	rec := &recorder{}
	st := newTestClient(srv.URL, nil).Send(context.Background(), testRequest(), rec.handler())

	require.NoError(t, st.Wait())
	select {
	case <-st.Done():
	default:
		t.Fatal("Done must be closed after Wait returns")
	}
	calls, _, _ := rec.snapshot()
	assert.Equal(t, []string{"chunk", "complete"}, calls)
}

func TestSend_CloseStopsCallbacks(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"text\":\"first\"}\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
			io.WriteString(w, "data: {\"text\":\"late\"}\ndata: [DONE]\n")
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	gotFirst := make(chan struct{})
	var once sync.Once
	rec := &recorder{}
	h := rec.handler()
	onChunk := h.OnChunk
	h.OnChunk = func(d Delta) {
		onChunk(d)
		once.Do(func() { close(gotFirst) })
	}

	st := newTestClient(srv.URL, nil).Send(context.Background(), testRequest(), h)
	<-gotFirst
	st.Close()
	close(release)

	err := st.Wait()
	assert.True(t, errors.Is(err, context.Canceled))
	st.Close()

	calls, chunks, _ := rec.snapshot()
	assert.Equal(t, []string{"chunk"}, calls)
	assert.Equal(t, []string{"first"}, chunks)
}

func TestChatStream_ConcurrentIndependentStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ConversationID string `json:"conversation_id"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for _, part := range strings.Split(body.ConversationID, "") {
			io.WriteString(w, "data: {\"text\":\""+part+"\"}\n")
			w.(http.Flusher).Flush()
		}
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	ids := []string{"alpha", "bravo", "charlie", "delta"}
	results := make([]string, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var sb strings.Builder
			req := ChatRequest{ConversationID: id, Messages: []Message{NewUserMessage("x")}}
			err := c.ChatStream(context.Background(), req, StreamHandler{
				OnChunk: func(d Delta) { sb.WriteString(d.Text) },
			})
			if err == nil {
				results[i] = sb.String()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, ids, results)
}
