// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/client"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/markdown"
)

// fakeStreamer replays scripted deltas through the handler.
type fakeStreamer struct {
	mu     sync.Mutex
	reqs   []client.ChatRequest
	script func(call int) ([]client.Delta, error)
}

func replay(deltas []client.Delta, err error) *fakeStreamer {
	return &fakeStreamer{script: func(int) ([]client.Delta, error) { return deltas, err }}
}

func (f *fakeStreamer) ChatStream(ctx context.Context, req any, h client.StreamHandler) error {
	f.mu.Lock()
	f.reqs = append(f.reqs, req.(client.ChatRequest))
	call := len(f.reqs)
	f.mu.Unlock()

	deltas, err := f.script(call)
	for _, d := range deltas {
		if h.OnChunk != nil {
			h.OnChunk(d)
		}
	}
	if err != nil {
		if h.OnError != nil {
			h.OnError(err)
		}
		return err
	}
	if h.OnComplete != nil {
		h.OnComplete()
	}
	return nil
}

func (f *fakeStreamer) requests() []client.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.ChatRequest(nil), f.reqs...)
}

func text(parts ...string) []client.Delta {
	out := make([]client.Delta, len(parts))
	for i, p := range parts {
		out[i] = client.Delta{Text: p}
	}
	return out
}

func TestSession_AskAccumulates(t *testing.T) {
	deltas := append(text("Hello ", "**world**"), client.Delta{FinishReason: "stop", Model: "sam-1"})
	s := New(replay(deltas, nil), Options{RenderInterval: -1})

	var updates []Update
	reply, err := s.Ask(context.Background(), client.ChatRequest{Messages: []client.Message{client.NewUserMessage("hi")}},
		func(u Update) { updates = append(updates, u) })
	require.NoError(t, err)

	assert.Equal(t, "Hello **world**", reply.Text)
	assert.Equal(t, "<p>Hello <strong>world</strong></p>", reply.HTML)
	assert.Equal(t, 3, reply.Chunks)
	assert.Equal(t, "stop", reply.FinishReason)
	assert.Equal(t, "sam-1", reply.Model)
	assert.GreaterOrEqual(t, reply.Duration, reply.TTFT)

	// One update per text chunk, then the final one.
	require.Len(t, updates, 3)
	assert.Equal(t, "Hello ", updates[0].Text)
	assert.False(t, updates[0].Final)
	assert.Equal(t, "Hello **world**", updates[1].Text)
	last := updates[2]
	assert.True(t, last.Final)
	assert.NoError(t, last.Err)
	assert.Equal(t, reply.HTML, last.HTML)
}

func TestSession_RenderThrottled(t *testing.T) {
	s := New(replay(text("a", "b", "c", "d", "e"), nil), Options{RenderInterval: time.Hour})

	var updates []Update
	reply, err := s.Ask(context.Background(), client.ChatRequest{}, func(u Update) { updates = append(updates, u) })
	require.NoError(t, err)

	assert.Equal(t, "abcde", reply.Text)
	require.Len(t, updates, 2, "first chunk and final state only")
	assert.Equal(t, "a", updates[0].Text)
	assert.Equal(t, "abcde", updates[1].Text)
	assert.True(t, updates[1].Final)
}

func TestSession_ToolCards(t *testing.T) {
	s := New(replay(text("EXECUTING: search_web\n", "SUCCESS: search_web: 3 results"), nil), Options{})

	reply, err := s.Ask(context.Background(), client.ChatRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []markdown.ToolCard{
		{Name: "search_web", Status: markdown.StatusRunning},
		{Name: "search_web", Status: markdown.StatusSuccess, Details: "3 results"},
	}, reply.Cards)
}

func TestSession_ErrorKeepsPartialText(t *testing.T) {
	boom := errors.New("connection lost")
	s := New(replay(text("partial"), boom), Options{})

	var final Update
	reply, err := s.Say(context.Background(), "hi", func(u Update) {
		if u.Final {
			final = u
		}
	})
	require.ErrorIs(t, err, boom)
	require.NotNil(t, reply)
	assert.Equal(t, "partial", reply.Text)
	assert.Equal(t, "<p>partial</p>", reply.HTML)
	assert.ErrorIs(t, final.Err, boom)
	assert.Empty(t, s.History(), "failed turns are not committed")
}

func TestSession_RetryNothing(t *testing.T) {
	s := New(replay(nil, nil), Options{})
	_, err := s.Retry(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestSession_RetryAfterFailure(t *testing.T) {
	f := &fakeStreamer{script: func(call int) ([]client.Delta, error) {
		if call == 1 {
			return text("par"), errors.New("dropped")
		}
		return text("hi ", "there"), nil
	}}
	s := New(f, Options{Model: "m"})

	_, err := s.Say(context.Background(), "hello", nil)
	require.Error(t, err)

	var updates []Update
	reply, err := s.Retry(context.Background(), func(u Update) { updates = append(updates, u) })
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply.Text, "retry starts from an empty reply")
	for _, u := range updates {
		assert.NotContains(t, u.Text, "par")
	}

	reqs := f.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0], reqs[1], "retry resends the same request")
	assert.Equal(t, "m", reqs[1].Model)
	assert.Equal(t, s.ID(), reqs[1].ConversationID)

	assert.Equal(t, []client.Message{
		client.NewUserMessage("hello"),
		client.NewAssistantMessage("hi there"),
	}, s.History())
}

func TestSession_SayBuildsHistory(t *testing.T) {
	f := &fakeStreamer{script: func(call int) ([]client.Delta, error) {
		return text(fmt.Sprintf("answer %d", call)), nil
	}}
	s := New(f, Options{System: "be brief"})

	_, err := s.Say(context.Background(), "one", nil)
	require.NoError(t, err)
	_, err = s.Say(context.Background(), "two", nil)
	require.NoError(t, err)

	reqs := f.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []client.Message{
		client.NewSystemMessage("be brief"),
		client.NewUserMessage("one"),
		client.NewAssistantMessage("answer 1"),
		client.NewUserMessage("two"),
	}, reqs[1].Messages)
	assert.Len(t, s.History(), 4)
}

func TestSession_RetryAfterSuccessReplacesReply(t *testing.T) {
	f := &fakeStreamer{script: func(call int) ([]client.Delta, error) {
		return text(fmt.Sprintf("take %d", call)), nil
	}}
	s := New(f, Options{})

	_, err := s.Say(context.Background(), "q", nil)
	require.NoError(t, err)
	_, err = s.Retry(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []client.Message{
		client.NewUserMessage("q"),
		client.NewAssistantMessage("take 2"),
	}, s.History())
}

func TestSession_Reset(t *testing.T) {
	s := New(replay(text("x"), nil), Options{})
	id := s.ID()
	_, err := s.Say(context.Background(), "q", nil)
	require.NoError(t, err)

	s.Reset()
	assert.NotEqual(t, id, s.ID())
	assert.Empty(t, s.History())
	_, err = s.Retry(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestSession_WithClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"text\":\"# Title\\n\"}\n")
		fmt.Fprint(w, "data: not json\n")
		fmt.Fprint(w, "data: {\"text\":\"body\"}\n")
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	c := client.New(client.Config{BaseURL: srv.URL})
	s := New(c, Options{})

	reply, err := s.Say(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "# Title\nbody", reply.Text)
	assert.Equal(t, "<h1>Title</h1>\n<p>body</p>", reply.HTML)
	assert.Equal(t, 2, reply.Chunks)
}
