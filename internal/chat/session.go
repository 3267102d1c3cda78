// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/client"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/markdown"
)

// DefaultRenderInterval is the minimum time between intermediate renders.
const DefaultRenderInterval = 50 * time.Millisecond

// ErrNothingToRetry is returned by Retry before any request was made.
var ErrNothingToRetry = errors.New("nothing to retry")

// Streamer is the part of client.Client a Session needs.
type Streamer interface {
	ChatStream(ctx context.Context, req any, h client.StreamHandler) error
}

// =============================================================================
// TYPES
// =============================================================================

// Update is a snapshot of a reply while it streams. The last update of
// every request has Final set.
type Update struct {
	Text   string
	HTML   string
	Chunks int
	Final  bool
	Err    error
}

// Reply is the result of one request.
type Reply struct {
	Text         string
	HTML         string
	Cards        []markdown.ToolCard
	Chunks       int
	TTFT         time.Duration
	Duration     time.Duration
	FinishReason string
	Model        string
}

// Options configures a Session.
type Options struct {
	Model  string
	System string
	// Renderer defaults to a renderer without highlighting.
	Renderer *markdown.Renderer
	// RenderInterval throttles intermediate updates. Zero means
	// DefaultRenderInterval; a negative value renders every chunk.
	RenderInterval time.Duration
	Logger         *slog.Logger
}

// Session owns the text buffer and history of one conversation.
type Session struct {
	id       string
	streamer Streamer
	renderer *markdown.Renderer
	interval time.Duration
	log      *slog.Logger

	mu        sync.Mutex
	model     string
	system    string
	history   []client.Message
	last      *client.ChatRequest
	lastUser  *client.Message
	committed bool
}

// New creates a Session that streams through s.
func New(s Streamer, opts Options) *Session {
	if opts.Renderer == nil {
		opts.Renderer = markdown.New(markdown.Options{})
	}
	if opts.RenderInterval == 0 {
		opts.RenderInterval = DefaultRenderInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		id:       uuid.NewString(),
		streamer: s,
		renderer: opts.Renderer,
		interval: opts.RenderInterval,
		log:      opts.Logger,
		model:    opts.Model,
		system:   opts.System,
	}
}

// ID returns the conversation ID sent with every request.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// SetModel changes the model for subsequent requests.
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// Model returns the configured model.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// History returns a copy of the committed conversation.
func (s *Session) History() []client.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]client.Message(nil), s.history...)
}

// Reset clears the history and starts a new conversation ID.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.NewString()
	s.history = nil
	s.last = nil
	s.lastUser = nil
	s.committed = false
}

// =============================================================================
// REQUESTS
// =============================================================================

// Ask streams req and returns the finished reply. onUpdate, if set, is
// called on the calling goroutine with throttled snapshots of the reply and
// always once more with the final state.
//
// On error the returned Reply is still non-nil and holds the partial text.
func (s *Session) Ask(ctx context.Context, req client.ChatRequest, onUpdate func(Update)) (*Reply, error) {
	s.mu.Lock()
	s.last = &req
	s.lastUser = nil
	s.committed = false
	s.mu.Unlock()

	return s.stream(ctx, req, onUpdate)
}

// Say sends prompt as the next user turn of the conversation. The user
// message and the reply join the history only when the request succeeds.
func (s *Session) Say(ctx context.Context, prompt string, onUpdate func(Update)) (*Reply, error) {
	user := client.NewUserMessage(prompt)

	s.mu.Lock()
	req := s.buildRequestLocked(user)
	s.last = &req
	s.lastUser = &user
	s.committed = false
	s.mu.Unlock()

	reply, err := s.stream(ctx, req, onUpdate)
	if err == nil {
		s.commit(user, reply.Text)
	}
	return reply, err
}

// Retry sends the last request again as a new request. Nothing is resumed;
// the reply starts empty. Retrying a successful Say replaces its reply in
// the history.
func (s *Session) Retry(ctx context.Context, onUpdate func(Update)) (*Reply, error) {
	s.mu.Lock()
	if s.last == nil {
		s.mu.Unlock()
		return nil, ErrNothingToRetry
	}
	req := *s.last
	user := s.lastUser
	s.mu.Unlock()

	reply, err := s.stream(ctx, req, onUpdate)
	if err == nil && user != nil {
		s.commit(*user, reply.Text)
	}
	return reply, err
}

func (s *Session) buildRequestLocked(user client.Message) client.ChatRequest {
	msgs := make([]client.Message, 0, len(s.history)+2)
	if s.system != "" {
		msgs = append(msgs, client.NewSystemMessage(s.system))
	}
	msgs = append(msgs, s.history...)
	msgs = append(msgs, user)
	return client.ChatRequest{
		Model:          s.model,
		Messages:       msgs,
		ConversationID: s.id,
	}
}

func (s *Session) commit(user client.Message, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed && len(s.history) > 0 {
		s.history[len(s.history)-1] = client.NewAssistantMessage(text)
		return
	}
	s.history = append(s.history, user, client.NewAssistantMessage(text))
	s.committed = true
}

func (s *Session) newThrottle() *rate.Sometimes {
	if s.interval < 0 {
		return &rate.Sometimes{Every: 1}
	}
	return &rate.Sometimes{Interval: s.interval}
}

// stream runs one request. Stream callbacks run on this goroutine, so the
// buffer needs no locking.
func (s *Session) stream(ctx context.Context, req client.ChatRequest, onUpdate func(Update)) (*Reply, error) {
	var (
		buf      strings.Builder
		reply    = &Reply{}
		start    = time.Now()
		throttle = s.newThrottle()
	)

	h := client.StreamHandler{
		OnChunk: func(d client.Delta) {
			if reply.Chunks == 0 {
				reply.TTFT = time.Since(start)
			}
			reply.Chunks++
			if d.FinishReason != "" {
				reply.FinishReason = d.FinishReason
			}
			if d.Model != "" {
				reply.Model = d.Model
			}
			buf.WriteString(d.Text)
			if d.Text == "" || onUpdate == nil {
				return
			}
			throttle.Do(func() {
				text := buf.String()
				onUpdate(Update{Text: text, HTML: s.renderer.Render(text), Chunks: reply.Chunks})
			})
		},
	}

	err := s.streamer.ChatStream(ctx, req, h)

	reply.Text = buf.String()
	reply.HTML = s.renderer.Render(reply.Text)
	reply.Cards = markdown.ParseToolCards(reply.Text)
	reply.Duration = time.Since(start)

	if onUpdate != nil {
		onUpdate(Update{Text: reply.Text, HTML: reply.HTML, Chunks: reply.Chunks, Final: true, Err: err})
	}

	log := s.log.With("conversation_id", req.ConversationID)
	if err != nil {
		log.Warn("chat request failed", "error", err, "chunks", reply.Chunks,
			"duration", reply.Duration.Round(time.Millisecond))
		return reply, err
	}
	log.Debug("chat reply complete",
		"chunks", reply.Chunks,
		"cards", len(reply.Cards),
		"ttft", reply.TTFT.Round(time.Millisecond),
		"duration", reply.Duration.Round(time.Millisecond),
		"finish_reason", reply.FinishReason)
	return reply, nil
}
