// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// readBufferSize is the body read size; each read is one transport chunk
// from the decoder's point of view.
const readBufferSize = 32 * 1024

// =============================================================================
// STREAM HANDLER
// =============================================================================

// StreamHandler receives the callbacks of one streamed chat request.
// Any field may be nil.
//
// OnChunk fires once per decoded delta, in wire order. Exactly one of
// OnComplete or OnError fires afterwards, once, unless the stream is
// abandoned (context cancelled or Stream.Close), in which case neither does.
type StreamHandler struct {
	OnChunk    func(Delta)
	OnComplete func()
	OnError    func(error)
}

// streamState guards a handler against callbacks after the terminal one or
// after teardown.
type streamState struct {
	ctx    context.Context
	h      StreamHandler
	closed atomic.Bool
}

func (s *streamState) live() bool {
	return !s.closed.Load() && s.ctx.Err() == nil
}

func (s *streamState) chunk(d Delta) {
	if s.live() && s.h.OnChunk != nil {
		s.h.OnChunk(d)
	}
}

func (s *streamState) complete() {
	if s.ctx.Err() != nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.h.OnComplete != nil {
		s.h.OnComplete()
	}
}

func (s *streamState) fail(err error) {
	if s.ctx.Err() != nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.h.OnError != nil {
		s.h.OnError(err)
	}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream sends req to the chat completions endpoint with "stream" forced
// true and delivers the streamed deltas to h. It blocks until the stream
// ends; callbacks run on the calling goroutine.
//
// The returned error is the one passed to OnError, nil after OnComplete, or
// ctx.Err() when the caller cancelled. Nothing is retried.
func (c *Client) ChatStream(ctx context.Context, req any, h StreamHandler) error {
	s := &streamState{ctx: ctx, h: h}
	return c.runStream(ctx, req, s)
}

func (c *Client) runStream(ctx context.Context, req any, s *streamState) error {
	err := c.stream(ctx, req, s)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		s.fail(err)
		return err
	default:
		s.complete()
		return nil
	}
}

// stream performs the request and pumps the body through a Decoder. It
// returns nil on [DONE] or clean EOF.
func (c *Client) stream(ctx context.Context, req any, s *streamState) error {
	body, err := encodeChatRequest(req, true)
	if err != nil {
		return err
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, ChatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return classifyDoErr(ctx, "cannot connect to the server", err)
	}
	defer resp.Body.Close()
	c.logResponse(httpReq, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
	}

	dec := &Decoder{MaxLineSize: c.cfg.MaxLineSize}
	done := false
	emit := func(ev Event) bool {
		switch ev.Kind {
		case EventDone:
			done = true
			return false
		case EventError:
			c.log.Warn("skipping undecodable stream line",
				"request_id", httpReq.Header.Get("X-Request-ID"),
				"error", ev.Err,
				"line", ev.Line)
			return true
		default:
			s.chunk(ev.Delta)
			return s.live()
		}
	}

	buf := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if !dec.Feed(buf[:n], emit) {
				if done {
					c.log.Debug("stream done", "request_id", httpReq.Header.Get("X-Request-ID"),
						"duration", time.Since(start).Round(time.Millisecond))
				}
				return nil
			}
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			dec.Flush(emit)
			return nil
		}
		return classifyDoErr(ctx, "connection to the server was lost", readErr)
	}
}

// =============================================================================
// ASYNC STREAM
// =============================================================================

// Stream is a streaming request running in its own goroutine.
type Stream struct {
	cancel context.CancelFunc
	state  *streamState
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Send starts ChatStream in a new goroutine and returns immediately.
// Callbacks run on that goroutine.
func (c *Client) Send(ctx context.Context, req any, h StreamHandler) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	st := &Stream{
		cancel: cancel,
		state:  &streamState{ctx: ctx, h: h},
		done:   make(chan struct{}),
	}

	go func() {
		defer close(st.done)
		defer cancel()
		err := c.runStream(ctx, req, st.state)
		st.mu.Lock()
		st.err = err
		st.mu.Unlock()
	}()
	return st
}

// Close abandons the stream and tears down the connection. No new callback
// starts once Close has been called; one already running may finish.
// Close is idempotent.
func (s *Stream) Close() {
	s.state.closed.Store(true)
	s.cancel()
}

// Done is closed when the stream goroutine has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the stream ends and returns its terminal error.
func (s *Stream) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
