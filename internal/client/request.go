// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"encoding/json"
	"errors"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// ChatRequest is a convenience request body. Any value that encodes to a
// JSON object may be sent instead; the client only sets its "stream" field.
type ChatRequest struct {
	Model          string    `json:"model,omitempty"`
	Messages       []Message `json:"messages"`
	Temperature    *float64  `json:"temperature,omitempty"`
	TopP           *float64  `json:"top_p,omitempty"`
	MaxTokens      int       `json:"max_tokens,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Stream         bool      `json:"stream"`
}

// ChatResponse is the non-streaming chat completion result.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

// Usage reports token accounting when the backend provides it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Content returns the first choice's message content.
func (r *ChatResponse) Content() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

// =============================================================================
// REQUEST ENCODING
// =============================================================================

var errNotObject = errors.New("request must encode to a JSON object")

// encodeChatRequest marshals req and sets its top-level "stream" field. Key
// order of the caller's payload is not preserved.
func encodeChatRequest(req any, stream bool) ([]byte, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, requestError("failed to marshal request", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return nil, requestError("invalid chat request", errNotObject)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, requestError("invalid chat request", err)
	}
	if stream {
		fields["stream"] = json.RawMessage("true")
	} else {
		fields["stream"] = json.RawMessage("false")
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, requestError("failed to marshal request", err)
	}
	return out, nil
}
