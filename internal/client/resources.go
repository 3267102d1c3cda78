// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// =============================================================================
// RESOURCE TYPES
// =============================================================================

// Conversation is a stored conversation's metadata.
type Conversation struct {
	ID            string  `json:"id,omitempty"`
	Title         string  `json:"title,omitempty"`
	FolderID      string  `json:"folder_id,omitempty"`
	Model         string  `json:"model,omitempty"`
	PromptID      string  `json:"prompt_id,omitempty"`
	PersonalityID string  `json:"personality_id,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	SharedTopicID string  `json:"shared_topic_id,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

// Folder groups conversations.
type Folder struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

// Prompt is a reusable system prompt.
type Prompt struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content,omitempty"`
}

// Personality is a named assistant persona.
type Personality struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// SharedTopic is a context shared between conversations.
type SharedTopic struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// =============================================================================
// COLLECTION
// =============================================================================

// Collection is a CRUD endpoint such as /v1/folders. All calls go through
// RequestOnce, so List and Get are retried on transport failures and writes
// are not.
type Collection[T any] struct {
	c    *Client
	path string
	// key is the envelope field a list response may wrap items in.
	key string
}

// Conversations returns the /v1/conversations collection.
func (c *Client) Conversations() Collection[Conversation] {
	return Collection[Conversation]{c: c, path: "/v1/conversations", key: "conversations"}
}

// Folders returns the /v1/folders collection.
func (c *Client) Folders() Collection[Folder] {
	return Collection[Folder]{c: c, path: "/v1/folders", key: "folders"}
}

// Prompts returns the /v1/prompts collection.
func (c *Client) Prompts() Collection[Prompt] {
	return Collection[Prompt]{c: c, path: "/v1/prompts", key: "prompts"}
}

// Personalities returns the /v1/personalities collection.
func (c *Client) Personalities() Collection[Personality] {
	return Collection[Personality]{c: c, path: "/v1/personalities", key: "personalities"}
}

// SharedTopics returns the /v1/shared-topics collection.
func (c *Client) SharedTopics() Collection[SharedTopic] {
	return Collection[SharedTopic]{c: c, path: "/v1/shared-topics", key: "shared_topics"}
}

// Path returns the collection's URL path.
func (col Collection[T]) Path() string { return col.path }

func (col Collection[T]) itemPath(id string) string {
	return col.path + "/" + url.PathEscape(id)
}

// List returns every item. The response may be a bare JSON array or an
// object wrapping it under "data", "items" or the collection name.
func (col Collection[T]) List(ctx context.Context) ([]T, error) {
	var raw json.RawMessage
	if err := col.c.RequestOnce(ctx, http.MethodGet, col.path, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[T](raw, col.key)
}

// Get returns one item.
func (col Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	var item T
	if err := col.c.RequestOnce(ctx, http.MethodGet, col.itemPath(id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create posts v and returns the created item.
func (col Collection[T]) Create(ctx context.Context, v any) (*T, error) {
	var item T
	if err := col.c.RequestOnce(ctx, http.MethodPost, col.path, v, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Update sends patch as a PATCH and returns the updated item.
func (col Collection[T]) Update(ctx context.Context, id string, patch any) (*T, error) {
	var item T
	if err := col.c.RequestOnce(ctx, http.MethodPatch, col.itemPath(id), patch, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete removes one item.
func (col Collection[T]) Delete(ctx context.Context, id string) error {
	return col.c.RequestOnce(ctx, http.MethodDelete, col.itemPath(id), nil, nil)
}

func decodeList[T any](raw json.RawMessage, key string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}

	if raw[0] != '[' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, decodeError("failed to decode list response", err)
		}
		var found bool
		for _, k := range []string{"data", "items", key} {
			if v, ok := envelope[k]; ok {
				raw, found = v, true
				break
			}
		}
		if !found {
			return []T{}, nil
		}
	}

	items := []T{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, decodeError("failed to decode list response", err)
	}
	return items, nil
}
