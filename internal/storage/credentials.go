// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"strings"
	"sync"
)

// Credentials reads the backend base URL and bearer token from a Store.
// A token passed at construction (config file or SAMWEB_TOKEN) is used when
// the store holds none, until Invalidate is called.
type Credentials struct {
	store Store

	mu            sync.Mutex
	fallbackToken string
}

// NewCredentials returns a Credentials over store.
func NewCredentials(store Store, fallbackToken string) *Credentials {
	return &Credentials{store: store, fallbackToken: fallbackToken}
}

// BaseURL returns the stored base URL override, or fallback when none is
// stored. Trailing slashes are trimmed.
func (c *Credentials) BaseURL(fallback string) string {
	v, err := c.store.Get(KeyBaseURL)
	if err != nil || strings.TrimSpace(v) == "" {
		v = fallback
	}
	return strings.TrimRight(strings.TrimSpace(v), "/")
}

// SetBaseURL stores a base URL override. An empty url removes it.
func (c *Credentials) SetBaseURL(url string) error {
	if url == "" {
		return c.store.Delete(KeyBaseURL)
	}
	return c.store.Set(KeyBaseURL, url)
}

// Token returns the bearer token, or "" when none is configured.
func (c *Credentials) Token() string {
	v, err := c.store.Get(KeyToken)
	if err == nil && v != "" {
		return v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fallbackToken
}

// SetToken stores token.
func (c *Credentials) SetToken(token string) error {
	if token == "" {
		return errors.New("storage: empty token")
	}
	return c.store.Set(KeyToken, token)
}

// Invalidate forgets the token, both stored and fallback. Called when the
// backend answers 401.
func (c *Credentials) Invalidate() error {
	c.mu.Lock()
	c.fallbackToken = ""
	c.mu.Unlock()
	return c.store.Delete(KeyToken)
}
