// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local key-value store samchat keeps its
// connection settings in.
//
// # Key Types
//
//   - Store: Get/Set/Delete over string keys
//   - SQLiteStore: file-backed store (modernc.org/sqlite, no cgo)
//   - MemoryStore: process-local store for tests and --ephemeral runs
//   - Credentials: base URL and bearer token accessor handed to the HTTP client
//
// # Documented Keys
//
//   - sam.api.base_url          backend base URL override
//   - sam.api.token             bearer token
//   - sam.ui.render.highlight   reserved for the renderer preference
//
// # Usage
//
//	store, err := storage.Open("sqlite", path)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	creds := storage.NewCredentials(store, cfg.Server.Token)
package storage
