// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client is the HTTP client for the SAM chat backend.
//
// ChatStream and Send consume the chat completion event stream: "data:"
// lines carrying JSON deltas, terminated by "data: [DONE]". Malformed lines
// are logged and skipped; only transport failures and non-2xx statuses end
// a stream with an error. Streams are never retried; a retry is a new
// request.
//
// RequestOnce covers the plain JSON endpoints. It retries GET and HEAD on
// transport failures with capped exponential backoff and treats HTTP 401 by
// invalidating the injected CredentialStore.
//
// # Errors
//
// Every failure is a *ClientError whose Type is one of ErrTypeTransport,
// ErrTypeHTTPStatus, ErrTypeAuth, ErrTypeDecode or ErrTypeRequest. Use
// IsTransport, IsAuth, IsHTTPStatus and StatusCode to branch, and
// UserMessage for display.
//
// # Usage
//
//	c := client.New(client.Config{BaseURL: url, Credentials: creds})
//	err := c.ChatStream(ctx, req, client.StreamHandler{
//	    OnChunk:    func(d client.Delta) { buf.WriteString(d.Text) },
//	    OnComplete: func() { ... },
//	    OnError:    func(err error) { fmt.Println(client.UserMessage(err)) },
//	})
package client
