// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat drives a conversation on top of the streaming client.
//
// A Session accumulates streamed deltas into the reply text, re-renders
// the whole text through the Markdown renderer on a throttle, and extracts
// tool cards when the reply is complete. Retry is always a new request
// that starts from an empty reply.
//
//	s := chat.New(c, chat.Options{Model: "sam"})
//	reply, err := s.Say(ctx, "hello", func(u chat.Update) {
//	    view.SetContent(u.HTML)
//	})
package chat
