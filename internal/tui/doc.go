// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui is the full-screen chat view.
//
// The view drives a chat.Session: a request runs in a tea.Cmd, its
// throttled updates are posted back to the program with Send, and the
// finished reply arrives as a single message. Replies are pretty-printed
// with glamour.
//
// Keys:
//
//	enter    send the prompt, or run a /command
//	ctrl+c   cancel the reply in flight, or quit when idle
//	esc      same as ctrl+c
//	ctrl+r   send the last request again
//	pgup     scroll back
//	pgdown   scroll forward
package tui
