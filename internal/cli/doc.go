// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the samchat command line.
//
// Commands are registered on a go-flags parser; every command receives the
// shared App, which loads configuration, builds the slog logger and opens
// the local credential store on first use.
//
//	samchat ask "question"        one-shot streamed answer
//	samchat chat                  line-oriented REPL
//	samchat tui                   full-screen chat
//	samchat render FILE           Markdown to HTML
//	samchat conversations         list stored conversations
//	samchat auth login|logout|status
//	samchat config show|path|init
package cli
