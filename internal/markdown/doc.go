// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package markdown renders assistant Markdown to HTML.
//
// Render is built for streaming: it is called on the whole accumulated
// reply after every delta, accepts partial input (an unclosed code fence
// renders what has arrived), and returns identical output for identical
// input. Fenced code is extracted before anything else and escaped exactly
// once; all other text is escaped and then formatted by a fixed sequence
// of regex passes.
//
// ParseToolCards finds tool invocations (SUCCESS:, FAILED:, EXECUTING: and
// <tool_call> blocks) in the same text; RenderToolCard displays them.
package markdown
