// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseToolCards(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []ToolCard
	}{
		{
			name:  "executing then success",
			input: "EXECUTING: search_web\nSUCCESS: search_web: 3 results",
			want: []ToolCard{
				{Name: "search_web", Status: StatusRunning},
				{Name: "search_web", Status: StatusSuccess, Details: "3 results"},
			},
		},
		{
			name:  "failed",
			input: "FAILED: read_file: permission denied",
			want:  []ToolCard{{Name: "read_file", Status: StatusFailed, Details: "permission denied"}},
		},
		{
			name:  "success without details",
			input: "  SUCCESS: ping  ",
			want:  []ToolCard{{Name: "ping", Status: StatusSuccess}},
		},
		{
			name:  "single line tool call",
			input: `text <tool_call>{"name": "run", "arguments": "ls -la"}</tool_call> more`,
			want:  []ToolCard{{Name: "run", Status: StatusRunning, Details: "ls -la"}},
		},
		{
			name:  "multi line tool call",
			input: "<tool_call>\n{\"name\": \"read_file\",\n  \"arguments\": {\"path\": \"a.go\", \"lines\": [1, 2]}}\n</tool_call>",
			want:  []ToolCard{{Name: "read_file", Status: StatusRunning, Details: `{"path":"a.go","lines":[1,2]}`}},
		},
		{
			name:  "tool call without arguments",
			input: `<tool_call>{"name": "now"}</tool_call>`,
			want:  []ToolCard{{Name: "now", Status: StatusRunning}},
		},
		{
			name:  "unparseable tool call skipped",
			input: "<tool_call>{not json}</tool_call>\nSUCCESS: a: b",
			want:  []ToolCard{{Name: "a", Status: StatusSuccess, Details: "b"}},
		},
		{
			name:  "tool call without name skipped",
			input: `<tool_call>{"arguments": {}}</tool_call>`,
			want:  nil,
		},
		{
			name:  "unterminated tool call skipped",
			input: "EXECUTING: x\n<tool_call>\n{\"name\": \"y\"",
			want:  []ToolCard{{Name: "x", Status: StatusRunning}},
		},
		{
			name:  "markers inside a tool call are not cards",
			input: "<tool_call>\n{\"name\": \"z\", \"arguments\": \"SUCCESS: q: r\"}\n</tool_call>",
			want:  []ToolCard{{Name: "z", Status: StatusRunning, Details: "SUCCESS: q: r"}},
		},
		{
			name:  "crlf",
			input: "EXECUTING: a\r\nSUCCESS: a: done\r\n",
			want: []ToolCard{
				{Name: "a", Status: StatusRunning},
				{Name: "a", Status: StatusSuccess, Details: "done"},
			},
		},
		{
			name:  "no cards",
			input: "just some text\nmentioning SUCCESS: mid-line",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseToolCards(tt.input))
		})
	}
}

func TestToolLabel(t *testing.T) {
	tests := map[string]string{
		"search_web":  "Search Web",
		"read-file":   "Read File",
		"fs.list_dir": "Fs List Dir",
		"run":         "Run",
		"":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ToolLabel(in), in)
	}
}

func TestRenderToolCard(t *testing.T) {
	out := RenderToolCard(ToolCard{Name: "search_web", Status: StatusSuccess, Details: "3 <results>"})
	assert.Contains(t, out, `class="tool-card tool-card--success"`)
	assert.Contains(t, out, `<span class="tool-card__name">Search Web</span>`)
	assert.Contains(t, out, `<div class="tool-card__details">3 &lt;results&gt;</div>`)
	assert.Contains(t, out, "✓")

	out = RenderToolCard(ToolCard{Name: "<x>"})
	assert.Contains(t, out, "tool-card--running")
	assert.Contains(t, out, "&lt;")
	assert.NotContains(t, out, "<x>")
	assert.NotContains(t, out, "tool-card__details")

	both := RenderToolCards([]ToolCard{{Name: "a"}, {Name: "b", Status: StatusFailed}})
	assert.Contains(t, both, "tool-card--running")
	assert.Contains(t, both, "tool-card--failed")
	assert.Empty(t, RenderToolCards(nil))
}
