// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"bytes"
	"encoding/json"
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// TOOL CARDS
// =============================================================================

// ToolStatus is the state of a tool invocation.
type ToolStatus string

const (
	StatusRunning ToolStatus = "running"
	StatusSuccess ToolStatus = "success"
	StatusFailed  ToolStatus = "failed"
)

// ToolCard is a tool invocation found in assistant text.
type ToolCard struct {
	Name    string
	Status  ToolStatus
	Details string
}

const (
	toolCallOpen  = "<tool_call>"
	toolCallClose = "</tool_call>"
)

var (
	successRe   = regexp.MustCompile(`^SUCCESS:\s*([^:]+?)\s*(?::\s*(.*?))?\s*$`)
	failedRe    = regexp.MustCompile(`^FAILED:\s*([^:]+?)\s*(?::\s*(.*?))?\s*$`)
	executingRe = regexp.MustCompile(`^EXECUTING:\s*(.+?)\s*$`)
)

// ParseToolCards scans text line by line and returns the tool cards in the
// order they appear. Recognized forms:
//
//	SUCCESS: <name>: <details>
//	FAILED: <name>: <details>
//	EXECUTING: <name>
//	<tool_call>{"name": ..., "arguments": ...}</tool_call>
//
// A tool_call block may span lines. Blocks that are unterminated or do not
// hold a JSON object with a name are skipped.
func ParseToolCards(text string) []ToolCard {
	var (
		cards  []ToolCard
		inCall bool
		call   strings.Builder
	)

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if inCall {
			if end := strings.Index(line, toolCallClose); end >= 0 {
				call.WriteString(line[:end])
				if card, ok := parseToolCall(call.String()); ok {
					cards = append(cards, card)
				}
				inCall = false
				call.Reset()
				continue
			}
			call.WriteString(line)
			call.WriteByte('\n')
			continue
		}

		if start := strings.Index(line, toolCallOpen); start >= 0 {
			rest := line[start+len(toolCallOpen):]
			if end := strings.Index(rest, toolCallClose); end >= 0 {
				if card, ok := parseToolCall(rest[:end]); ok {
					cards = append(cards, card)
				}
				continue
			}
			inCall = true
			call.WriteString(rest)
			call.WriteByte('\n')
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "SUCCESS:"):
			if m := successRe.FindStringSubmatch(trimmed); m != nil {
				cards = append(cards, ToolCard{Name: m[1], Status: StatusSuccess, Details: m[2]})
			}
		case strings.HasPrefix(trimmed, "FAILED:"):
			if m := failedRe.FindStringSubmatch(trimmed); m != nil {
				cards = append(cards, ToolCard{Name: m[1], Status: StatusFailed, Details: m[2]})
			}
		case strings.HasPrefix(trimmed, "EXECUTING:"):
			if m := executingRe.FindStringSubmatch(trimmed); m != nil {
				cards = append(cards, ToolCard{Name: m[1], Status: StatusRunning})
			}
		}
	}
	return cards
}

func parseToolCall(body string) (ToolCard, bool) {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &call); err != nil {
		return ToolCard{}, false
	}
	name := strings.TrimSpace(call.Name)
	if name == "" {
		return ToolCard{}, false
	}
	return ToolCard{Name: name, Status: StatusRunning, Details: argumentDetails(call.Arguments)}, true
}

// argumentDetails uses a JSON string argument verbatim and compacts
// anything else.
func argumentDetails(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// ToolLabel turns a tool name into a display label: "search_web" becomes
// "Search Web".
func ToolLabel(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	if len(words) == 0 {
		return name
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}

func statusIcon(s ToolStatus) string {
	switch s {
	case StatusSuccess:
		return "✓"
	case StatusFailed:
		return "✗"
	default:
		return "⋯"
	}
}

// RenderToolCard renders a card as an escaped HTML fragment.
func RenderToolCard(card ToolCard) string {
	status := card.Status
	if status == "" {
		status = StatusRunning
	}

	var sb strings.Builder
	sb.WriteString(`<div class="tool-card tool-card--` + html.EscapeString(string(status)) + `">`)
	sb.WriteString(`<div class="tool-card__header">`)
	sb.WriteString(`<span class="tool-card__icon">` + statusIcon(status) + `</span>`)
	sb.WriteString(`<span class="tool-card__name">` + html.EscapeString(ToolLabel(card.Name)) + `</span>`)
	sb.WriteString(`<span class="tool-card__status">` + html.EscapeString(string(status)) + `</span>`)
	sb.WriteString(`</div>`)
	if card.Details != "" {
		sb.WriteString(`<div class="tool-card__details">` + html.EscapeString(card.Details) + `</div>`)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

// RenderToolCards renders cards one per line.
func RenderToolCards(cards []ToolCard) string {
	parts := make([]string, 0, len(cards))
	for _, c := range cards {
		parts = append(parts, RenderToolCard(c))
	}
	return strings.Join(parts, "\n")
}
