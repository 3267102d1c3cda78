// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// minWrap is the narrowest word wrap handed to glamour.
const minWrap = 20

// NewTermRenderer returns a glamour renderer for theme ("dark", "light" or
// "auto") wrapping at width. The Ascii profile gets the plain notty style.
func NewTermRenderer(theme string, width int, profile termenv.Profile) (*glamour.TermRenderer, error) {
	if width < minWrap {
		width = minWrap
	}
	opts := []glamour.TermRendererOption{
		glamour.WithWordWrap(width),
		glamour.WithColorProfile(profile),
	}

	switch {
	case profile == termenv.Ascii:
		opts = append(opts, glamour.WithStandardStyle("notty"))
	case theme == "dark" || theme == "light":
		opts = append(opts, glamour.WithStandardStyle(theme))
	default:
		opts = append(opts, glamour.WithAutoStyle())
	}
	return glamour.NewTermRenderer(opts...)
}

// renderMarkdown renders text with r, falling back to the raw text.
func renderMarkdown(r *glamour.TermRenderer, text string) string {
	if r == nil || strings.TrimSpace(text) == "" {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}
