// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/markdown"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/util"
)

func init() {
	applyColorProfile()
}

func applyColorProfile() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(14)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// renderField renders a "label value" line.
func renderField(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value)
}

// renderSeparator renders a horizontal rule of width w.
func renderSeparator(w int) string {
	return DimStyle.Render(strings.Repeat("─", w))
}

// renderCardLine renders a tool card as one terminal line.
func renderCardLine(card markdown.ToolCard) string {
	var icon string
	switch card.Status {
	case markdown.StatusSuccess:
		icon = SuccessStyle.Render("✓")
	case markdown.StatusFailed:
		icon = ErrorStyle.Render("✗")
	default:
		icon = WarningStyle.Render("⋯")
	}
	line := icon + " " + TitleStyle.Render(markdown.ToolLabel(card.Name))
	if card.Details != "" {
		line += " " + DimStyle.Render(util.TruncateWidth(util.FirstLine(card.Details), 60))
	}
	return line
}
