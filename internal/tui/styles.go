// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/markdown"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/util"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	headerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

func cardLine(card markdown.ToolCard) string {
	icon := warningStyle.Render("⋯")
	switch card.Status {
	case markdown.StatusSuccess:
		icon = assistantStyle.Render("✓")
	case markdown.StatusFailed:
		icon = errorStyle.Render("✗")
	}
	line := icon + " " + userStyle.Render(markdown.ToolLabel(card.Name))
	if card.Details != "" {
		line += " " + noteStyle.Render(util.TruncateWidth(util.FirstLine(card.Details), 60))
	}
	return line
}
