// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/config"
)

// Run opens the chat view over conv and blocks until the user quits. A
// reply still streaming at exit is cancelled.
func Run(conv Conversation, opts Options) error {
	var p *tea.Program
	m := New(conv, func(msg tea.Msg) { p.Send(msg) }, opts)
	p = tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.ConfigPath != "" {
		go func() {
			err := config.Watch(ctx, opts.ConfigPath, func(cfg *config.Config, err error) {
				p.Send(configMsg{cfg: cfg, err: err})
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				m.log.Warn("config watch stopped", "path", opts.ConfigPath, "error", err)
			}
		}()
	}

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	if fm, ok := final.(Model); ok && fm.cancel != nil {
		fm.cancel()
	}
	return nil
}
