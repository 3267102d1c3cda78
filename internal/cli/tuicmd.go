// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/chat"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/config"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/tui"
)

// tuiCmd opens the full-screen chat view.
type tuiCmd struct {
	app *App

	System string `short:"s" long:"system" value-name:"TEXT" description:"system prompt"`
}

func (c *tuiCmd) Execute([]string) error {
	a := c.app
	if !isTerminal(a.Stdin) || !IsStdoutTTY() {
		return &CommandError{Command: "tui", Action: "start", Reason: "needs an interactive terminal (use `samchat chat` instead)", exit: ExitUsageError}
	}

	// The screen belongs to the view, so logs go to a file.
	log, closeLog := c.logger()
	defer closeLog()
	a.log = log

	cl, err := a.newClient()
	if err != nil {
		return err
	}
	session := chat.New(cl, chat.Options{
		Model:          a.cfg.Server.Model,
		System:         c.System,
		Renderer:       a.newRenderer(),
		RenderInterval: a.renderInterval(),
		Logger:         log,
	})

	return tui.Run(session, tui.Options{
		Server:     cl.BaseURL(),
		Theme:      a.cfg.UI.Theme,
		WordWrap:   a.cfg.UI.WordWrap,
		Profile:    GetColorProfile(),
		ConfigPath: a.cfgPath,
		Logger:     log,
	})
}

// logger opens <config dir>/tui.log, or discards logs when it cannot.
func (c *tuiCmd) logger() (*slog.Logger, func()) {
	a := c.app
	discard := func() {}

	dir, err := config.ConfigDir()
	if err != nil || config.EnsureConfigDir() != nil {
		return slog.New(slog.DiscardHandler), discard
	}
	f, err := os.OpenFile(filepath.Join(dir, "tui.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return slog.New(slog.DiscardHandler), discard
	}
	return NewLogger(f, a.cfg.Log.Level, a.cfg.Log.Format), func() { f.Close() }
}
