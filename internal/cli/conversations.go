// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/util"
)

// conversationsCmd lists the conversations stored on the backend.
type conversationsCmd struct {
	app *App

	JSON  bool `long:"json" description:"print the raw list as JSON"`
	Limit int  `short:"n" long:"limit" default:"0" description:"show at most N conversations (0 for all)"`
}

func (c *conversationsCmd) Execute([]string) error {
	a := c.app
	cl, err := a.newClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.Client.TimeoutSecs)*time.Second)
	defer cancel()

	list, err := cl.Conversations().List(ctx)
	if err != nil {
		return err
	}
	if c.Limit > 0 && len(list) > c.Limit {
		list = list[:c.Limit]
	}

	if c.JSON {
		out, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(a.Stdout, string(out))
		return nil
	}

	if len(list) == 0 {
		fmt.Fprintln(a.Stdout, DimStyle.Render("No conversations."))
		return nil
	}
	for _, conv := range list {
		title := conv.Title
		if title == "" {
			title = "(untitled)"
		}
		line := fmt.Sprintf("%-36s  %s", conv.ID, util.TruncateWidth(title, 50))
		if conv.UpdatedAt != "" {
			line += "  " + DimStyle.Render(conv.UpdatedAt)
		}
		fmt.Fprintln(a.Stdout, line)
	}
	return nil
}
