// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/config"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/markdown"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/util"
)

// renderCmd renders a Markdown file to HTML.
//
//	samchat render notes.md > notes.html
//	samchat render --css -o notes.html --watch notes.md
type renderCmd struct {
	app *App

	Out      string `short:"o" long:"out" value-name:"FILE" description:"write to FILE instead of stdout"`
	Document bool   `short:"d" long:"document" description:"wrap the fragment in a standalone HTML page"`
	CSS      bool   `long:"css" description:"include the syntax highlighting stylesheet (implies --document)"`
	Cards    bool   `long:"cards" description:"append the tool cards found in the text"`
	Watch    bool   `short:"w" long:"watch" description:"render again whenever the file changes"`

	Args struct {
		File string `positional-arg-name:"file" description:"Markdown file, or - for stdin"`
	} `positional-args:"yes" required:"yes"`
}

func (c *renderCmd) Execute([]string) error {
	a := c.app
	if c.Watch && (c.Args.File == "-" || c.Args.File == "") {
		return &CommandError{Command: "render", Action: "watch", Reason: "--watch needs a file", exit: ExitUsageError}
	}

	r := a.newRenderer()
	if err := c.renderOnce(r); err != nil {
		return err
	}
	if !c.Watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintln(a.Stderr, DimStyle.Render("Watching "+c.Args.File+" (Ctrl+C to stop)"))
	err := config.WatchFile(ctx, c.Args.File, config.DefaultDebounce, func() {
		start := time.Now()
		if err := c.renderOnce(r); err != nil {
			a.displayError(err)
			return
		}
		a.log.Info("rendered", "file", c.Args.File, "duration", time.Since(start).Round(time.Millisecond))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *renderCmd) read() ([]byte, error) {
	if c.Args.File == "-" || c.Args.File == "" {
		return io.ReadAll(c.app.Stdin)
	}
	return os.ReadFile(c.Args.File)
}

func (c *renderCmd) renderOnce(r *markdown.Renderer) error {
	a := c.app

	src, err := c.read()
	if err != nil {
		return &CommandError{Command: "render", Action: "read", Reason: c.Args.File, Err: err}
	}
	text := string(src)

	out := r.Render(text)
	if c.Cards {
		if cards := markdown.ParseToolCards(text); len(cards) > 0 {
			out += "\n" + markdown.RenderToolCards(cards)
		}
	}

	if c.Document || c.CSS {
		var css bytes.Buffer
		if c.CSS {
			if h := a.newHighlighter(); h != nil {
				if err := h.WriteCSS(&css); err != nil {
					return err
				}
			}
		}
		out = markdown.Document(c.title(text), out, css.String())
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}

	if c.Out == "" {
		_, err := io.WriteString(a.Stdout, out)
		return err
	}
	if err := util.AtomicWriteFile(c.Out, []byte(out), 0644); err != nil {
		return &CommandError{Command: "render", Action: "write", Reason: c.Out, Err: err}
	}
	return nil
}

// title is the first heading of text, or the file name.
func (c *renderCmd) title(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	if c.Args.File == "-" || c.Args.File == "" {
		return "samchat"
	}
	return filepath.Base(c.Args.File)
}
