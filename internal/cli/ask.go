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
	"strings"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/client"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/markdown"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/tui"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/util"
)

// askCmd sends one prompt and streams the reply.
//
//	samchat ask "What is the capital of France?"
//	echo "Summarize this" | samchat ask -
//	samchat ask --html reply.html "Draw a table of planets"
type askCmd struct {
	app *App

	System string `short:"s" long:"system" value-name:"TEXT" description:"system prompt"`
	HTML   string `long:"html" value-name:"FILE" description:"also write the rendered reply as an HTML document"`
	Render string `long:"render" choice:"raw" choice:"terminal" default:"raw" description:"raw prints deltas as they arrive; terminal pretty-prints the finished reply"`
	Quiet  bool   `short:"q" long:"quiet" description:"print the reply only when it is complete"`

	Args struct {
		Prompt []string `positional-arg-name:"prompt" description:"the question, or - to read stdin"`
	} `positional-args:"yes"`
}

func (c *askCmd) prompt() (string, error) {
	p := strings.TrimSpace(strings.Join(c.Args.Prompt, " "))
	if p == "" || p == "-" {
		data, err := io.ReadAll(io.LimitReader(c.app.Stdin, 1<<20))
		if err != nil {
			return "", fmt.Errorf("reading prompt from stdin: %w", err)
		}
		p = strings.TrimSpace(string(data))
	}
	if p == "" {
		return "", &CommandError{Command: "ask", Action: "read prompt", Reason: "no prompt given", exit: ExitUsageError}
	}
	return p, nil
}

func (c *askCmd) Execute([]string) error {
	a := c.app

	prompt, err := c.prompt()
	if err != nil {
		return err
	}
	cl, err := a.newClient()
	if err != nil {
		return err
	}

	req := client.ChatRequest{Model: a.cfg.Server.Model}
	if c.System != "" {
		req.Messages = append(req.Messages, client.NewSystemMessage(c.System))
	}
	req.Messages = append(req.Messages, client.NewUserMessage(prompt))

	live := c.Render == "raw" && !c.Quiet
	var buf strings.Builder

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := cl.Send(ctx, req, client.StreamHandler{
		OnChunk: func(d client.Delta) {
			buf.WriteString(d.Text)
			if live && d.Text != "" {
				fmt.Fprint(a.Stdout, d.Text)
			}
		},
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)

	cancelled := false
	select {
	case <-sigChan:
		stream.Close()
		cancelled = true
	case <-stream.Done():
	}
	err = stream.Wait()

	text := buf.String()
	if live && text != "" && !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(a.Stdout)
	}

	if cancelled || errors.Is(err, context.Canceled) {
		fmt.Fprintln(a.Stderr, WarningStyle.Render("[Cancelled]"))
		return errCancelled
	}
	if err != nil {
		return err
	}

	switch {
	case c.Render == "terminal":
		fmt.Fprint(a.Stdout, c.renderTerminal(text))
	case c.Quiet:
		fmt.Fprintln(a.Stdout, text)
	}

	if cards := markdown.ParseToolCards(text); len(cards) > 0 && !c.Quiet {
		for _, card := range cards {
			fmt.Fprintln(a.Stderr, renderCardLine(card))
		}
	}

	if c.HTML != "" {
		if err := c.writeHTML(prompt, text); err != nil {
			return err
		}
		fmt.Fprintln(a.Stderr, DimStyle.Render("Wrote "+c.HTML))
	}
	return nil
}

func (c *askCmd) renderTerminal(text string) string {
	a := c.app
	r, err := tui.NewTermRenderer(a.cfg.UI.Theme, terminalWidth(a.Stdout, a.cfg.UI.WordWrap), GetColorProfile())
	if err != nil {
		a.log.Debug("terminal renderer unavailable", "error", err)
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func (c *askCmd) writeHTML(title, text string) error {
	a := c.app
	r := a.newRenderer()

	body := r.Render(text)
	if cards := markdown.ParseToolCards(text); len(cards) > 0 {
		body += "\n" + markdown.RenderToolCards(cards)
	}

	var css bytes.Buffer
	if h := a.newHighlighter(); h != nil {
		if err := h.WriteCSS(&css); err != nil {
			return err
		}
	}

	doc := markdown.Document(util.TruncateRunes(title, 60), body, css.String())
	if err := util.AtomicWriteFile(c.HTML, []byte(doc), 0644); err != nil {
		return &CommandError{Command: "ask", Action: "write html", Reason: c.HTML, Err: err}
	}
	return nil
}
