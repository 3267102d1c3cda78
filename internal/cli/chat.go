// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/chat"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/config"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads one line of input.
type lineReader interface {
	ReadInput(prompt string) (string, error)
	Close()
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads the saved history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with history navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes the history file with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// plainReader reads lines from a non-terminal stdin.
type plainReader struct {
	r *bufio.Reader
}

func (p *plainReader) ReadInput(string) (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *plainReader) Close() {}

// =============================================================================
// CHAT COMMAND
// =============================================================================

// chatCmd is the line-oriented REPL.
type chatCmd struct {
	app *App

	System string `short:"s" long:"system" value-name:"TEXT" description:"system prompt"`

	session *chat.Session
	mu      sync.Mutex
	cancel  context.CancelFunc
}

func (c *chatCmd) Execute([]string) error {
	a := c.app

	cl, err := a.newClient()
	if err != nil {
		return err
	}
	c.session = chat.New(cl, chat.Options{
		Model:          a.cfg.Server.Model,
		System:         c.System,
		Renderer:       a.newRenderer(),
		RenderInterval: a.renderInterval(),
		Logger:         a.log,
	})

	var input lineReader
	if isTerminal(a.Stdin) {
		input = NewChatCLI()
	} else {
		input = &plainReader{r: bufio.NewReader(a.Stdin)}
	}
	defer input.Close()

	// First Ctrl+C cancels the request in flight; at the prompt liner
	// handles it.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			c.mu.Lock()
			if c.cancel != nil {
				c.cancel()
				c.cancel = nil
			}
			c.mu.Unlock()
		}
	}()

	c.printWelcome(cl.BaseURL())

	for {
		line, err := input.ReadInput(PromptStyle.Render("sam> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or end of piped input.
			fmt.Fprintln(a.Stdout)
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}

		if strings.HasPrefix(line, "/") {
			cont, err := c.handleSlashCommand(line)
			if err != nil {
				a.displayError(err)
			}
			if !cont {
				return nil
			}
			continue
		}

		if err := c.send(func(ctx context.Context, onUpdate func(chat.Update)) (*chat.Reply, error) {
			return c.session.Say(ctx, line, onUpdate)
		}); err != nil {
			a.displayError(err)
		}
	}
}

// send runs one request, echoing the reply as it grows.
func (c *chatCmd) send(do func(context.Context, func(chat.Update)) (*chat.Reply, error)) error {
	a := c.app

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	printed := 0
	reply, err := do(ctx, func(u chat.Update) {
		if len(u.Text) > printed {
			fmt.Fprint(a.Stdout, u.Text[printed:])
			printed = len(u.Text)
		}
	})
	if printed > 0 {
		fmt.Fprintln(a.Stdout)
	}

	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(a.Stderr, WarningStyle.Render("[Cancelled]"))
		return nil
	}
	if err != nil {
		return err
	}

	for _, card := range reply.Cards {
		fmt.Fprintln(a.Stdout, renderCardLine(card))
	}
	fmt.Fprintln(a.Stdout, DimStyle.Render(fmt.Sprintf("%d chunks, first token %s, total %s",
		reply.Chunks, formatDuration(reply.TTFT), formatDuration(reply.Duration))))
	return nil
}

func (c *chatCmd) handleSlashCommand(line string) (bool, error) {
	a := c.app
	fields := strings.Fields(line)

	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		return false, nil
	case "/help", "/?":
		c.printHelp()
	case "/retry", "/r":
		return true, c.send(c.session.Retry)
	case "/reset", "/new":
		c.session.Reset()
		fmt.Fprintln(a.Stdout, DimStyle.Render("Started a new conversation."))
	case "/model":
		if len(fields) < 2 {
			fmt.Fprintln(a.Stdout, renderField("Model:", orDefault(c.session.Model(), "(server default)")))
			return true, nil
		}
		c.session.SetModel(fields[1])
		fmt.Fprintln(a.Stdout, renderField("Model:", fields[1]))
	case "/history":
		for _, m := range c.session.History() {
			fmt.Fprintln(a.Stdout, renderField(m.Role+":", util.TruncateWidth(util.FirstLine(m.Content), 60)))
		}
	default:
		return true, fmt.Errorf("unknown command: %s (try /help)", fields[0])
	}
	return true, nil
}

func (c *chatCmd) printWelcome(baseURL string) {
	a := c.app
	fmt.Fprintln(a.Stdout, TitleStyle.Render("samchat interactive chat"))
	fmt.Fprintln(a.Stdout, renderSeparator(30))
	fmt.Fprintln(a.Stdout, renderField("Server:", baseURL))
	fmt.Fprintln(a.Stdout, renderField("Model:", orDefault(c.session.Model(), "(server default)")))
	fmt.Fprintln(a.Stdout, DimStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(a.Stdout)
}

func (c *chatCmd) printHelp() {
	a := c.app
	fmt.Fprintln(a.Stdout, TitleStyle.Render("Available Commands"))
	fmt.Fprintln(a.Stdout, renderSeparator(20))
	for _, h := range [][2]string{
		{"/help", "Show this help"},
		{"/retry", "Send the last request again"},
		{"/reset", "Start a new conversation"},
		{"/model NAME", "Switch model"},
		{"/history", "Show the conversation so far"},
		{"/quit", "Exit"},
	} {
		fmt.Fprintln(a.Stdout, renderField(h[0], h[1]))
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
