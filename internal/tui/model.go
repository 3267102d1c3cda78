// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/chat"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/client"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/config"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/markdown"
)

// Conversation is the part of chat.Session the view uses.
type Conversation interface {
	Say(ctx context.Context, prompt string, onUpdate func(chat.Update)) (*chat.Reply, error)
	Retry(ctx context.Context, onUpdate func(chat.Update)) (*chat.Reply, error)
	Reset()
	Model() string
	SetModel(model string)
}

var _ Conversation = (*chat.Session)(nil)

// Options configures the view.
type Options struct {
	// Server is shown in the header.
	Server   string
	Theme    string
	WordWrap int
	Profile  termenv.Profile
	// ConfigPath is watched for changes to theme and word wrap.
	ConfigPath string
	Logger     *slog.Logger
}

// =============================================================================
// MESSAGES
// =============================================================================

// updateMsg carries a streaming snapshot of request seq.
type updateMsg struct {
	seq    int
	update chat.Update
}

// doneMsg ends request seq.
type doneMsg struct {
	seq   int
	reply *chat.Reply
	err   error
}

// configMsg is a reloaded config file.
type configMsg struct {
	cfg *config.Config
	err error
}

// =============================================================================
// MODEL
// =============================================================================

type role int

const (
	roleUser role = iota
	roleAssistant
	roleInfo
)

type entry struct {
	role  role
	text  string
	cards []markdown.ToolCard
	err   string
	note  string

	// rendered caches the glamour output of a finished reply.
	rendered string
}

// Model is the bubbletea model of the chat view.
type Model struct {
	conv Conversation
	send func(tea.Msg)
	opts Options
	log  *slog.Logger

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	md       *glamour.TermRenderer

	entries   []*entry
	streaming bool
	seq       int
	cancel    context.CancelFunc
	current   *entry
	status    string

	width, height int
	ready         bool
}

// New returns the view over conv. send posts a message to the running
// program; Run wires it to tea.Program.Send.
func New(conv Conversation, send func(tea.Msg), opts Options) Model {
	if opts.WordWrap <= 0 {
		opts.WordWrap = 80
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	ti := textinput.New()
	ti.Placeholder = "Type a message... (/help for commands)"
	ti.CharLimit = 16384
	ti.Prompt = "> "
	ti.PromptStyle = promptStyle
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = warningStyle

	m := Model{
		conv:     conv,
		send:     send,
		opts:     opts,
		log:      opts.Logger,
		viewport: viewport.New(80, 20),
		input:    ti,
		spinner:  sp,
		width:    80,
		height:   24,
	}
	m.rebuildRenderer()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case updateMsg:
		if msg.seq != m.seq || m.current == nil || msg.update.Final {
			return m, nil
		}
		m.current.text = msg.update.Text
		m.refresh()
		return m, nil

	case doneMsg:
		return m.handleDone(msg)

	case configMsg:
		return m.handleConfig(msg)

	case spinner.TickMsg:
		if !m.streaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	const (
		headerHeight = 1
		statusHeight = 1
		inputHeight  = 1
	)
	m.width, m.height = msg.Width, msg.Height
	m.viewport.Width = max(msg.Width, 1)
	m.viewport.Height = max(msg.Height-headerHeight-statusHeight-inputHeight, 1)
	m.input.Width = max(msg.Width-4, 10)
	m.ready = true

	m.rebuildRenderer()
	m.refresh()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		if m.streaming {
			m.cancel()
			m.status = "Cancelling..."
			return m, nil
		}
		return m, tea.Quit

	case "ctrl+r":
		if m.streaming {
			return m, nil
		}
		return m.retry()

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "enter":
		if m.streaming {
			return m, nil
		}
		line := strings.TrimSpace(m.input.Value())
		if line == "" {
			return m, nil
		}
		m.input.Reset()
		if strings.HasPrefix(line, "/") {
			return m.command(line)
		}
		return m.say(line)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// command runs a slash command.
func (m Model) command(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		return m, tea.Quit
	case "/retry", "/r":
		return m.retry()
	case "/reset", "/new":
		m.conv.Reset()
		m.entries = nil
		m.status = "Started a new conversation"
	case "/model":
		if len(fields) < 2 {
			m.status = "Model: " + orDefault(m.conv.Model(), "(server default)")
			break
		}
		m.conv.SetModel(fields[1])
		m.status = "Model: " + fields[1]
	case "/help", "/?":
		m.entries = append(m.entries, &entry{role: roleInfo, text: helpText})
	default:
		m.status = fmt.Sprintf("Unknown command %s (try /help)", fields[0])
	}
	m.refresh()
	return m, nil
}

const helpText = `/retry   send the last request again (ctrl+r)
/reset   start a new conversation
/model   show or switch the model
/quit    exit (ctrl+c when idle)`

func (m Model) say(prompt string) (tea.Model, tea.Cmd) {
	m.entries = append(m.entries, &entry{role: roleUser, text: prompt})
	reply := &entry{role: roleAssistant}
	m.entries = append(m.entries, reply)

	conv := m.conv
	return m.start(reply, func(ctx context.Context, onUpdate func(chat.Update)) (*chat.Reply, error) {
		return conv.Say(ctx, prompt, onUpdate)
	})
}

// retry streams the last request again into the last reply.
func (m Model) retry() (tea.Model, tea.Cmd) {
	var reply *entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].role == roleAssistant {
			reply = m.entries[i]
			break
		}
	}
	if reply == nil {
		m.status = "Nothing to retry"
		m.refresh()
		return m, nil
	}
	*reply = entry{role: roleAssistant}
	return m.start(reply, m.conv.Retry)
}

// start runs do in a tea.Cmd. Snapshots are posted with send; the result
// comes back as doneMsg.
func (m Model) start(reply *entry, do func(context.Context, func(chat.Update)) (*chat.Reply, error)) (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(context.Background())
	m.seq++
	m.cancel = cancel
	m.current = reply
	m.streaming = true
	m.status = ""
	m.refresh()

	seq, send := m.seq, m.send
	run := func() tea.Msg {
		defer cancel()
		r, err := do(ctx, func(u chat.Update) {
			if send != nil {
				send(updateMsg{seq: seq, update: u})
			}
		})
		return doneMsg{seq: seq, reply: r, err: err}
	}
	return m, tea.Batch(m.spinner.Tick, run)
}

func (m Model) handleDone(msg doneMsg) (tea.Model, tea.Cmd) {
	if msg.seq != m.seq || m.current == nil {
		return m, nil
	}
	e := m.current
	m.current = nil
	m.streaming = false
	m.cancel = nil

	if msg.reply != nil {
		e.text = msg.reply.Text
		e.cards = msg.reply.Cards
	}

	switch {
	case errors.Is(msg.err, chat.ErrNothingToRetry):
		e.note = "Nothing to retry"
	case errors.Is(msg.err, context.Canceled):
		e.note = "[Cancelled]"
		m.log.Debug("reply cancelled", "chars", len(e.text))
	case msg.err != nil:
		e.err = client.UserMessage(msg.err)
		m.status = "Press ctrl+r to retry"
		m.log.Debug("reply failed", "error", msg.err)
	default:
		m.status = fmt.Sprintf("%d chunks, first token %s, total %s",
			msg.reply.Chunks, formatDuration(msg.reply.TTFT), formatDuration(msg.reply.Duration))
	}

	m.refresh()
	return m, nil
}

func (m Model) handleConfig(msg configMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.status = "Config not reloaded: " + msg.err.Error()
		m.log.Warn("config reload failed", "error", msg.err)
		return m, nil
	}
	m.opts.Theme = msg.cfg.UI.Theme
	m.opts.WordWrap = msg.cfg.UI.WordWrap
	m.rebuildRenderer()
	m.refresh()
	m.status = "Config reloaded"
	return m, nil
}

// =============================================================================
// RENDERING
// =============================================================================

func (m *Model) rebuildRenderer() {
	wrap := min(m.opts.WordWrap, m.width-4)
	r, err := NewTermRenderer(m.opts.Theme, wrap, m.opts.Profile)
	if err != nil {
		m.log.Debug("glamour unavailable", "error", err)
		r = nil
	}
	m.md = r
	for _, e := range m.entries {
		e.rendered = ""
	}
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderEntries())
	if atBottom || m.streaming {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderEntries() string {
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch e.role {
		case roleUser:
			b.WriteString(userStyle.Render("You") + "\n" + e.text)
		case roleInfo:
			b.WriteString(noteStyle.Render(e.text))
		case roleAssistant:
			b.WriteString(assistantStyle.Render("SAM") + "\n")
			b.WriteString(m.renderReply(e))
		}
	}
	return b.String()
}

func (m *Model) renderReply(e *entry) string {
	if e == m.current {
		if e.text == "" {
			return m.spinner.View()
		}
		return renderMarkdown(m.md, e.text)
	}

	if e.rendered == "" {
		parts := []string{}
		if e.text != "" {
			parts = append(parts, renderMarkdown(m.md, e.text))
		}
		for _, c := range e.cards {
			parts = append(parts, cardLine(c))
		}
		if e.note != "" {
			parts = append(parts, warningStyle.Render(e.note))
		}
		if e.err != "" {
			parts = append(parts, errorStyle.Render("[ERROR] ")+e.err)
		}
		e.rendered = strings.Join(parts, "\n")
	}
	return e.rendered
}

// View renders the model.
func (m Model) View() string {
	header := headerStyle.Render("samchat") + headerInfoStyle.Render(
		fmt.Sprintf("%s  model: %s", m.opts.Server, orDefault(m.conv.Model(), "default")))

	status := m.status
	if m.streaming {
		status = m.spinner.View() + " Streaming... (ctrl+c to cancel)"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		statusStyle.Render(status),
		m.input.View(),
	)
}

// Streaming reports whether a reply is in flight.
func (m Model) Streaming() bool {
	return m.streaming
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
