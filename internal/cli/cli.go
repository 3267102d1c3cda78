// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/client"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/config"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/markdown"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/storage"
)

// Version information (set at build time).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// OPTIONS
// =============================================================================

// GlobalOptions are accepted before or after any command.
type GlobalOptions struct {
	Config    string `short:"c" long:"config" value-name:"FILE" description:"config file (default: ~/.samweb/config.toml)"`
	BaseURL   string `long:"base-url" value-name:"URL" description:"backend URL, overrides config and the stored value"`
	Model     string `short:"m" long:"model" value-name:"NAME" description:"model to request"`
	LogLevel  string `long:"log-level" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"log level"`
	LogFormat string `long:"log-format" choice:"text" choice:"json" description:"log format"`
	NoColor   bool   `long:"no-color" description:"disable colored output"`
}

// App holds what commands share: I/O streams, loaded config, logger and
// the lazily opened local store.
type App struct {
	Options GlobalOptions

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	cfg     *config.Config
	cfgPath string
	log     *slog.Logger
	store   storage.Store
	creds   *storage.Credentials
}

// NewApp returns an App on the process's standard streams.
func NewApp() *App {
	return &App{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run parses args and executes the selected command. It returns the
// process exit code.
func Run(args []string) int {
	return NewApp().Run(args)
}

// Run parses args and executes the selected command.
func (a *App) Run(args []string) int {
	defer a.close()

	parser := a.newParser()
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				fmt.Fprintln(a.Stdout, flagsErr.Message)
				return ExitSuccess
			}
			fmt.Fprintln(a.Stderr, flagsErr.Message)
			return ExitUsageError
		}
		a.displayError(err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func (a *App) newParser() *flags.Parser {
	parser := flags.NewNamedParser("samchat", flags.HelpFlag|flags.PassDoubleDash)
	parser.ShortDescription = "SAM chat client"
	parser.LongDescription = "Streams chat replies from a SAM backend and renders their Markdown."

	if _, err := parser.AddGroup("Global Options", "", &a.Options); err != nil {
		panic(err)
	}

	mustAdd(parser.AddCommand("ask", "Ask a single question",
		"Sends one prompt and streams the reply to stdout.", &askCmd{app: a}))
	mustAdd(parser.AddCommand("chat", "Interactive chat",
		"Line-oriented chat with input history. Commands: /help, /retry, /reset, /model, /quit.", &chatCmd{app: a}))
	mustAdd(parser.AddCommand("tui", "Full-screen chat", "Opens the terminal chat view.", &tuiCmd{app: a}))
	mustAdd(parser.AddCommand("render", "Render Markdown to HTML",
		"Renders a Markdown file (or - for stdin) to HTML.", &renderCmd{app: a}))
	mustAdd(parser.AddCommand("conversations", "List stored conversations",
		"Lists the conversations stored on the backend.", &conversationsCmd{app: a}))
	mustAdd(parser.AddCommand("version", "Show version", "", &versionCmd{app: a}))

	auth, err := parser.AddCommand("auth", "Manage the bearer token", "", &struct{}{})
	mustAdd(auth, err)
	mustAdd(auth.AddCommand("login", "Store a bearer token", "", &authLoginCmd{app: a}))
	mustAdd(auth.AddCommand("logout", "Remove the stored token", "", &authLogoutCmd{app: a}))
	mustAdd(auth.AddCommand("status", "Show the configured backend and token", "", &authStatusCmd{app: a}))

	cfg, err := parser.AddCommand("config", "Show or create the config file", "", &struct{}{})
	mustAdd(cfg, err)
	mustAdd(cfg.AddCommand("show", "Print the effective configuration", "", &configShowCmd{app: a}))
	mustAdd(cfg.AddCommand("path", "Print the config file path", "", &configPathCmd{app: a}))
	mustAdd(cfg.AddCommand("init", "Write a default config file", "", &configInitCmd{app: a}))

	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}
		if err := a.setup(); err != nil {
			return err
		}
		return cmd.Execute(args)
	}
	return parser
}

func mustAdd(_ *flags.Command, err error) {
	if err != nil {
		panic(err)
	}
}

// =============================================================================
// SETUP
// =============================================================================

// setup loads the config, applies flag overrides and builds the logger.
func (a *App) setup() error {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if a.Options.Config != "" {
		path = a.Options.Config
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return &CommandError{Command: "config", Action: "load", Reason: "could not load configuration", Err: err, exit: ExitConfigError}
	}

	if a.Options.Model != "" {
		cfg.Server.Model = a.Options.Model
	}
	if a.Options.LogLevel != "" {
		cfg.Log.Level = a.Options.LogLevel
	}
	if a.Options.LogFormat != "" {
		cfg.Log.Format = a.Options.LogFormat
	}
	if a.Options.NoColor {
		ForceColorsEnabled(false)
	}

	a.cfg = cfg
	a.cfgPath = path
	a.log = NewLogger(a.Stderr, cfg.Log.Level, cfg.Log.Format)
	a.log.Debug("configuration loaded", "path", path)
	return nil
}

// NewLogger builds the slog logger for level and format ("text" or "json").
// Unknown levels fall back to warn.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (a *App) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.log != nil {
			a.log.Warn("closing store", "error", err)
		}
		a.store = nil
	}
}

// credentials opens the local store on first use.
func (a *App) credentials() (*storage.Credentials, error) {
	if a.creds != nil {
		return a.creds, nil
	}

	path := ""
	if a.cfg.Storage.Backend == "sqlite" {
		if err := config.EnsureConfigDir(); err != nil {
			return nil, err
		}
		p, err := a.cfg.DBPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	store, err := storage.Open(a.cfg.Storage.Backend, path)
	if err != nil {
		return nil, fmt.Errorf("could not open local store: %w", err)
	}
	a.store = store
	a.creds = storage.NewCredentials(store, a.cfg.Server.Token)
	return a.creds, nil
}

// flagCredentials pins the base URL given with --base-url.
type flagCredentials struct {
	*storage.Credentials
	baseURL string
}

func (f flagCredentials) BaseURL(string) string {
	return strings.TrimRight(f.baseURL, "/")
}

var _ client.CredentialStore = flagCredentials{}

func (a *App) newClient() (*client.Client, error) {
	creds, err := a.credentials()
	if err != nil {
		return nil, err
	}

	var store client.CredentialStore = creds
	if a.Options.BaseURL != "" {
		store = flagCredentials{Credentials: creds, baseURL: a.Options.BaseURL}
	}

	return client.New(client.Config{
		BaseURL:     a.cfg.Server.BaseURL,
		Timeout:     time.Duration(a.cfg.Client.TimeoutSecs) * time.Second,
		MaxAttempts: a.cfg.Client.MaxAttempts,
		UserAgent:   a.cfg.Client.UserAgent,
		MaxLineSize: a.cfg.Client.MaxLineKB * 1024,
		Credentials: store,
		OnAuthRequired: func() {
			fmt.Fprintln(a.Stderr, WarningStyle.Render("Token rejected and removed. Run `samchat auth login` to sign in again."))
		},
		Logger: a.log,
	}), nil
}

// highlightEnabled honors a per-machine override stored under
// storage.KeyHighlight, then the config.
func (a *App) highlightEnabled() bool {
	if _, err := a.credentials(); err == nil {
		if v, err := a.store.Get(storage.KeyHighlight); err == nil {
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "false", "off", "0", "no":
				return false
			case "true", "on", "1", "yes":
				return true
			}
		}
	}
	return a.cfg.Render.Highlight
}

func (a *App) newHighlighter() *markdown.ChromaHighlighter {
	if !a.highlightEnabled() {
		return nil
	}
	return markdown.NewChromaHighlighter(a.cfg.Render.HighlightStyle)
}

func (a *App) newRenderer() *markdown.Renderer {
	opts := markdown.Options{
		DiagramLanguages: a.cfg.Render.DiagramLanguages,
		Sanitize:         a.cfg.Render.Sanitize,
	}
	if h := a.newHighlighter(); h != nil {
		opts.Highlighter = h
	}
	return markdown.New(opts)
}

func (a *App) renderInterval() time.Duration {
	if a.cfg.UI.RenderIntervalMs <= 0 {
		return -1
	}
	return time.Duration(a.cfg.UI.RenderIntervalMs) * time.Millisecond
}

// =============================================================================
// VERSION
// =============================================================================

type versionCmd struct {
	app *App
}

func (c *versionCmd) Execute([]string) error {
	fmt.Fprintf(c.app.Stdout, "samchat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	return nil
}
