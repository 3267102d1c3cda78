// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/util"
)

// CurrentVersion is written into newly created config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete samchat configuration.
type Config struct {
	Version string `toml:"version" yaml:"version" json:"version"`

	Server  ServerConfig  `toml:"server" yaml:"server" json:"server"`
	Client  ClientConfig  `toml:"client" yaml:"client" json:"client"`
	Render  RenderConfig  `toml:"render" yaml:"render" json:"render"`
	Storage StorageConfig `toml:"storage" yaml:"storage" json:"storage"`
	Log     LogConfig     `toml:"log" yaml:"log" json:"log"`
	UI      UIConfig      `toml:"ui" yaml:"ui" json:"ui"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	// BaseURL is the backend root, e.g. "http://127.0.0.1:8080".
	// A base URL saved in the local store takes precedence.
	BaseURL string `toml:"base_url" yaml:"base_url" json:"base_url"`
	// Token is an optional bearer token. Prefer `samchat auth login`,
	// which keeps it in the local store instead of this file.
	Token string `toml:"token" yaml:"token" json:"token,omitempty"`
	// Model is sent with every chat request when set.
	Model string `toml:"model" yaml:"model" json:"model"`
}

// ClientConfig tunes the HTTP client.
type ClientConfig struct {
	// TimeoutSecs bounds non-streaming requests. Streams are bounded only
	// by the caller's context.
	TimeoutSecs int    `toml:"timeout_secs" yaml:"timeout_secs" json:"timeout_secs"`
	MaxAttempts int    `toml:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	UserAgent   string `toml:"user_agent" yaml:"user_agent" json:"user_agent"`
	// MaxLineKB is the largest stream line accepted, in KiB.
	MaxLineKB int `toml:"max_line_kb" yaml:"max_line_kb" json:"max_line_kb"`
}

// RenderConfig controls Markdown to HTML rendering.
type RenderConfig struct {
	Highlight        bool     `toml:"highlight" yaml:"highlight" json:"highlight"`
	HighlightStyle   string   `toml:"highlight_style" yaml:"highlight_style" json:"highlight_style"`
	DiagramLanguages []string `toml:"diagram_languages" yaml:"diagram_languages" json:"diagram_languages"`
	Sanitize         bool     `toml:"sanitize" yaml:"sanitize" json:"sanitize"`
}

// StorageConfig selects the local key-value store.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `toml:"backend" yaml:"backend" json:"backend"`
	// Path of the sqlite database. Empty means <config dir>/samweb.db.
	Path string `toml:"path" yaml:"path" json:"path"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" yaml:"level" json:"level"`
	// Format is "text" or "json".
	Format string `toml:"format" yaml:"format" json:"format"`
}

// UIConfig holds terminal front end settings.
type UIConfig struct {
	// Theme is "dark", "light" or "auto".
	Theme    string `toml:"theme" yaml:"theme" json:"theme"`
	WordWrap int    `toml:"word_wrap" yaml:"word_wrap" json:"word_wrap"`
	// RenderIntervalMs is the minimum spacing between re-renders while a
	// response is streaming.
	RenderIntervalMs int `toml:"render_interval_ms" yaml:"render_interval_ms" json:"render_interval_ms"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			BaseURL: "http://127.0.0.1:8080",
		},
		Client: ClientConfig{
			TimeoutSecs: 60,
			MaxAttempts: 3,
			UserAgent:   "samchat/1.0",
			MaxLineKB:   1024,
		},
		Render: RenderConfig{
			Highlight:        true,
			HighlightStyle:   "github",
			DiagramLanguages: []string{"mermaid"},
		},
		Storage: StorageConfig{
			Backend: "sqlite",
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		UI: UIConfig{
			Theme:            "auto",
			WordWrap:         80,
			RenderIntervalMs: 50,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the samchat configuration directory (~/.samweb).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".samweb"), nil
}

// EnsureConfigDir creates the config directory if needed.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// candidateFiles lists config files in lookup order.
var candidateFiles = []string{"config.toml", "config.yaml", "config.yml", "config.json"}

// FindConfigFile returns the first existing config file in dir, or "" if
// none exists.
func FindConfigFile(dir string) string {
	for _, name := range candidateFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// DefaultPath returns where `config init` writes a new file.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the first config file found in the config
// directory (TOML, then YAML, then JSON), falling back to defaults.
// Environment overrides are applied last, then the result is validated.
// The returned path is empty when no file was found.
func Load() (*Config, string, error) {
	dir, err := ConfigDir()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, "", cfg.Validate()
	}

	path := FindConfigFile(dir)
	if path == "" {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, "", cfg.Validate()
	}

	cfg, err := LoadFromPath(path)
	return cfg, path, err
}

// LoadFromPath loads, env-overrides and validates the config at path. The
// format is picked from the file extension; unknown extensions are read as
// TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(cfg, path); err != nil {
		return nil, err
	}
	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML config %s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to decode TOML config %s: %w", path, err)
		}
	}
	return nil
}

// fillDefaults fills zero values that a partial file may leave behind.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = defaults.Server.BaseURL
	}
	if cfg.Client.TimeoutSecs == 0 {
		cfg.Client.TimeoutSecs = defaults.Client.TimeoutSecs
	}
	if cfg.Client.MaxAttempts == 0 {
		cfg.Client.MaxAttempts = defaults.Client.MaxAttempts
	}
	if cfg.Client.UserAgent == "" {
		cfg.Client.UserAgent = defaults.Client.UserAgent
	}
	if cfg.Client.MaxLineKB == 0 {
		cfg.Client.MaxLineKB = defaults.Client.MaxLineKB
	}
	if cfg.Render.HighlightStyle == "" {
		cfg.Render.HighlightStyle = defaults.Render.HighlightStyle
	}
	if cfg.Render.DiagramLanguages == nil {
		cfg.Render.DiagramLanguages = defaults.Render.DiagramLanguages
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.WordWrap == 0 {
		cfg.UI.WordWrap = defaults.UI.WordWrap
	}
	if cfg.UI.RenderIntervalMs == 0 {
		cfg.UI.RenderIntervalMs = defaults.UI.RenderIntervalMs
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes cfg to path as TOML with 0600 permissions. The file may
// carry a bearer token.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# samchat configuration file\n")
	buf.WriteString("# Values here are overridden by SAMWEB_* environment variables.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid field found by Validate.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors listing
// every problem, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.Server.BaseURL); err != nil {
		add("server.base_url", "invalid URL: %v", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("server.base_url", "scheme must be http or https, got %q", u.Scheme)
	} else if u.Host == "" {
		add("server.base_url", "missing host")
	}

	if c.Client.TimeoutSecs < 0 {
		add("client.timeout_secs", "cannot be negative")
	}
	if c.Client.MaxAttempts < 1 || c.Client.MaxAttempts > 10 {
		add("client.max_attempts", "must be between 1 and 10, got %d", c.Client.MaxAttempts)
	}
	if c.Client.MaxLineKB < 1 {
		add("client.max_line_kb", "must be positive")
	}

	switch c.Storage.Backend {
	case "sqlite", "memory":
	default:
		add("storage.backend", "invalid backend %q, must be one of: sqlite, memory", c.Storage.Backend)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level", "invalid level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format", "invalid format %q, must be one of: text, json", c.Log.Format)
	}

	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		add("ui.theme", "invalid theme %q, must be one of: dark, light, auto", c.UI.Theme)
	}
	if c.UI.WordWrap < 20 {
		add("ui.word_wrap", "must be at least 20, got %d", c.UI.WordWrap)
	}
	if c.UI.RenderIntervalMs < 0 {
		add("ui.render_interval_ms", "cannot be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - SAMWEB_BASE_URL: server.base_url
//   - SAMWEB_TOKEN: server.token
//   - SAMWEB_MODEL: server.model
//   - SAMWEB_TIMEOUT: client.timeout_secs (integer seconds)
//   - SAMWEB_LOG_LEVEL: log.level
//   - SAMWEB_HIGHLIGHT_STYLE: render.highlight_style
//   - SAMWEB_DB_PATH: storage.path
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SAMWEB_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("SAMWEB_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("SAMWEB_MODEL"); v != "" {
		c.Server.Model = v
	}
	if v := os.Getenv("SAMWEB_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Client.TimeoutSecs = secs
		}
	}
	if v := os.Getenv("SAMWEB_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SAMWEB_HIGHLIGHT_STYLE"); v != "" {
		c.Render.HighlightStyle = v
	}
	if v := os.Getenv("SAMWEB_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// DBPath returns the sqlite path, defaulting into the config directory.
func (c *Config) DBPath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "samweb.db"), nil
}

// Get returns the value at a dotted key such as "render.highlight_style".
// Keys use the TOML field names.
func (c *Config) Get(key string) (any, error) {
	if key == "" {
		return nil, errors.New("empty key")
	}
	var tree map[string]any
	if _, err := toml.Decode(c.tomlString(), &tree); err != nil {
		return nil, err
	}

	var cur any = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unknown key: %s", key)
		}
		if cur, ok = m[part]; !ok {
			return nil, fmt.Errorf("unknown key: %s", key)
		}
	}
	return cur, nil
}

// Redacted returns a copy safe to print: the token is masked.
func (c *Config) Redacted() *Config {
	safe := *c
	safe.Render.DiagramLanguages = append([]string(nil), c.Render.DiagramLanguages...)
	if safe.Server.Token != "" {
		safe.Server.Token = "[REDACTED]"
	}
	return &safe
}

// String renders the redacted config as TOML.
func (c *Config) String() string {
	return c.Redacted().tomlString()
}

func (c *Config) tomlString() string {
	var buf bytes.Buffer
	_ = toml.NewEncoder(&buf).Encode(c)
	return buf.String()
}
