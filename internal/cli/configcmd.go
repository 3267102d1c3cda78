// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/config"
)

// configShowCmd prints the effective configuration with the token masked.
type configShowCmd struct {
	app *App

	Key    string `short:"k" long:"key" value-name:"KEY" description:"print one dotted key, e.g. render.highlight_style"`
	Format string `short:"f" long:"format" choice:"toml" choice:"yaml" choice:"json" default:"toml" description:"output format"`
}

func (c *configShowCmd) Execute([]string) error {
	a := c.app
	safe := a.cfg.Redacted()

	if c.Key != "" {
		v, err := safe.Get(c.Key)
		if err != nil {
			return &CommandError{Command: "config", Action: "show", Reason: err.Error(), exit: ExitUsageError}
		}
		fmt.Fprintln(a.Stdout, v)
		return nil
	}

	switch c.Format {
	case "yaml":
		out, err := yaml.Marshal(safe)
		if err != nil {
			return err
		}
		_, err = a.Stdout.Write(out)
		return err
	case "json":
		out, err := json.MarshalIndent(safe, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(a.Stdout, string(out))
		return nil
	default:
		fmt.Fprint(a.Stdout, a.cfg.String())
		return nil
	}
}

// configPathCmd prints the config file in use, or where init would write.
type configPathCmd struct {
	app *App
}

func (c *configPathCmd) Execute([]string) error {
	a := c.app
	if a.cfgPath != "" {
		fmt.Fprintln(a.Stdout, a.cfgPath)
		return nil
	}
	path, err := config.DefaultPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Stdout, path+" "+DimStyle.Render("(not created)"))
	return nil
}

// configInitCmd writes a default config file.
type configInitCmd struct {
	app *App

	Force bool `long:"force" description:"overwrite an existing file"`
}

func (c *configInitCmd) Execute([]string) error {
	a := c.app

	path := a.Options.Config
	if path == "" {
		if err := config.EnsureConfigDir(); err != nil {
			return &CommandError{Command: "config", Action: "init", Reason: "could not create config directory", Err: err, exit: ExitConfigError}
		}
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !c.Force {
		return &CommandError{Command: "config", Action: "init", Reason: path + " already exists (use --force to overwrite)", exit: ExitConfigError}
	}
	if err := config.SaveTOML(config.Default(), path); err != nil {
		return &CommandError{Command: "config", Action: "init", Reason: "could not write config", Err: err, exit: ExitConfigError}
	}
	fmt.Fprintln(a.Stdout, SuccessStyle.Render("Wrote "+path))
	return nil
}
