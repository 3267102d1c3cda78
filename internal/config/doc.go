// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for samchat.
//
// TOML, YAML and JSON files are supported, with defaults, environment
// variable overrides and validation. There is no process-wide instance:
// callers load a *Config and pass the relevant parts down explicitly.
//
// # Configuration Precedence
//
//   - Environment variables (SAMWEB_*)
//   - ~/.samweb/config.toml, config.yaml, config.yml, config.json (first found)
//   - Built-in defaults
//
// # Usage
//
//	cfg, path, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	_ = path // "" when running on defaults
//
// Reload on edit:
//
//	go config.Watch(ctx, path, func(cfg *config.Config, err error) { ... })
package config
