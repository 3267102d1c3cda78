// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/storage"
)

// =============================================================================
// AUTH LOGIN
// =============================================================================

type authLoginCmd struct {
	app *App

	Token   string `long:"token" value-name:"TOKEN" description:"token to store (prompted for when omitted)"`
	BaseURL string `long:"server" value-name:"URL" description:"also store this backend URL"`
}

func (c *authLoginCmd) Execute([]string) error {
	a := c.app

	creds, err := a.credentials()
	if err != nil {
		return err
	}

	token := strings.TrimSpace(c.Token)
	if token == "" {
		if token, err = c.readToken(); err != nil {
			return err
		}
	}
	if token == "" {
		return &CommandError{Command: "auth", Action: "login", Reason: "no token given", exit: ExitUsageError}
	}

	if err := creds.SetToken(token); err != nil {
		return &CommandError{Command: "auth", Action: "login", Reason: "could not store token", Err: err}
	}
	if c.BaseURL != "" {
		if err := creds.SetBaseURL(strings.TrimRight(c.BaseURL, "/")); err != nil {
			return &CommandError{Command: "auth", Action: "login", Reason: "could not store server URL", Err: err}
		}
	}

	fmt.Fprintln(a.Stdout, SuccessStyle.Render("Token saved."))
	printTokenInfo(a, token)
	return nil
}

// readToken prompts without echo on a terminal, otherwise reads one line.
func (c *authLoginCmd) readToken() (string, error) {
	a := c.app
	if f, ok := a.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.Stderr, "Token: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(a.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimSpace(line), nil
}

// =============================================================================
// AUTH LOGOUT
// =============================================================================

type authLogoutCmd struct {
	app *App

	All bool `long:"all" description:"also forget the stored server URL"`
}

func (c *authLogoutCmd) Execute([]string) error {
	a := c.app
	creds, err := a.credentials()
	if err != nil {
		return err
	}
	if err := creds.Invalidate(); err != nil {
		return &CommandError{Command: "auth", Action: "logout", Reason: "could not remove token", Err: err}
	}
	if c.All {
		if err := creds.SetBaseURL(""); err != nil {
			return &CommandError{Command: "auth", Action: "logout", Reason: "could not remove server URL", Err: err}
		}
	}
	fmt.Fprintln(a.Stdout, SuccessStyle.Render("Signed out."))
	return nil
}

// =============================================================================
// AUTH STATUS
// =============================================================================

type authStatusCmd struct {
	app *App

	Check bool `long:"check" description:"verify the token against the backend"`
}

func (c *authStatusCmd) Execute([]string) error {
	a := c.app
	cl, err := a.newClient()
	if err != nil {
		return err
	}
	creds, _ := a.credentials()

	fmt.Fprintln(a.Stdout, renderField("Server:", cl.BaseURL()))
	token := creds.Token()
	if token == "" {
		fmt.Fprintln(a.Stdout, renderField("Token:", "(none)"))
	} else {
		fmt.Fprintln(a.Stdout, renderField("Token:", storage.MaskToken(token)))
		printTokenInfo(a, token)
	}

	if !c.Check {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.Client.TimeoutSecs)*time.Second)
	defer cancel()
	if _, err := cl.Conversations().List(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.Stdout, renderField("Check:", SuccessStyle.Render("OK")))
	return nil
}

func printTokenInfo(a *App, token string) {
	info := storage.InspectToken(token)
	if info.Opaque {
		fmt.Fprintln(a.Stdout, renderField("Type:", "opaque"))
		return
	}
	fmt.Fprintln(a.Stdout, renderField("Type:", "JWT"))
	if info.Subject != "" {
		fmt.Fprintln(a.Stdout, renderField("Subject:", info.Subject))
	}
	if info.Issuer != "" {
		fmt.Fprintln(a.Stdout, renderField("Issuer:", info.Issuer))
	}
	if !info.ExpiresAt.IsZero() {
		exp := info.ExpiresAt.Local().Format(time.RFC3339)
		if info.Expired(time.Now()) {
			exp = WarningStyle.Render(exp + " (expired)")
		}
		fmt.Fprintln(a.Stdout, renderField("Expires:", exp))
	}
}
