// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/SyntheticAutonomicMind/SAM-web/internal/client"
	"github.com/SyntheticAutonomicMind/SAM-web/internal/config"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments.
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitAuthError    = 4
	ExitNetworkError = 5
	ExitServerError  = 6
	// ExitCancelled follows the shell convention for SIGINT.
	ExitCancelled = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a command failure with context.
type CommandError struct {
	Command string
	Action  string
	Reason  string
	Err     error

	exit int
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// errCancelled reports that the user interrupted a request.
var errCancelled = errors.New("cancelled")

// =============================================================================
// DISPLAY
// =============================================================================

// displayError prints err for a person. Client errors use the short
// user-facing message; the full error goes to the debug log.
func (a *App) displayError(err error) {
	if err == nil || errors.Is(err, errCancelled) {
		return
	}
	if a.log != nil {
		a.log.Debug("command failed", "error", err)
	}

	msg := err.Error()
	var ce *client.ClientError
	var verrs config.ValidateErrors
	switch {
	case errors.As(err, &ce), errors.Is(err, context.DeadlineExceeded):
		msg = client.UserMessage(err)
	case errors.As(err, &verrs):
		msg = "invalid configuration:"
		for _, v := range verrs {
			msg += "\n  - " + v.Error()
		}
	}
	fmt.Fprintf(a.Stderr, "%s %s\n", ErrorStyle.Render("[ERROR]"), msg)
}

// GetExitCode maps an error to the process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, errCancelled) || errors.Is(err, context.Canceled) {
		return ExitCancelled
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.exit != 0 {
		return cmdErr.exit
	}

	switch {
	case client.IsAuth(err):
		return ExitAuthError
	case client.IsTransport(err):
		return ExitNetworkError
	case client.IsHTTPStatus(err), client.IsDecode(err):
		return ExitServerError
	}

	var verrs config.ValidateErrors
	if errors.As(err, &verrs) {
		return ExitConfigError
	}
	return ExitGeneralError
}
