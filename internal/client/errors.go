// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	// ErrTypeTransport: the server was never reached or the connection
	// dropped (refused, DNS, reset, abrupt close mid-stream).
	ErrTypeTransport
	// ErrTypeHTTPStatus: the server answered with a non-2xx status.
	ErrTypeHTTPStatus
	// ErrTypeAuth: the server answered 401. Stored credentials have been
	// invalidated by the time the caller sees this.
	ErrTypeAuth
	// ErrTypeDecode: a stream line or response body was not valid JSON.
	// Stream decode errors are logged and skipped, never returned.
	ErrTypeDecode
	// ErrTypeRequest: the caller's request could not be encoded.
	ErrTypeRequest
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeTransport:
		return "transport"
	case ErrTypeHTTPStatus:
		return "http_status"
	case ErrTypeAuth:
		return "auth"
	case ErrTypeDecode:
		return "decode"
	case ErrTypeRequest:
		return "request"
	default:
		return "unknown"
	}
}

// ClientError is the error type returned by every Client operation, apart
// from the caller's own context errors which are returned unwrapped.
type ClientError struct {
	Type ErrorType
	// Status is the HTTP status for ErrTypeHTTPStatus and ErrTypeAuth.
	Status  int
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel ClientErrors by Type, and by Status when the sentinel
// sets one.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Type == t.Type && (t.Status == 0 || t.Status == e.Status)
}

// Sentinel errors for errors.Is checks.
var (
	// ErrReauthRequired matches every AuthError.
	ErrReauthRequired = &ClientError{Type: ErrTypeAuth, Message: "re-authentication required"}
	// ErrTransport matches every TransportError.
	ErrTransport = &ClientError{Type: ErrTypeTransport, Message: "cannot connect to the server"}
)

func transportError(msg string, cause error) *ClientError {
	return &ClientError{Type: ErrTypeTransport, Message: msg, Cause: cause}
}

func decodeError(msg string, cause error) *ClientError {
	return &ClientError{Type: ErrTypeDecode, Message: msg, Cause: cause}
}

func requestError(msg string, cause error) *ClientError {
	return &ClientError{Type: ErrTypeRequest, Message: msg, Cause: cause}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func isType(err error, t ErrorType) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool { return isType(err, ErrTypeTransport) }

// IsAuth reports whether err is an AuthError (HTTP 401).
func IsAuth(err error) bool { return isType(err, ErrTypeAuth) }

// IsHTTPStatus reports whether err is an HTTPStatusError. AuthErrors are
// not HTTPStatusErrors.
func IsHTTPStatus(err error) bool { return isType(err, ErrTypeHTTPStatus) }

// IsDecode reports whether err is a DecodeError.
func IsDecode(err error) bool { return isType(err, ErrTypeDecode) }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Status
	}
	return 0
}

// UserMessage turns err into a short sentence suitable for display.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "Request cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The server took too long to respond"
	}

	var ce *ClientError
	if !errors.As(err, &ce) {
		return "Something went wrong: " + err.Error()
	}

	switch ce.Type {
	case ErrTypeTransport:
		return "Cannot connect to the server"
	case ErrTypeAuth:
		return "Your session has expired. Please sign in again"
	case ErrTypeHTTPStatus:
		if ce.Message != "" && ce.Message != http.StatusText(ce.Status) {
			return fmt.Sprintf("Server error %d: %s", ce.Status, ce.Message)
		}
		return fmt.Sprintf("Server error %d: %s", ce.Status, http.StatusText(ce.Status))
	case ErrTypeDecode:
		return "The server sent a response that could not be read"
	case ErrTypeRequest:
		return "The request could not be sent: " + ce.Message
	default:
		return ce.Error()
	}
}

// classifyDoErr maps an error from http.Client.Do or a body read. Context
// errors from the caller's ctx are returned as-is so cancellation never
// looks like a network failure.
func classifyDoErr(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return transportError(msg+": timed out", err)
	}
	return transportError(msg, err)
}
