// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrCancelled indicates the caller cancelled the request.
	ErrCancelled = errors.New("request cancelled")

	// ErrNoCompartment indicates no compartment ID is configured.
	ErrNoCompartment = errors.New("compartment ID not configured")

	// ErrNoBackend indicates the client was built without a backend.
	ErrNoBackend = errors.New("generative AI backend not configured")
)

// IsCancelled reports whether err is a user-initiated stop or an expired
// context. Callers use it to suppress error UI.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// cancelledError wraps the context cause with ErrCancelled.
func cancelledError(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// =============================================================================
// FORMAT ERROR CLASSIFICATION
// =============================================================================

// DefaultFormatErrorMarkers are substrings of backend error messages that mean
// the request shape was rejected and a different variant may succeed.
// Matching is case-insensitive. The list is observational and may be extended
// through Options.ExtraFormatMarkers.
var DefaultFormatErrorMarkers = []string{
	"map is not a function",
	"invalid_argument",
	"correct format of request",
	"model input cannot be empty",
	"valid role",
	`"code": 400`,
	"status code 400",
	"failed to deserialize",
	"missing field `role`",
	"missing field 'role'",
	"deserialize the json body",
}

// IsFormatError reports whether err looks like a request-shape rejection.
// Cancellation is never a format error.
func IsFormatError(err error, extra ...string) bool {
	if err == nil || IsCancelled(err) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range DefaultFormatErrorMarkers {
		if strings.Contains(msg, strings.ToLower(m)) {
			return true
		}
	}
	for _, m := range extra {
		if m = strings.TrimSpace(m); m != "" && strings.Contains(msg, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// =============================================================================
// CHAT ERROR
// =============================================================================

// ChatError is a fatal chat failure annotated with the variant names that
// were attempted, in order.
type ChatError struct {
	Err   error
	Tried []string
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	msg := "chat failed"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if len(e.Tried) == 0 {
		return msg
	}
	return fmt.Sprintf("%s Tried formats: %s.", msg, strings.Join(e.Tried, " -> "))
}

// Unwrap returns the underlying error.
func (e *ChatError) Unwrap() error {
	return e.Err
}
