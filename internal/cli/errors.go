// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error handling and exit codes for ocichat commands.
//
// Commands always return errors; Execute prints them once and maps them
// to an exit code.

package cli

import (
	"errors"
	"fmt"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/cloud"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/genai"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the service rejected the credentials
	ExitAuthError = 4
	// ExitNetworkError indicates a transport or service error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitCancelled indicates the user interrupted the command (128+SIGINT)
	ExitCancelled = 130
)

// =============================================================================
// COMMAND ERROR
// =============================================================================

// CommandError is an error with an explicit exit code and optional hint.
type CommandError struct {
	Code int
	Err  error
	Hint string
}

func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// usageError returns a CommandError for invalid usage.
func usageError(format string, args ...any) error {
	return &CommandError{Code: ExitUsageError, Err: fmt.Errorf(format, args...)}
}

// ExitCodeFor maps an error to a process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code
	}

	switch {
	case genai.IsCancelled(err):
		return ExitCancelled
	case errors.Is(err, genai.ErrNoCompartment), errors.Is(err, genai.ErrNoBackend), errors.Is(err, cloud.ErrNoEndpoint):
		return ExitConfigError
	case errors.Is(err, cloud.ErrAuthFailed):
		return ExitAuthError
	case errors.Is(err, storage.ErrSessionNotFound), errors.Is(err, cloud.ErrModelNotFound):
		return ExitNotFoundError
	}

	var apiErr *cloud.APIError
	if errors.As(err, &apiErr) {
		return ExitNetworkError
	}
	return ExitGeneralError
}

// hintFor returns a one-line suggestion for common errors.
func hintFor(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.Hint != "" {
		return cmdErr.Hint
	}

	switch {
	case errors.Is(err, genai.ErrNoCompartment):
		return "Set compartment_id in the [genai] section of the config file or OCICHAT_COMPARTMENT_ID."
	case errors.Is(err, genai.ErrNoBackend), errors.Is(err, cloud.ErrNoEndpoint):
		return "Set region or endpoint in the [oci] section of the config file, or pass --region."
	case errors.Is(err, cloud.ErrAuthFailed):
		return "Check auth_header in the [oci] section of the config file or OCICHAT_AUTH_HEADER."
	case errors.Is(err, storage.ErrAmbiguousID):
		return "Use a longer session ID prefix (see 'ocichat sessions list')."
	}
	return ""
}
