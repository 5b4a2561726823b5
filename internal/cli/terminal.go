// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for ocichat.
//
// Answers are styled and markdown-rendered only on interactive terminals.
// Piped output stays plain so `ocichat ask` composes with other tools.

package cli

import (
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Width bounds used for wrapping and previews.
const (
	fallbackWidth = 80
	minWidth      = 40
)

// isTerminal reports whether v is a stream attached to a terminal. Test
// buffers and pipes are not.
func isTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// stdinHasData reports whether r carries piped or redirected input. Readers
// other than *os.File always count as input.
func stdinHasData(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice == 0
}

// terminalWidth returns the stdout column count, clamped to minWidth, or
// fallbackWidth when stdout is not a terminal.
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	switch {
	case err != nil || width <= 0:
		return fallbackWidth
	case width < minWidth:
		return minWidth
	}
	return width
}

// colorProfile returns the color profile for stdout. termenv honors
// NO_COLOR and CLICOLOR_FORCE and degrades to Ascii off a terminal.
func colorProfile() termenv.Profile {
	return termenv.NewOutput(os.Stdout).EnvColorProfile()
}
