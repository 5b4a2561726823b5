// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	log "github.com/sirupsen/logrus"
)

// plainMarkdownStyle is glamour's built-in style without colors.
const plainMarkdownStyle = "notty"

var (
	answerRenderer     *glamour.TermRenderer
	answerRendererOnce sync.Once
)

// renderMarkdown renders a completed answer for the terminal. The answer is
// returned unchanged when no renderer can be built or rendering fails.
func renderMarkdown(answer string) string {
	answerRendererOnce.Do(func() {
		style := glamour.WithAutoStyle()
		if colorProfile() == termenv.Ascii {
			style = glamour.WithStandardStyle(plainMarkdownStyle)
		}
		r, err := glamour.NewTermRenderer(
			style,
			glamour.WithWordWrap(terminalWidth()-4),
		)
		if err != nil {
			log.WithError(err).Debug("markdown renderer unavailable")
			return
		}
		answerRenderer = r
	})
	if answerRenderer == nil {
		return answer
	}

	out, err := answerRenderer.Render(answer)
	if err != nil {
		return answer
	}
	return out
}
